package screen

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

type fakeSub struct {
	ch    chan feed.Snapshot
	stops atomic.Int32
	once  sync.Once

	mu  sync.Mutex
	err error
}

func newFakeSub() *fakeSub {
	return &fakeSub{ch: make(chan feed.Snapshot, 8)}
}

func (f *fakeSub) Snapshots() <-chan feed.Snapshot { return f.ch }

func (f *fakeSub) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSub) Stop() {
	f.stops.Add(1)
	f.once.Do(func() { close(f.ch) })
}

// fail ends the subscription from the backend side.
func (f *fakeSub) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.once.Do(func() { close(f.ch) })
}

type fakeCollection struct {
	mu        sync.Mutex
	subs      []*fakeSub
	queries   []feed.Query
	appends   []feed.NewAlert
	appendErr error
	subErr    error
}

func (c *fakeCollection) Subscribe(_ context.Context, q feed.Query) (feed.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subErr != nil {
		return nil, c.subErr
	}
	s := newFakeSub()
	c.subs = append(c.subs, s)
	c.queries = append(c.queries, q)
	return s, nil
}

func (c *fakeCollection) Append(_ context.Context, collection string, na feed.NewAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if collection != feed.CollectionAlerts {
		return feed.ErrUnknownCollection
	}
	c.appends = append(c.appends, na)
	return c.appendErr
}

func (c *fakeCollection) appendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.appends)
}

func (c *fakeCollection) lastSub() *fakeSub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[len(c.subs)-1]
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

var principal = session.Principal{UserID: "u1", Username: "xavier", Email: "x@y.com", Role: models.RoleOperator}

func mounted(t *testing.T) (*Screen, *fakeCollection) {
	t.Helper()
	coll := &fakeCollection{}
	s := New(coll, WithLocation(time.UTC))
	require.NoError(t, s.Mount(context.Background()))
	t.Cleanup(s.Unmount)
	return s, coll
}

func waitRows(t *testing.T, s *Screen, n int) State {
	t.Helper()
	require.Eventually(t, func() bool {
		st := s.State()
		return st.Loaded && len(st.Rows) == n
	}, 2*time.Second, 5*time.Millisecond)
	return s.State()
}

func TestMount_OpensOneNewestFirstSubscription(t *testing.T) {
	_, coll := mounted(t)

	require.Len(t, coll.queries, 1)
	assert.Equal(t, feed.CollectionAlerts, coll.queries[0].Collection)
	assert.Equal(t, feed.FieldTimestamp, coll.queries[0].OrderBy)
	assert.True(t, coll.queries[0].Desc)
}

func TestMount_Twice(t *testing.T) {
	s, coll := mounted(t)
	assert.ErrorIs(t, s.Mount(context.Background()), ErrAlreadyMounted)
	assert.Len(t, coll.subs, 1)
}

func TestMount_SubscribeError(t *testing.T) {
	coll := &fakeCollection{subErr: errors.New("offline")}
	s := New(coll)
	err := s.Mount(context.Background())
	require.Error(t, err)
	assert.Nil(t, s.Ready())
	s.Unmount()
}

func TestSnapshot_ReplacesRowsInPushedOrder(t *testing.T) {
	s, coll := mounted(t)
	sub := coll.lastSub()

	sub.ch <- feed.Snapshot{Alerts: []*models.Alert{
		{ID: "a", Text: "fire", Email: "x@y.com", Timestamp: ts("2024-01-02T10:00:00Z")},
	}}
	st := waitRows(t, s, 1)
	assert.Equal(t, "fire", st.Rows[0].Text)

	// Out of timestamp order on purpose: the screen must not re-sort.
	sub.ch <- feed.Snapshot{Alerts: []*models.Alert{
		{ID: "b", Text: "older", Email: "z@y.com", Timestamp: ts("2024-01-01T10:00:00Z")},
		{ID: "a", Text: "fire", Email: "x@y.com", Timestamp: ts("2024-01-02T10:00:00Z")},
		{ID: "c", Text: "drill", Email: "z@y.com"},
	}}
	st = waitRows(t, s, 3)
	assert.Equal(t, "b", st.Rows[0].ID)
	assert.Equal(t, "a", st.Rows[1].ID)
	assert.Equal(t, "c", st.Rows[2].ID)
	assert.Equal(t, "2024-01-01 10:00:00", st.Rows[0].When)
	assert.Equal(t, PendingTimestamp, st.Rows[2].When)
	assert.Nil(t, st.Rows[2].Timestamp)

	sub.ch <- feed.Snapshot{Alerts: []*models.Alert{}}
	st = waitRows(t, s, 0)
	assert.Empty(t, st.Rows)
}

func TestReady_ClosedOnFirstSnapshot(t *testing.T) {
	s, coll := mounted(t)
	ready := s.Ready()
	require.NotNil(t, ready)

	select {
	case <-ready:
		t.Fatal("ready before any snapshot")
	default:
	}

	coll.lastSub().ch <- feed.Snapshot{}
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ready not closed")
	}
}

func TestUnmount_StopsExactlyOnce(t *testing.T) {
	coll := &fakeCollection{}
	s := New(coll)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Mount(context.Background()))
		s.Unmount()
		s.Unmount()
	}
	s.Unmount()

	require.Len(t, coll.subs, 3)
	for _, sub := range coll.subs {
		assert.Equal(t, int32(1), sub.stops.Load())
	}
}

func TestUnmount_BeforeMountIsNoop(t *testing.T) {
	s := New(&fakeCollection{})
	s.Unmount()
	assert.Nil(t, s.Done())
}

func TestUnmount_ConcurrentCalls(t *testing.T) {
	coll := &fakeCollection{}
	s := New(coll)
	require.NoError(t, s.Mount(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Unmount()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), coll.lastSub().stops.Load())
}

func TestUnmount_IgnoresLateSnapshots(t *testing.T) {
	s, coll := mounted(t)
	sub := coll.lastSub()
	sub.ch <- feed.Snapshot{Alerts: []*models.Alert{{ID: "a", Text: "fire"}}}
	waitRows(t, s, 1)

	s.Unmount()
	before := s.State()
	assert.Len(t, before.Rows, 1)
	assert.Equal(t, int32(1), sub.stops.Load())
}

func TestSubscriptionFailure_KeepsRowsAndStillStopsOnce(t *testing.T) {
	s, coll := mounted(t)
	sub := coll.lastSub()
	sub.ch <- feed.Snapshot{Alerts: []*models.Alert{{ID: "a", Text: "fire"}}}
	waitRows(t, s, 1)

	done := s.Done()
	boom := errors.New("permission denied")
	sub.fail(boom)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery did not end")
	}

	st := s.State()
	assert.ErrorIs(t, st.SubscriptionErr, boom)
	assert.Len(t, st.Rows, 1)

	s.Unmount()
	s.Unmount()
	assert.Equal(t, int32(1), sub.stops.Load())
}

func TestSubmit_AppendsUntrimmedTextOnce(t *testing.T) {
	s, coll := mounted(t)
	s.ShowForm()
	s.SetInput("  fire in lab 3  ")

	require.NoError(t, s.Submit(context.Background(), principal))

	require.Equal(t, 1, coll.appendCount())
	assert.Equal(t, feed.NewAlert{Text: "  fire in lab 3  ", Email: "x@y.com"}, coll.appends[0])

	st := s.State()
	assert.Empty(t, st.Input)
	assert.False(t, st.FormVisible)
}

func TestSubmit_BlankInputIsNoop(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n "} {
		s, coll := mounted(t)
		s.ShowForm()
		s.SetInput(input)

		err := s.Submit(context.Background(), principal)
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Zero(t, coll.appendCount())

		st := s.State()
		assert.True(t, st.FormVisible)
		assert.Equal(t, input, st.Input)
	}
}

func TestSubmit_FailureLeavesStateUnchanged(t *testing.T) {
	s, coll := mounted(t)
	coll.appendErr = errors.New("unavailable")
	s.ShowForm()
	s.SetInput("fire")

	err := s.Submit(context.Background(), principal)
	require.Error(t, err)
	assert.ErrorIs(t, err, coll.appendErr)
	assert.Equal(t, 1, coll.appendCount())

	st := s.State()
	assert.Equal(t, "fire", st.Input)
	assert.True(t, st.FormVisible)

	// The user can retry.
	coll.appendErr = nil
	require.NoError(t, s.Submit(context.Background(), principal))
	assert.Equal(t, 2, coll.appendCount())
	assert.Empty(t, s.State().Input)
}

func TestSubmit_WithoutSession(t *testing.T) {
	s, coll := mounted(t)
	s.ShowForm()
	s.SetInput("fire")

	err := s.Submit(context.Background(), session.Principal{})
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Zero(t, coll.appendCount())
	assert.Equal(t, "fire", s.State().Input)
}

func TestSubmit_DoesNotNeedMount(t *testing.T) {
	coll := &fakeCollection{}
	s := New(coll)
	s.SetInput("fire")
	require.NoError(t, s.Submit(context.Background(), principal))
	assert.Equal(t, 1, coll.appendCount())
}

func TestOnChange(t *testing.T) {
	coll := &fakeCollection{}
	s := New(coll)

	var mu sync.Mutex
	var seen []State
	s.OnChange(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	s.ShowForm()
	s.SetInput("x")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].FormVisible)
	assert.Equal(t, "x", seen[1].Input)
}

func TestOnChange_SeesChangesInOrder(t *testing.T) {
	s, coll := mounted(t)
	sub := coll.lastSub()

	var mu sync.Mutex
	var inputs []string
	var rows []int
	s.OnChange(func(st State) {
		// Widen the window between applying and notifying.
		time.Sleep(time.Millisecond)
		mu.Lock()
		inputs = append(inputs, st.Input)
		rows = append(rows, len(st.Rows))
		mu.Unlock()
	})

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			s.SetInput(strings.Repeat("x", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			alerts := make([]*models.Alert, i)
			for j := range alerts {
				alerts[j] = &models.Alert{ID: strconv.Itoa(j), Text: "a"}
			}
			sub.ch <- feed.Snapshot{Alerts: alerts}
		}
	}()
	wg.Wait()
	waitRows(t, s, n)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rows) > 0 && rows[len(rows)-1] == n
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(inputs); i++ {
		assert.GreaterOrEqual(t, len(inputs[i]), len(inputs[i-1]), "input went backwards at call %d", i)
		assert.GreaterOrEqual(t, rows[i], rows[i-1], "rows went backwards at call %d", i)
	}
	assert.Equal(t, strings.Repeat("x", n), inputs[len(inputs)-1])
}

func TestState_IsACopy(t *testing.T) {
	s, coll := mounted(t)
	coll.lastSub().ch <- feed.Snapshot{Alerts: []*models.Alert{{ID: "a", Text: "fire"}}}
	st := waitRows(t, s, 1)

	st.Rows[0].Text = "changed"
	assert.Equal(t, "fire", s.State().Rows[0].Text)
}
