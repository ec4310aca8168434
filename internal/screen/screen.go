// Package screen implements the alert screen: a live, newest-first list of
// alerts bound to a feed subscription, and a small form that appends a new
// alert on behalf of an explicit principal.
//
// The screen holds no source of truth. Every snapshot pushed by the feed
// replaces the row list as-is; rows are never sorted, merged or reconciled
// locally.
package screen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/feed"
	"github.com/good-yellow-bee/alertboard/internal/metrics"
	"github.com/good-yellow-bee/alertboard/internal/session"
)

var (
	// ErrEmptyInput is returned by Submit when the trimmed input is empty.
	ErrEmptyInput = errors.New("alert text is empty")
	// ErrAlreadyMounted is returned by Mount while a previous mount is active.
	ErrAlreadyMounted = errors.New("screen already mounted")
)

// State is a point-in-time copy of the screen.
type State struct {
	Rows        []Row
	Input       string
	FormVisible bool
	// Loaded is set once the first snapshot of the current mount arrived.
	Loaded bool
	// SubscriptionErr is the error that ended the live subscription, if any.
	SubscriptionErr error
}

func (st State) clone() State {
	out := st
	if st.Rows != nil {
		out.Rows = make([]Row, len(st.Rows))
		copy(out.Rows, st.Rows)
	}
	return out
}

// Option configures a Screen.
type Option func(*Screen)

// WithLogger sets the logger used for submit and subscription failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Screen) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocation sets the location row timestamps are formatted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Screen) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLimit caps the number of rows requested from the feed.
func WithLimit(n int) Option {
	return func(s *Screen) { s.query.Limit = n }
}

// Screen is the alert screen view-model. It is safe for concurrent use.
type Screen struct {
	coll   feed.Collection
	logger *zap.Logger
	loc    *time.Location
	query  feed.Query

	mu        sync.Mutex
	state     State
	observers []func(State)
	// notifyMu is taken before mu is released so observers see changes in
	// the order they were applied.
	notifyMu sync.Mutex

	// Per-mount lifecycle. gen changes on every Mount and Unmount so a
	// delivery goroutine from an old mount can no longer touch the state.
	gen       uint64
	sub       feed.Subscription
	unmount   *sync.Once
	ready     chan struct{}
	readyOnce *sync.Once
	done      chan struct{}
}

// New creates an unmounted screen over coll.
func New(coll feed.Collection, opts ...Option) *Screen {
	s := &Screen{
		coll:   coll,
		logger: zap.NewNop(),
		loc:    time.Local,
		query:  feed.AlertsNewestFirst(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount opens the live subscription and starts applying snapshots.
// Every successful Mount must be paired with Unmount.
func (s *Screen) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		return ErrAlreadyMounted
	}
	s.mu.Unlock()

	sub, err := s.coll.Subscribe(ctx, s.query)
	if err != nil {
		s.logger.Error("subscribe to alerts", zap.Error(err))
		return fmt.Errorf("subscribe: %w", err)
	}

	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		sub.Stop()
		return ErrAlreadyMounted
	}
	s.gen++
	gen := s.gen
	s.sub = sub
	s.unmount = &sync.Once{}
	s.ready = make(chan struct{})
	s.readyOnce = &sync.Once{}
	s.done = make(chan struct{})
	s.state.Loaded = false
	s.state.SubscriptionErr = nil
	ready, readyOnce, done := s.ready, s.readyOnce, s.done
	s.mu.Unlock()

	metrics.ScreensMounted.Inc()
	go s.deliver(gen, sub, ready, readyOnce, done)
	return nil
}

func (s *Screen) deliver(gen uint64, sub feed.Subscription, ready chan struct{}, readyOnce *sync.Once, done chan struct{}) {
	defer close(done)
	defer readyOnce.Do(func() { close(ready) })

	for snap := range sub.Snapshots() {
		rows := Project(snap, s.loc)
		if !s.update(gen, func(st *State) {
			st.Rows = rows
			st.Loaded = true
		}) {
			return
		}
		readyOnce.Do(func() { close(ready) })
	}

	if err := sub.Err(); err != nil {
		s.logger.Error("alert subscription ended", zap.Error(err))
		s.update(gen, func(st *State) { st.SubscriptionErr = err })
	}
}

// Unmount stops the live subscription. The subscription is stopped exactly
// once per Mount no matter how often Unmount is called, including after it
// ended on its own. Calling Unmount on an unmounted screen does nothing.
func (s *Screen) Unmount() {
	s.mu.Lock()
	sub, once := s.sub, s.unmount
	if sub != nil {
		s.sub = nil
		s.gen++
	}
	s.mu.Unlock()

	if sub == nil {
		return
	}
	once.Do(func() {
		sub.Stop()
		metrics.ScreensMounted.Dec()
	})
}

// Ready is closed when the current mount received its first snapshot or its
// subscription ended. It returns nil when the screen is not mounted.
func (s *Screen) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.ready
}

// Done is closed when the current mount stops delivering snapshots.
func (s *Screen) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	return s.done
}

// ShowForm reveals the input form. There is no transition back other than a
// successful Submit.
func (s *Screen) ShowForm() {
	s.set(func(st *State) { st.FormVisible = true })
}

// SetInput binds text to the input field.
func (s *Screen) SetInput(text string) {
	s.set(func(st *State) { st.Input = text })
}

// Submit appends the current input as a new alert authored by p.
//
// Blank input is rejected with ErrEmptyInput and no append. A principal
// without an email yields session.ErrNoSession. On success the input is
// cleared and the form hidden; on failure the error is logged and returned
// and the state is left untouched so the user can retry.
func (s *Screen) Submit(ctx context.Context, p session.Principal) error {
	s.mu.Lock()
	input := s.state.Input
	s.mu.Unlock()

	if strings.TrimSpace(input) == "" {
		metrics.ScreenSubmitsTotal.WithLabelValues("empty").Inc()
		return ErrEmptyInput
	}
	if err := p.Validate(); err != nil {
		metrics.ScreenSubmitsTotal.WithLabelValues("no_session").Inc()
		s.logger.Warn("submit without session")
		return err
	}

	err := s.coll.Append(ctx, feed.CollectionAlerts, feed.NewAlert{Text: input, Email: p.Email})
	if err != nil {
		metrics.ScreenSubmitsTotal.WithLabelValues("error").Inc()
		s.logger.Error("append alert failed", zap.String("email", p.Email), zap.Error(err))
		return fmt.Errorf("append alert: %w", err)
	}

	metrics.ScreenSubmitsTotal.WithLabelValues("ok").Inc()
	s.set(func(st *State) {
		st.Input = ""
		st.FormVisible = false
	})
	return nil
}

// State returns a copy of the current state.
func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// OnChange registers fn to be called with a copy of the state after every
// change. fn runs on the goroutine that made the change, one call at a time
// in change order. fn must not call back into the Screen.
func (s *Screen) OnChange(fn func(State)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// set applies a caller action.
func (s *Screen) set(fn func(*State)) {
	s.mu.Lock()
	s.apply(fn)
}

// update applies a delivery from mount gen. It reports false once that mount
// is gone.
func (s *Screen) update(gen uint64, fn func(*State)) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	s.apply(fn)
	return true
}

// apply must be called with mu held and releases it.
func (s *Screen) apply(fn func(*State)) {
	fn(&s.state)
	snap := s.state.clone()
	observers := make([]func(State), len(s.observers))
	copy(observers, s.observers)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, o := range observers {
		o(snap)
	}
}
