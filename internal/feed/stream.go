package feed

import (
	"sync"

	"github.com/good-yellow-bee/alertboard/internal/metrics"
)

// Stream is a Subscription backed by a one-slot channel.
// Backends publish into it; the consumer reads Snapshots.
type Stream struct {
	backend string
	ch      chan Snapshot
	onStop  func()

	mu     sync.Mutex
	closed bool
	err    error

	stopOnce sync.Once
	done     chan struct{}
}

// NewStream creates a stream for backend. onStop, if set, runs once when the
// consumer calls Stop.
func NewStream(backend string, onStop func()) *Stream {
	metrics.FeedSubscriptionsActive.WithLabelValues(backend).Inc()
	return &Stream{
		backend: backend,
		ch:      make(chan Snapshot, 1),
		onStop:  onStop,
		done:    make(chan struct{}),
	}
}

// Publish offers snap to the consumer, replacing any snapshot not yet read.
// It never blocks and returns false once the stream is closed.
func (s *Stream) Publish(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
			metrics.FeedSnapshotsSuperseded.WithLabelValues(s.backend).Inc()
		default:
		}
		// Only Publish sends and it holds mu, so the slot is free now.
		s.ch <- snap
	}
	metrics.FeedSnapshotsTotal.WithLabelValues(s.backend).Inc()
	return true
}

// Fail ends delivery with err. The consumer must still call Stop.
func (s *Stream) Fail(err error) {
	if err != nil {
		metrics.FeedSubscriptionErrors.WithLabelValues(s.backend).Inc()
	}
	s.finish(err)
}

// Snapshots returns the delivery channel.
func (s *Stream) Snapshots() <-chan Snapshot {
	return s.ch
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop releases the stream. Safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		if s.onStop != nil {
			s.onStop()
		}
		s.finish(nil)
		close(s.done)
	})
}

// Done is closed once Stop has run.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	metrics.FeedSubscriptionsActive.WithLabelValues(s.backend).Dec()
}
