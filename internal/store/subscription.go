package store

import (
	"context"
	"sync"
	"time"

	"github.com/idilsaglam/tada/internal/model"
)

// Snapshot is the full contents of a watched collection at one point in time.
type Snapshot struct {
	Items    []model.Item
	ReadTime time.Time
}

// Event is either a snapshot or a stream error. Errors do not end the
// subscription; it stays open until Close.
type Event struct {
	Snapshot *Snapshot
	Err      error
}

// EmitFunc delivers one event to the consumer. It returns false once the
// subscription has been cancelled, after which the producer must return.
type EmitFunc func(Event) bool

// Subscription is a cancellable stream of events produced by a backend.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSubscription runs produce on its own goroutine. The events channel is
// closed when produce returns.
func NewSubscription(ctx context.Context, produce func(ctx context.Context, emit EmitFunc)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	emit := func(ev Event) bool {
		select {
		case s.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(s.done)
		defer close(s.events)
		produce(ctx, emit)
	}()
	return s
}

// Events yields snapshots in the order the backend produced them.
func (s *Subscription) Events() <-chan Event { return s.events }

// Close cancels the subscription and waits for the producer to stop.
// It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}
