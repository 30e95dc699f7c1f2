// Package storetest provides a scripted store.Store for tests. Snapshots are
// pushed by the test, never derived from writes, so a test can observe the
// gap between a write and the snapshot that reflects it.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
)

// ErrRejected is a ready-made failure for the *Err fields and SetErrors.
var ErrRejected = errors.New("rejected by fake store")

// Call records one write request.
type Call struct {
	Op         string // "create" | "update" | "delete"
	Collection string
	ID         string
	Fields     store.Fields
}

// Fake implements store.Store.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	seq   int

	// Errors returned by the next calls; nil means success.
	CreateErr    error
	UpdateErr    error
	DeleteErr    error
	SubscribeErr error

	pushes chan store.Event
	subbed chan struct{}
	once   sync.Once
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		pushes: make(chan store.Event),
		subbed: make(chan struct{}),
	}
}

// Subscribe implements store.Store. Events are whatever the test pushes.
func (f *Fake) Subscribe(ctx context.Context, collection string, order store.Order) (*store.Subscription, error) {
	f.mu.Lock()
	err := f.SubscribeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.once.Do(func() { close(f.subbed) })
	return store.NewSubscription(ctx, func(ctx context.Context, emit store.EmitFunc) {
		for {
			select {
			case ev := <-f.pushes:
				if !emit(ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}), nil
}

// Subscribed is closed once Subscribe has succeeded.
func (f *Fake) Subscribed() <-chan struct{} { return f.subbed }

// PushEvent hands ev to the subscription producer. It blocks until the
// producer takes it, so it must be paired with a consumer reading events.
func (f *Fake) PushEvent(ctx context.Context, ev store.Event) error {
	select {
	case f.pushes <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot builds a snapshot event from items.
func Snapshot(items ...model.Item) store.Event {
	cp := make([]model.Item, len(items))
	copy(cp, items)
	return store.Event{Snapshot: &store.Snapshot{Items: cp}}
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns a copy of the recorded writes.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Create implements store.Store.
func (f *Fake) Create(ctx context.Context, collection string, fields store.Fields) (string, error) {
	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("doc-%d", f.seq)
	err := f.CreateErr
	f.mu.Unlock()
	f.record(Call{Op: "create", Collection: collection, ID: id, Fields: fields})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update implements store.Store.
func (f *Fake) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	f.mu.Lock()
	err := f.UpdateErr
	f.mu.Unlock()
	f.record(Call{Op: "update", Collection: collection, ID: id, Fields: fields})
	return err
}

// Delete implements store.Store.
func (f *Fake) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	err := f.DeleteErr
	f.mu.Unlock()
	f.record(Call{Op: "delete", Collection: collection, ID: id})
	return err
}

// SetErrors replaces the injected failures.
func (f *Fake) SetErrors(create, update, del error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateErr, f.UpdateErr, f.DeleteErr = create, update, del
}

// Close implements store.Store.
func (f *Fake) Close() error { return nil }
