package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
)

// JSON-backed document store. Collections live in memory and, when a path
// is set, are written back to a single human-readable file after every change.
// One process owns the file; there is no cross-process locking.

// DefaultFileName is used when no path is configured.
const DefaultFileName = "todos.json"

// Store implements store.Store.
type Store struct {
	mu     sync.Mutex
	path   string
	colls  map[string]map[string]model.Item
	subs   map[string]map[chan struct{}]struct{}
	closed bool

	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp snapshot read times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides uuid-based ids.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// NewMemory returns a store that never touches disk.
func NewMemory(opts ...Option) *Store {
	s := &Store{
		colls: map[string]map[string]model.Item{},
		subs:  map[string]map[chan struct{}]struct{}{},
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open loads path (a missing file is an empty store) and persists to it.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultFileName
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	s := NewMemory(opts...)
	s.path = abs
	colls, err := load(abs)
	if err != nil {
		return nil, err
	}
	s.colls = colls
	return s, nil
}

// Path is the backing file, or "" for an in-memory store.
func (s *Store) Path() string { return s.path }

func load(p string) (map[string]map[string]model.Item, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]map[string]model.Item{}, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := validate(b); err != nil {
		return nil, err
	}
	var raw map[string][]model.Item
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	colls := make(map[string]map[string]model.Item, len(raw))
	for name, items := range raw {
		docs := make(map[string]model.Item, len(items))
		for _, it := range items {
			docs[it.ID] = it
		}
		colls[name] = docs
	}
	return colls, nil
}

func save(p string, colls map[string]map[string]model.Item) error {
	raw := make(map[string][]model.Item, len(colls))
	for name, docs := range colls {
		items := make([]model.Item, 0, len(docs))
		for _, it := range docs {
			items = append(items, it)
		}
		store.NewestFirst.Sort(items)
		raw[name] = items
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, collection string, order store.Order) (*store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	notify := make(chan struct{}, 1)
	if s.subs[collection] == nil {
		s.subs[collection] = map[chan struct{}]struct{}{}
	}
	s.subs[collection][notify] = struct{}{}

	return store.NewSubscription(ctx, func(ctx context.Context, emit store.EmitFunc) {
		defer s.unsubscribe(collection, notify)
		for {
			snap, err := s.snapshot(collection, order)
			if err != nil {
				// Only a closed store fails here; nothing more will arrive.
				return
			}
			if !emit(store.Event{Snapshot: snap}) {
				return
			}
			select {
			case <-notify:
			case <-ctx.Done():
				return
			}
		}
	}), nil
}

func (s *Store) unsubscribe(collection string, notify chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[collection], notify)
}

func (s *Store) snapshot(collection string, order store.Order) (*store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	docs := s.colls[collection]
	items := make([]model.Item, 0, len(docs))
	for _, it := range docs {
		items = append(items, it)
	}
	order.Sort(items)
	return &store.Snapshot{Items: items, ReadTime: s.now()}, nil
}

// mutate applies fn to a copy of the collection, persists it, then commits
// and wakes subscribers. A failed write leaves the store untouched.
// Callers hold s.mu.
func (s *Store) mutate(collection string, fn func(docs map[string]model.Item) error) error {
	if s.closed {
		return store.ErrClosed
	}
	next := make(map[string]model.Item, len(s.colls[collection])+1)
	for id, it := range s.colls[collection] {
		next[id] = it
	}
	if err := fn(next); err != nil {
		return err
	}
	if s.path != "" {
		colls := make(map[string]map[string]model.Item, len(s.colls)+1)
		for name, docs := range s.colls {
			colls[name] = docs
		}
		colls[collection] = next
		if err := save(s.path, colls); err != nil {
			return err
		}
	}
	s.colls[collection] = next
	for ch := range s.subs[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, collection string, fields store.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var it model.Item
	if err := fields.ApplyTo(&it); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it.ID = s.newID()
	err := s.mutate(collection, func(docs map[string]model.Item) error {
		docs[it.ID] = it
		return nil
	})
	if err != nil {
		return "", err
	}
	return it.ID, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(collection, func(docs map[string]model.Item) error {
		it, ok := docs[id]
		if !ok {
			return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		if err := fields.ApplyTo(&it); err != nil {
			return err
		}
		docs[id] = it
		return nil
	})
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutate(collection, func(docs map[string]model.Item) error {
		delete(docs, id)
		return nil
	})
}

// Close wakes every subscriber so it observes the closed store and exits.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, subs := range s.subs {
		for ch := range subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
	return nil
}
