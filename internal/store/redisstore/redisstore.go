// Package redisstore keeps todo documents in Redis. Each collection is a set
// of JSON documents, a sorted index by creation time, and a pub/sub channel
// that announces every write so subscribers can reload a full snapshot.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
)

// DefaultPrefix namespaces every key this store writes.
const DefaultPrefix = "tada"

// Store implements store.Store on top of a redis client.
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time

	// afterRead runs between Update's read and write; tests use it to race.
	afterRead func()
}

// Options are the connection settings.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// New connects and pings the server.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to redis (%s): %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, now: time.Now}
}

func (s *Store) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:doc:%s", s.prefix, collection, id)
}

func (s *Store) indexKey(collection string) string {
	return fmt.Sprintf("%s:%s:index", s.prefix, collection)
}

func (s *Store) channel(collection string) string {
	return fmt.Sprintf("%s:%s:changes", s.prefix, collection)
}

// Subscribe listens on the collection's change channel and emits a fresh
// snapshot after the subscription is confirmed and after every notification.
func (s *Store) Subscribe(ctx context.Context, collection string, order store.Order) (*store.Subscription, error) {
	ps := s.client.Subscribe(ctx, s.channel(collection))
	// Wait for the confirmation so no write between here and the first
	// snapshot goes unnoticed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}
	return store.NewSubscription(ctx, func(ctx context.Context, emit store.EmitFunc) {
		defer ps.Close()
		msgs := ps.Channel()
		for {
			snap, err := s.snapshot(ctx, collection, order)
			if ctx.Err() != nil {
				return
			}
			ev := store.Event{Snapshot: snap}
			if err != nil {
				ev = store.Event{Err: err}
			}
			if !emit(ev) {
				return
			}
			select {
			case _, ok := <-msgs:
				if !ok {
					// The client was closed underneath us; stay open but silent.
					<-ctx.Done()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}), nil
}

func (s *Store) snapshot(ctx context.Context, collection string, order store.Order) (*store.Snapshot, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	items := make([]model.Item, 0, len(ids))
	if len(ids) > 0 {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.docKey(collection, id)
		}
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("read documents: %w", err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				// Index entry without a document; a concurrent delete.
				continue
			}
			var it model.Item
			if err := json.Unmarshal([]byte(str), &it); err != nil {
				return nil, fmt.Errorf("decode %s: %w", ids[i], err)
			}
			it.ID = ids[i]
			items = append(items, it)
		}
	}
	order.Sort(items)
	return &store.Snapshot{Items: items, ReadTime: s.now()}, nil
}

func (s *Store) write(ctx context.Context, collection string, it model.Item) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.queueWrite(ctx, pipe, collection, it)
	})
	return err
}

// queueWrite queues the document, its index entry and the change
// notification on pipe.
func (s *Store) queueWrite(ctx context.Context, pipe redis.Pipeliner, collection string, it model.Item) error {
	data, err := json.Marshal(it)
	if err != nil {
		return err
	}
	pipe.Set(ctx, s.docKey(collection, it.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(collection), &redis.Z{
		Score:  float64(it.CreatedAt.UnixMilli()),
		Member: it.ID,
	})
	pipe.Publish(ctx, s.channel(collection), it.ID)
	return nil
}

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, collection string, fields store.Fields) (string, error) {
	var it model.Item
	if err := fields.ApplyTo(&it); err != nil {
		return "", err
	}
	it.ID = uuid.NewString()
	if err := s.write(ctx, collection, it); err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	return it.ID, nil
}

// updateRetries bounds how often Update retries after a concurrent write to
// the same document.
const updateRetries = 5

// Update implements store.Store. The read and the write run under WATCH, so a
// concurrent Delete is never undone by a late write.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	key := s.docKey(collection, id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
			}
			return err
		}
		var it model.Item
		if err := json.Unmarshal([]byte(data), &it); err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		it.ID = id
		if err := fields.ApplyTo(&it); err != nil {
			return err
		}
		if s.afterRead != nil {
			s.afterRead()
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.queueWrite(ctx, pipe, collection, it)
		})
		return err
	}
	for i := 0; i < updateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnknownField) {
				return err
			}
			return fmt.Errorf("update: %w", err)
		}
		return nil
	}
	return fmt.Errorf("update %s/%s: %w", collection, id, redis.TxFailedErr)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(collection, id))
		pipe.ZRem(ctx, s.indexKey(collection), id)
		pipe.Publish(ctx, s.channel(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }
