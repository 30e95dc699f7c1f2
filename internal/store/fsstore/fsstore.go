// Package fsstore adapts a Cloud Firestore collection to store.Store.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
)

// Store implements store.Store for Firestore. Every handle returned by
// Acquire must be closed; the shared client is closed with the last one.
type Store struct {
	projectID string
	client    *firestore.Client
	once      sync.Once
}

type entry struct {
	client *firestore.Client
	refs   int
}

var (
	mu      sync.Mutex
	clients = map[string]*entry{}
)

// Acquire returns a handle on the process-wide client for fb.ProjectID,
// creating the client on first use. Later calls for the same project share it.
func Acquire(ctx context.Context, fb config.Firebase) (*Store, error) {
	if fb.ProjectID == "" {
		return nil, config.ErrMissingProjectID
	}
	mu.Lock()
	defer mu.Unlock()
	if e, ok := clients[fb.ProjectID]; ok {
		e.refs++
		return &Store{projectID: fb.ProjectID, client: e.client}, nil
	}
	var opts []option.ClientOption
	// The emulator rejects credentials; otherwise an API key, when present,
	// is preferred over application default credentials.
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" && fb.APIKey != "" {
		opts = append(opts, option.WithAPIKey(fb.APIKey))
	}
	c, err := firestore.NewClient(ctx, fb.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	clients[fb.ProjectID] = &entry{client: c, refs: 1}
	return &Store{projectID: fb.ProjectID, client: c}, nil
}

func direction(d store.Direction) firestore.Direction {
	if d == store.Desc {
		return firestore.Desc
	}
	return firestore.Asc
}

// Subscribe runs a snapshot listener on the ordered query.
func (s *Store) Subscribe(ctx context.Context, collection string, order store.Order) (*store.Subscription, error) {
	q := s.client.Collection(collection).OrderBy(order.Field, direction(order.Dir))
	return store.NewSubscription(ctx, func(ctx context.Context, emit store.EmitFunc) {
		it := q.Snapshots(ctx)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return
			}
			if err != nil {
				// The iterator is finished after an error. Report it and keep
				// the subscription open until the consumer cancels.
				if emit(store.Event{Err: err}) {
					<-ctx.Done()
				}
				return
			}
			snap, err := decode(qs)
			if err != nil {
				if !emit(store.Event{Err: err}) {
					return
				}
				continue
			}
			if !emit(store.Event{Snapshot: snap}) {
				return
			}
		}
	}), nil
}

func decode(qs *firestore.QuerySnapshot) (*store.Snapshot, error) {
	docs, err := qs.Documents.GetAll()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	items := make([]model.Item, 0, len(docs))
	for _, d := range docs {
		var it model.Item
		if err := d.DataTo(&it); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.Ref.ID, err)
		}
		it.ID = d.Ref.ID
		items = append(items, it)
	}
	return &store.Snapshot{Items: items, ReadTime: qs.ReadTime}, nil
}

// Create adds a document with a generated id.
func (s *Store) Create(ctx context.Context, collection string, fields store.Fields) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, map[string]interface{}(fields))
	if err != nil {
		return "", fmt.Errorf("create: %w", err)
	}
	return ref.ID, nil
}

// Update patches the given fields; the document must exist.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Fields) error {
	ups := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		ups = append(ups, firestore.Update{Path: k, Value: v})
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, ups)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Close releases this handle. The shared client is closed and forgotten when
// its last handle is released; a later Acquire builds a new one. Closing a
// handle twice is a no-op.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		e, ok := clients[s.projectID]
		if !ok || e.client != s.client {
			return
		}
		e.refs--
		if e.refs > 0 {
			return
		}
		delete(clients, s.projectID)
		if cerr := e.client.Close(); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = cerr
		}
	})
	return err
}
