// Package store defines the document-store surface the synchronizer consumes:
// a standing, cancellable subscription that yields full collection snapshots,
// and fire-and-forget create/update/delete calls.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/idilsaglam/tada/internal/model"
)

// Document field names shared by every backend.
const (
	FieldText      = "text"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("store closed")
	// ErrUnknownField is returned when Fields carries a key no backend understands.
	ErrUnknownField = errors.New("unknown field")
)

// Store is a remote collection of todo documents.
type Store interface {
	// Subscribe opens a standing query. The first event carries the current
	// contents; every later change produces another full snapshot.
	Subscribe(ctx context.Context, collection string, order Order) (*Subscription, error)
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete is idempotent: removing a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// Direction of an ordered query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Order selects the field and direction snapshots are sorted by.
type Order struct {
	Field string
	Dir   Direction
}

// NewestFirst is the only ordering the todo list asks for.
var NewestFirst = Order{Field: FieldCreatedAt, Dir: Desc}

// Less reports whether a sorts before b. Ties fall back to the id so that
// local backends produce a stable order.
func (o Order) Less(a, b model.Item) bool {
	var c int
	switch o.Field {
	case FieldText:
		c = compareStrings(a.Text, b.Text)
	case FieldUpdatedAt:
		c = compareTimes(updatedOrZero(a), updatedOrZero(b))
	default:
		c = compareTimes(a.CreatedAt, b.CreatedAt)
	}
	if c == 0 {
		c = compareStrings(a.ID, b.ID)
	}
	if o.Dir == Desc {
		return c > 0
	}
	return c < 0
}

// Sort orders items in place.
func (o Order) Sort(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool { return o.Less(items[i], items[j]) })
}

func updatedOrZero(it model.Item) time.Time {
	if it.UpdatedAt == nil {
		return time.Time{}
	}
	return *it.UpdatedAt
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Fields is a partial document. Keys are the Field* constants.
type Fields map[string]any

// ApplyTo copies the known fields onto it.
func (f Fields) ApplyTo(it *model.Item) error {
	for k, v := range f {
		switch k {
		case FieldText:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%s: want string, got %T", k, v)
			}
			it.Text = s
		case FieldCreatedAt:
			t, ok := v.(time.Time)
			if !ok {
				return fmt.Errorf("%s: want time.Time, got %T", k, v)
			}
			it.CreatedAt = t
		case FieldUpdatedAt:
			t, ok := v.(time.Time)
			if !ok {
				return fmt.Errorf("%s: want time.Time, got %T", k, v)
			}
			it.UpdatedAt = &t
		default:
			return fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
	}
	return nil
}
