package fsstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
)

// offlineEmulator makes firestore.NewClient build a client without
// credentials or a network round trip.
func offlineEmulator(t *testing.T) {
	t.Helper()
	t.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:1")
}

func TestAcquireMissingProjectID(t *testing.T) {
	offlineEmulator(t)
	st, err := Acquire(context.Background(), config.Firebase{APIKey: "key"})
	if !errors.Is(err, config.ErrMissingProjectID) {
		t.Fatalf("Acquire: got %v, want ErrMissingProjectID", err)
	}
	if st != nil {
		t.Errorf("Acquire: got a store, want nil")
	}
}

func TestAcquireReusesClient(t *testing.T) {
	offlineEmulator(t)
	ctx := context.Background()
	fb := config.Firebase{ProjectID: "reuse-" + uuid.NewString()}

	a, err := Acquire(ctx, fb)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := Acquire(ctx, fb)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if a.client != b.client {
		t.Error("same project built a second client")
	}

	other, err := Acquire(ctx, config.Firebase{ProjectID: "other-" + uuid.NewString()})
	if err != nil {
		t.Fatalf("Acquire other: %v", err)
	}
	defer other.Close()
	if other.client == a.client {
		t.Error("different projects share a client")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close a: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close a: %v", err)
	}
	mu.Lock()
	e, ok := clients[fb.ProjectID]
	mu.Unlock()
	if !ok || e.client != b.client || e.refs != 1 {
		t.Fatalf("registry after closing one of two handles: got %+v, want b's client with 1 ref", e)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close b: %v", err)
	}
	mu.Lock()
	_, ok = clients[fb.ProjectID]
	mu.Unlock()
	if ok {
		t.Error("client still registered after its last handle closed")
	}
}

func TestAcquireAfterCloseBuildsNewClient(t *testing.T) {
	offlineEmulator(t)
	ctx := context.Background()
	fb := config.Firebase{ProjectID: "reopen-" + uuid.NewString()}

	a, err := Acquire(ctx, fb)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := Acquire(ctx, fb)
	if err != nil {
		t.Fatalf("Acquire after Close: %v", err)
	}
	defer b.Close()
	if b.client == a.client {
		t.Error("Acquire after Close returned the closed client")
	}
}

// emulatorStore connects to a running emulator. The tests are skipped when
// FIRESTORE_EMULATOR_HOST is not set.
func emulatorStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	st, err := Acquire(context.Background(), config.Firebase{ProjectID: "tada-test"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func texts(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

// waitFor reads snapshots until one has the wanted texts.
func waitFor(t *testing.T, sub *store.Subscription, want ...string) []model.Item {
	t.Helper()
	timeout := time.After(10 * time.Second)
	var last []string
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatal("subscription closed")
			}
			if ev.Err != nil {
				t.Fatalf("event error: %v", ev.Err)
			}
			last = texts(ev.Snapshot.Items)
			if len(last) == len(want) {
				match := true
				for i := range want {
					if last[i] != want[i] {
						match = false
					}
				}
				if match {
					return ev.Snapshot.Items
				}
			}
		case <-timeout:
			t.Fatalf("snapshot: got %v, want %v", last, want)
		}
	}
}

func TestEmulatorSubscriptionSeesWrites(t *testing.T) {
	st := emulatorStore(t)
	ctx := context.Background()
	coll := "todos-" + uuid.NewString()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	sub, err := st.Subscribe(ctx, coll, store.NewestFirst)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	waitFor(t, sub)

	first, err := st.Create(ctx, coll, store.Fields{store.FieldText: "first", store.FieldCreatedAt: t0})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.Create(ctx, coll, store.Fields{store.FieldText: "second", store.FieldCreatedAt: t0.Add(time.Second)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	items := waitFor(t, sub, "second", "first")
	if items[1].ID != first {
		t.Errorf("id: got %q, want %q", items[1].ID, first)
	}

	if err := st.Update(ctx, coll, first, store.Fields{store.FieldText: "first!", store.FieldUpdatedAt: t0.Add(time.Minute)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	items = waitFor(t, sub, "second", "first!")
	if items[1].UpdatedAt == nil {
		t.Error("UpdatedAt not stored")
	}

	if err := st.Delete(ctx, coll, first); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	waitFor(t, sub, "second")
	if err := st.Delete(ctx, coll, first); err != nil {
		t.Errorf("second Delete: got %v, want nil", err)
	}
}

func TestEmulatorUpdateMissing(t *testing.T) {
	st := emulatorStore(t)
	err := st.Update(context.Background(), "todos-"+uuid.NewString(), "nope", store.Fields{store.FieldText: "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update: got %v, want ErrNotFound", err)
	}
}
