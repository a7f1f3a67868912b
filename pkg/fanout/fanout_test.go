package fanout

import (
	"context"
	"errors"
	"testing"

	"ridelink/pkg/treestore"
)

// failingStore fails Write for selected paths to exercise partial fan-out.
type failingStore struct {
	treestore.Store
	failPaths map[string]bool
}

func (f *failingStore) Write(ctx context.Context, path string, value any) error {
	if f.failPaths[path] {
		return errors.New("store unavailable")
	}
	return f.Store.Write(ctx, path, value)
}

func TestWritePrimaryReturnsGeneratedKey(t *testing.T) {
	ctx := context.Background()
	store := treestore.NewMemoryStore()
	w := NewWriter(store, nil)

	id, err := w.WritePrimary(ctx, "drives", map[string]any{"username": "alice"})
	if err != nil {
		t.Fatalf("write primary: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated key")
	}
	got, err := store.Read(ctx, "drives/"+id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil {
		t.Fatalf("primary record not readable under generated key")
	}
}

func TestWriteIndexesAllEntries(t *testing.T) {
	ctx := context.Background()
	store := treestore.NewMemoryStore()
	w := NewWriter(store, nil)

	err := w.WriteIndexes(ctx,
		IndexEntry{Path: "users/alice/drives/d1", Value: true},
		IndexEntry{Path: "users/bob/chats/c1", Value: true},
		IndexEntry{Path: "drives/d1/chats/c1", Value: true},
	)
	if err != nil {
		t.Fatalf("write indexes: %v", err)
	}
	for _, path := range []string{"users/alice/drives/d1", "users/bob/chats/c1", "drives/d1/chats/c1"} {
		got, err := store.Read(ctx, path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if got != true {
			t.Fatalf("expected index entry at %s, got %#v", path, got)
		}
	}
}

func TestWriteIndexesPartialFailureStillWritesOthers(t *testing.T) {
	ctx := context.Background()
	backing := treestore.NewMemoryStore()
	store := &failingStore{Store: backing, failPaths: map[string]bool{"users/bob/chats/c1": true}}
	w := NewWriter(store, nil)

	err := w.WriteIndexes(ctx,
		IndexEntry{Path: "users/alice/chats/c1", Value: true},
		IndexEntry{Path: "users/bob/chats/c1", Value: true},
	)
	if err == nil {
		t.Fatalf("expected aggregate error for failed entry")
	}
	got, err := backing.Read(ctx, "users/alice/chats/c1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != true {
		t.Fatalf("healthy index entry should still be written")
	}
}
