// Package fanout implements the shared "primary write + N index writes"
// primitive. A primary record is appended first; the denormalized index
// entries that make it discoverable are written afterwards, in parallel,
// each at its own store path.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ridelink/pkg/treestore"
)

// IndexEntry is one dependent point write issued after a primary write.
type IndexEntry struct {
	Path  string
	Value any
}

// Writer issues fan-out writes against a tree store.
//
// Index writes are best-effort: a failed entry is logged and reported but
// does not take down the operation that triggered it, since the primary
// record already exists and reconciliation can rebuild the index later.
type Writer struct {
	store  treestore.Store
	logger *slog.Logger
}

// NewWriter wires a fan-out writer to the given store.
func NewWriter(store treestore.Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger}
}

// WritePrimary appends record to the ordered collection and returns the
// generated key. A failure here aborts the caller's whole operation.
func (w *Writer) WritePrimary(ctx context.Context, collectionPath string, record any) (string, error) {
	id, err := w.store.Append(ctx, collectionPath, record)
	if err != nil {
		return "", fmt.Errorf("fanout: primary write %s: %w", collectionPath, err)
	}
	return id, nil
}

// WriteIndex performs a single index point write, best-effort.
func (w *Writer) WriteIndex(ctx context.Context, path string, value any) error {
	return w.WriteIndexes(ctx, IndexEntry{Path: path, Value: value})
}

// WriteIndexes writes all entries in parallel. The entries target disjoint
// paths and none depends on another's result, so relative order is free;
// every entry is awaited before return. The returned error aggregates the
// failed entries and is advisory: the primary record is already durable.
func (w *Writer) WriteIndexes(ctx context.Context, entries ...IndexEntry) error {
	// Plain group, not WithContext: one failed entry must not cancel its
	// siblings, each entry stands alone.
	var g errgroup.Group
	for _, entry := range entries {
		g.Go(func() error {
			if err := w.store.Write(ctx, entry.Path, entry.Value); err != nil {
				w.logger.Warn("index write failed, leaving repair to reconciliation",
					"path", entry.Path, "err", err)
				return fmt.Errorf("fanout: index write %s: %w", entry.Path, err)
			}
			return nil
		})
	}
	return g.Wait()
}
