// Package treestore provides a hierarchical, schemaless key-value store
// addressed by slash-delimited paths. Interior nodes are maps, leaves are
// JSON scalars. Append generates globally unique, time-ordered keys whose
// lexicographic order matches creation order.
package treestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"
)

// ErrInvalidPath is returned for empty paths or paths with empty segments.
var ErrInvalidPath = errors.New("treestore: invalid path")

// Child is one entry of an ordered collection query.
type Child struct {
	Key   string
	Value any
}

// Store is the contract all tree store implementations satisfy.
//
// Read returns nil (not an error) when the path is absent. Write replaces
// the subtree or leaf at path. Merge is a shallow field update on the node
// at path, creating it when absent. Append writes value under a generated
// key and returns that key. Delete is delete-if-exists. QueryEqual returns
// the children of a collection whose given field equals value, in creation
// order.
type Store interface {
	Read(ctx context.Context, path string) (any, error)
	Write(ctx context.Context, path string, value any) error
	Merge(ctx context.Context, path string, fields map[string]any) error
	Append(ctx context.Context, path string, value any) (string, error)
	Delete(ctx context.Context, path string) error
	QueryEqual(ctx context.Context, path, field string, value any) ([]Child, error)
}

// NewKey returns a generated collection key. Keys are unique across
// processes and sort lexicographically in creation order.
func NewKey() string {
	return xid.New().String()
}

// Encode normalizes an arbitrary Go value (typically a domain struct) into
// the store's tree form: map[string]any nodes and JSON scalar leaves.
func Encode(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("treestore: encode: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("treestore: encode: %w", err)
	}
	return out, nil
}

// Decode maps a tree value read from the store onto out, which must be a
// pointer to a struct or map.
func Decode(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("treestore: decode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("treestore: decode: %w", err)
	}
	return nil
}

// Join builds a slash path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

func splitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ErrInvalidPath
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil, ErrInvalidPath
		}
	}
	return parts, nil
}
