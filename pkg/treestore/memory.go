package treestore

import (
	"context"
	"reflect"
	"sort"
	"sync"
)

// MemoryStore keeps the whole tree in-process. It backs unit tests and
// single-node development setups; the Redis store is the deployed one.
type MemoryStore struct {
	mu   sync.RWMutex
	root map[string]any
}

// NewMemoryStore initializes an empty in-memory tree.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{root: make(map[string]any)}
}

// Read returns a deep copy of the value at path, or nil when absent.
func (m *MemoryStore) Read(_ context.Context, path string) (any, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.lookup(parts)
	if !ok {
		return nil, nil
	}
	return copyValue(node), nil
}

// Write replaces the subtree or leaf at path.
func (m *MemoryStore) Write(_ context.Context, path string, value any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := Encode(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	parent := m.ensure(parts[:len(parts)-1])
	parent[parts[len(parts)-1]] = norm
	return nil
}

// Merge shallowly updates fields on the node at path, creating it if needed.
func (m *MemoryStore) Merge(_ context.Context, path string, fields map[string]any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := Encode(fields)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	node := m.ensure(parts)
	for k, v := range norm.(map[string]any) {
		node[k] = v
	}
	return nil
}

// Append writes value under a generated key and returns the key.
func (m *MemoryStore) Append(ctx context.Context, path string, value any) (string, error) {
	key := NewKey()
	if err := m.Write(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes the subtree or leaf at path. Absent paths are a no-op.
func (m *MemoryStore) Delete(_ context.Context, path string) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(m.root, parts)
	return nil
}

// QueryEqual returns children of the collection at path whose field equals
// value, ordered by key (creation order for generated keys).
func (m *MemoryStore) QueryEqual(_ context.Context, path, field string, value any) ([]Child, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	want, err := Encode(value)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	node, ok := m.lookup(parts)
	if !ok {
		return nil, nil
	}
	coll, ok := node.(map[string]any)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []Child
	for _, k := range keys {
		child, ok := coll[k].(map[string]any)
		if !ok {
			continue
		}
		if reflect.DeepEqual(child[field], want) {
			out = append(out, Child{Key: k, Value: copyValue(child)})
		}
	}
	return out, nil
}

func (m *MemoryStore) lookup(parts []string) (any, bool) {
	var node any = m.root
	for _, p := range parts {
		children, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = children[p]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// ensure walks to the node at parts, materializing interior maps. A scalar
// in the way is replaced, matching the replace semantics of deep writes.
func (m *MemoryStore) ensure(parts []string) map[string]any {
	node := m.root
	for _, p := range parts {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[p] = child
		}
		node = child
	}
	return node
}

// remove deletes parts from node, pruning interior maps left empty so that
// absent and empty nodes stay indistinguishable.
func (m *MemoryStore) remove(node map[string]any, parts []string) {
	if len(parts) == 1 {
		delete(node, parts[0])
		return
	}
	child, ok := node[parts[0]].(map[string]any)
	if !ok {
		return
	}
	m.remove(child, parts[1:])
	if len(child) == 0 {
		delete(node, parts[0])
	}
}

func copyValue(v any) any {
	node, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(node))
	for k, child := range node {
		out[k] = copyValue(child)
	}
	return out
}
