package treestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore maps the tree onto Redis: every interior node owns a hash of
// its JSON-encoded scalar fields and a sorted set of its child node names.
// All members share score zero, so sorted-set order is lexicographic, which
// for generated keys is creation order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a Redis-backed tree store. prefix namespaces all
// keys and defaults to "ridelink".
func NewRedisStore(addr, password, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ridelink"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}
}

func (s *RedisStore) nodeKey(parts []string) string {
	return s.prefix + ":n:" + Join(parts...)
}

func (s *RedisStore) childKey(parts []string) string {
	return s.prefix + ":c:" + Join(parts...)
}

// Read assembles the subtree at path, or resolves a scalar leaf when path
// addresses a field of its parent node. Absent paths yield nil.
func (s *RedisStore) Read(ctx context.Context, path string) (any, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	node, ok, err := s.readNode(ctx, parts)
	if err != nil {
		return nil, err
	}
	if ok {
		return node, nil
	}
	if len(parts) == 1 {
		return nil, nil
	}
	raw, err := s.client.HGet(ctx, s.nodeKey(parts[:len(parts)-1]), parts[len(parts)-1]).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("treestore: redis read %s: %w", path, err)
	}
	return decodeScalar(raw)
}

// Write replaces the subtree or leaf at path.
func (s *RedisStore) Write(ctx context.Context, path string, value any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := Encode(value)
	if err != nil {
		return err
	}
	if err := s.deleteSubtree(ctx, parts); err != nil {
		return err
	}
	if node, ok := norm.(map[string]any); ok {
		if err := s.register(ctx, parts); err != nil {
			return err
		}
		return s.writeTree(ctx, parts, node)
	}
	if len(parts) == 1 {
		return fmt.Errorf("%w: scalar at top-level path %q", ErrInvalidPath, path)
	}
	if err := s.register(ctx, parts[:len(parts)-1]); err != nil {
		return err
	}
	enc, err := json.Marshal(norm)
	if err != nil {
		return fmt.Errorf("treestore: encode %s: %w", path, err)
	}
	if err := s.client.HSet(ctx, s.nodeKey(parts[:len(parts)-1]), parts[len(parts)-1], string(enc)).Err(); err != nil {
		return fmt.Errorf("treestore: redis write %s: %w", path, err)
	}
	return nil
}

// Merge shallowly updates fields on the node at path, creating it if needed.
func (s *RedisStore) Merge(ctx context.Context, path string, fields map[string]any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := Encode(fields)
	if err != nil {
		return err
	}
	if err := s.register(ctx, parts); err != nil {
		return err
	}
	for k, v := range norm.(map[string]any) {
		if child, ok := v.(map[string]any); ok {
			childParts := append(append([]string{}, parts...), k)
			if err := s.deleteSubtree(ctx, childParts); err != nil {
				return err
			}
			if err := s.client.ZAdd(ctx, s.childKey(parts), redis.Z{Member: k}).Err(); err != nil {
				return fmt.Errorf("treestore: redis merge %s: %w", path, err)
			}
			if err := s.writeTree(ctx, childParts, child); err != nil {
				return err
			}
			continue
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("treestore: encode %s: %w", path, err)
		}
		if err := s.client.HSet(ctx, s.nodeKey(parts), k, string(enc)).Err(); err != nil {
			return fmt.Errorf("treestore: redis merge %s: %w", path, err)
		}
	}
	return nil
}

// Append writes value under a generated key and returns the key.
func (s *RedisStore) Append(ctx context.Context, path string, value any) (string, error) {
	key := NewKey()
	if err := s.Write(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes the subtree or leaf at path. Absent paths are a no-op.
func (s *RedisStore) Delete(ctx context.Context, path string) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	if err := s.deleteSubtree(ctx, parts); err != nil {
		return err
	}
	if len(parts) > 1 {
		parent := parts[:len(parts)-1]
		leaf := parts[len(parts)-1]
		if err := s.client.ZRem(ctx, s.childKey(parent), leaf).Err(); err != nil {
			return fmt.Errorf("treestore: redis delete %s: %w", path, err)
		}
		if err := s.client.HDel(ctx, s.nodeKey(parent), leaf).Err(); err != nil {
			return fmt.Errorf("treestore: redis delete %s: %w", path, err)
		}
	}
	return nil
}

// QueryEqual returns children of the collection at path whose field equals
// value, in creation order.
func (s *RedisStore) QueryEqual(ctx context.Context, path, field string, value any) ([]Child, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	norm, err := Encode(value)
	if err != nil {
		return nil, err
	}
	want, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("treestore: encode %s: %w", path, err)
	}
	children, err := s.client.ZRange(ctx, s.childKey(parts), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("treestore: redis query %s: %w", path, err)
	}
	var out []Child
	for _, name := range children {
		childParts := append(append([]string{}, parts...), name)
		raw, err := s.client.HGet(ctx, s.nodeKey(childParts), field).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("treestore: redis query %s: %w", path, err)
		}
		if raw != string(want) {
			continue
		}
		node, ok, err := s.readNode(ctx, childParts)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Child{Key: name, Value: node})
		}
	}
	return out, nil
}

func (s *RedisStore) readNode(ctx context.Context, parts []string) (any, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.nodeKey(parts)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("treestore: redis read %s: %w", Join(parts...), err)
	}
	children, err := s.client.ZRange(ctx, s.childKey(parts), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("treestore: redis read %s: %w", Join(parts...), err)
	}
	if len(fields) == 0 && len(children) == 0 {
		return nil, false, nil
	}
	node := make(map[string]any, len(fields)+len(children))
	for f, raw := range fields {
		v, err := decodeScalar(raw)
		if err != nil {
			return nil, false, err
		}
		node[f] = v
	}
	for _, name := range children {
		childParts := append(append([]string{}, parts...), name)
		child, ok, err := s.readNode(ctx, childParts)
		if err != nil {
			return nil, false, err
		}
		if ok {
			node[name] = child
		}
	}
	return node, true, nil
}

// register records every segment of parts in its parent's child set so the
// node is reachable from collection scans.
func (s *RedisStore) register(ctx context.Context, parts []string) error {
	for i := 1; i < len(parts); i++ {
		if err := s.client.ZAdd(ctx, s.childKey(parts[:i]), redis.Z{Member: parts[i]}).Err(); err != nil {
			return fmt.Errorf("treestore: redis register %s: %w", Join(parts...), err)
		}
	}
	return nil
}

func (s *RedisStore) writeTree(ctx context.Context, parts []string, node map[string]any) error {
	for k, v := range node {
		childParts := append(append([]string{}, parts...), k)
		if child, ok := v.(map[string]any); ok {
			if len(child) == 0 {
				continue
			}
			if err := s.client.ZAdd(ctx, s.childKey(parts), redis.Z{Member: k}).Err(); err != nil {
				return fmt.Errorf("treestore: redis write %s: %w", Join(parts...), err)
			}
			if err := s.writeTree(ctx, childParts, child); err != nil {
				return err
			}
			continue
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("treestore: encode %s: %w", Join(childParts...), err)
		}
		if err := s.client.HSet(ctx, s.nodeKey(parts), k, string(enc)).Err(); err != nil {
			return fmt.Errorf("treestore: redis write %s: %w", Join(parts...), err)
		}
	}
	return nil
}

func (s *RedisStore) deleteSubtree(ctx context.Context, parts []string) error {
	children, err := s.client.ZRange(ctx, s.childKey(parts), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("treestore: redis delete %s: %w", Join(parts...), err)
	}
	for _, name := range children {
		childParts := append(append([]string{}, parts...), name)
		if err := s.deleteSubtree(ctx, childParts); err != nil {
			return err
		}
	}
	if err := s.client.Del(ctx, s.nodeKey(parts), s.childKey(parts)).Err(); err != nil {
		return fmt.Errorf("treestore: redis delete %s: %w", Join(parts...), err)
	}
	return nil
}

func decodeScalar(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("treestore: decode scalar %q: %w", raw, err)
	}
	return v, nil
}
