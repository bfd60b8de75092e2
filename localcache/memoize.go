package localcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// keyFor builds "{prefix}:{fnName}:{hex(sha256(canonicalJSON(args)))}".
func keyFor(prefix, fnName string, args any) (string, error) {
	canon, err := toCanonicalValue(args)
	if err != nil {
		return "", fmt.Errorf("localcache: canonicalize args: %w", err)
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("localcache: marshal canonical args: %w", err)
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%s:%s:%s", prefix, fnName, hex.EncodeToString(sum[:])), nil
}

// toCanonicalValue recursively sorts map keys so that JSON encoding of
// equivalent inputs (regardless of map iteration order) always produces the
// same bytes, and therefore the same cache key.
func toCanonicalValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, err
	}
	return sortValue(decoded), nil
}

func sortValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]keyedValue, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, keyedValue{Key: k, Value: sortValue(t[k])})
		}
		return ordered
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortValue(e)
		}
		return out
	default:
		return t
	}
}

type keyedValue struct {
	Key   string `json:"k"`
	Value any    `json:"v"`
}

// Memoize wraps fn with cache-aside semantics: a cache hit bypasses the call
// entirely; a miss invokes fn and stores its result (on success only) under
// a key derived from prefix, fnName, and args.
func Memoize[T any](cache *Cache, prefix, fnName string, args any, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var zero T
		key, err := keyFor(prefix, fnName, args)
		if err != nil {
			return fn(ctx)
		}
		if v, ok := cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		result, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		cache.Set(key, result)
		return result, nil
	}
}
