package hostcap

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// DefaultMaxEntries bounds the KV store when no limit is configured.
const DefaultMaxEntries = 10000

// KV is an in-memory scratch store a host can share with scripts across
// calls. It is not persisted and not visible to scripts unless installed.
type KV struct {
	mu         sync.RWMutex
	data       map[string]string
	maxEntries int
}

// NewKV returns an empty store. maxEntries <= 0 selects DefaultMaxEntries.
func NewKV(maxEntries int) *KV {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &KV{data: make(map[string]string), maxEntries: maxEntries}
}

// Get returns the value stored under key.
func (s *KV) Get(key string) (string, bool) {
	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	return v, ok
}

// Set stores value under key.
func (s *KV) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxEntries {
		return errors.New("kv store full")
	}
	s.data[key] = value
	return nil
}

// Delete removes key.
func (s *KV) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

// Keys returns all stored keys in sorted order.
func (s *KV) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Install registers the store's operations on a host function registry,
// exposing them to scripts as host.kv_get, host.kv_set, host.kv_delete,
// and host.kv_keys.
func (s *KV) Install(r *Registry) {
	r.Register("kv_get", func(ctx context.Context, args map[string]any) (any, error) {
		key, ok := args["key"].(string)
		if !ok {
			return nil, errors.New("key required")
		}
		v, exists := s.Get(key)
		if !exists {
			return nil, nil
		}
		return v, nil
	})
	r.Register("kv_set", func(ctx context.Context, args map[string]any) (any, error) {
		key, ok := args["key"].(string)
		if !ok {
			return nil, errors.New("key required")
		}
		value, ok := args["value"].(string)
		if !ok {
			return nil, errors.New("value required")
		}
		return nil, s.Set(key, value)
	})
	r.Register("kv_delete", func(ctx context.Context, args map[string]any) (any, error) {
		key, ok := args["key"].(string)
		if !ok {
			return nil, errors.New("key required")
		}
		s.Delete(key)
		return nil, nil
	})
	r.Register("kv_keys", func(ctx context.Context, args map[string]any) (any, error) {
		return s.Keys(), nil
	})
}
