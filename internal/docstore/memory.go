package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps collections in process memory. It backs tests and local
// development; semantics match the production backends (stable id order,
// idempotent Remove, duplicate-id rejection).
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[name]
	if !ok {
		coll = &memoryCollection{docs: make(map[string]json.RawMessage)}
		s.collections[name] = coll
	}
	return coll
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

type memoryCollection struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

func (c *memoryCollection) Find(_ context.Context, filter Filter) ([]json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	matches := make([]json.RawMessage, 0)
	for _, id := range ids {
		ok, err := matchesFilter(c.docs[id], filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, cloneDoc(c.docs[id]))
		}
	}
	return matches, nil
}

func (c *memoryCollection) FindByID(_ context.Context, id string) (json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (c *memoryCollection) Insert(_ context.Context, id string, doc json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; exists {
		return ErrDuplicateID
	}
	c.docs[id] = cloneDoc(doc)
	return nil
}

func (c *memoryCollection) Update(_ context.Context, id string, doc json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.docs[id]; !exists {
		return ErrNotFound
	}
	c.docs[id] = cloneDoc(doc)
	return nil
}

func (c *memoryCollection) Remove(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, id)
	return nil
}

func (c *memoryCollection) Count(ctx context.Context, filter Filter) (int, error) {
	docs, err := c.Find(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func matchesFilter(doc json.RawMessage, filter Filter) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false, err
	}
	for key, want := range filter {
		if !valueEqual(fields[key], want) {
			return false, nil
		}
	}
	return true, nil
}

// valueEqual compares a decoded JSON value against a filter value supplied
// as a Go literal. Numbers decode as float64, so numeric filter values are
// normalized before comparing.
func valueEqual(got, want any) bool {
	switch w := want.(type) {
	case int:
		f, ok := got.(float64)
		return ok && f == float64(w)
	case int64:
		f, ok := got.(float64)
		return ok && f == float64(w)
	case float64:
		f, ok := got.(float64)
		return ok && f == w
	case nil:
		return got == nil
	default:
		return got == want
	}
}

func cloneDoc(doc json.RawMessage) json.RawMessage {
	clone := make(json.RawMessage, len(doc))
	copy(clone, doc)
	return clone
}
