// Package docstore abstracts the backing document store. Collections hold
// JSON documents keyed by id; there are no transactions, no foreign keys and
// no cascading deletes. Everything above this package must build its own
// consistency out of these primitives.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound    = errors.New("docstore: not found")
	ErrDuplicateID = errors.New("docstore: duplicate id")
)

// Filter matches documents whose named top-level fields equal the given
// values. An empty filter matches everything. Richer queries are done in Go
// by the repositories; the store is deliberately dumb.
type Filter map[string]any

// Collection is the async collection interface consumed by the typed
// repositories. Find returns documents in stable id order. Remove is
// idempotent: removing an absent document is not an error, which is what
// makes cascade steps retryable.
type Collection interface {
	Find(ctx context.Context, filter Filter) ([]json.RawMessage, error)
	FindByID(ctx context.Context, id string) (json.RawMessage, error)
	Insert(ctx context.Context, id string, doc json.RawMessage) error
	Update(ctx context.Context, id string, doc json.RawMessage) error
	Remove(ctx context.Context, id string) error
	Count(ctx context.Context, filter Filter) (int, error)
}

// Store hands out named collections and reports backend health.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close() error
}
