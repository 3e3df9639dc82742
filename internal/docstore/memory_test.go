package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryCollectionCRUD(t *testing.T) {
	coll := NewMemoryStore().Collection("things")
	ctx := context.Background()

	if err := coll.Insert(ctx, "a", json.RawMessage(`{"id":"a","kind":"x","n":1}`)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := coll.Insert(ctx, "a", json.RawMessage(`{"id":"a"}`)); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate Insert = %v, want ErrDuplicateID", err)
	}

	doc, err := coll.FindByID(ctx, "a")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(doc, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["kind"] != "x" {
		t.Fatalf("kind = %v, want x", decoded["kind"])
	}

	if err := coll.Update(ctx, "a", json.RawMessage(`{"id":"a","kind":"y","n":1}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := coll.Update(ctx, "missing", json.RawMessage(`{}`)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update missing = %v, want ErrNotFound", err)
	}

	if err := coll.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	// Remove is idempotent.
	if err := coll.Remove(ctx, "a"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := coll.FindByID(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByID after Remove = %v, want ErrNotFound", err)
	}
}

func TestMemoryCollectionFind(t *testing.T) {
	coll := NewMemoryStore().Collection("things")
	ctx := context.Background()

	docs := map[string]string{
		"c": `{"id":"c","kind":"x","n":2}`,
		"a": `{"id":"a","kind":"x","n":1}`,
		"b": `{"id":"b","kind":"y","n":1}`,
	}
	for id, doc := range docs {
		if err := coll.Insert(ctx, id, json.RawMessage(doc)); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	all, err := coll.Find(ctx, Filter{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Find all = %d docs, want 3", len(all))
	}
	// Stable id order.
	var first map[string]any
	_ = json.Unmarshal(all[0], &first)
	if first["id"] != "a" {
		t.Fatalf("first doc id = %v, want a", first["id"])
	}

	xs, err := coll.Find(ctx, Filter{"kind": "x"})
	if err != nil {
		t.Fatalf("Find kind=x: %v", err)
	}
	if len(xs) != 2 {
		t.Fatalf("Find kind=x = %d docs, want 2", len(xs))
	}

	ones, err := coll.Find(ctx, Filter{"n": 1})
	if err != nil {
		t.Fatalf("Find n=1: %v", err)
	}
	if len(ones) != 2 {
		t.Fatalf("Find n=1 = %d docs, want 2 (numeric filter values must match)", len(ones))
	}

	count, err := coll.Count(ctx, Filter{"kind": "y"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("Count kind=y = %d, want 1", count)
	}
}
