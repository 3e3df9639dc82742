package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

type Tags struct {
	coll docstore.Collection
}

func (r *Tags) Insert(ctx context.Context, tag model.Tag) error {
	doc, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("marshal tag: %w", err)
	}
	return r.coll.Insert(ctx, tag.ID, doc)
}

func (r *Tags) ByID(ctx context.Context, id string) (model.Tag, error) {
	doc, err := r.coll.FindByID(ctx, id)
	if err != nil {
		return model.Tag{}, err
	}
	return decodeTag(doc)
}

// ByProjectAndName resolves a tag by its case-sensitive name within a
// project.
func (r *Tags) ByProjectAndName(ctx context.Context, projectID, name string) (model.Tag, error) {
	tags, err := r.find(ctx, docstore.Filter{"projectId": projectID, "name": name})
	if err != nil {
		return model.Tag{}, err
	}
	if len(tags) == 0 {
		return model.Tag{}, docstore.ErrNotFound
	}
	return tags[0], nil
}

func (r *Tags) ListByProject(ctx context.Context, projectID string) ([]model.Tag, error) {
	return r.find(ctx, docstore.Filter{"projectId": projectID})
}

func (r *Tags) Update(ctx context.Context, tag model.Tag) error {
	doc, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("marshal tag: %w", err)
	}
	return r.coll.Update(ctx, tag.ID, doc)
}

func (r *Tags) Remove(ctx context.Context, id string) error {
	return r.coll.Remove(ctx, id)
}

func (r *Tags) find(ctx context.Context, filter docstore.Filter) ([]model.Tag, error) {
	docs, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	tags := make([]model.Tag, 0, len(docs))
	for _, doc := range docs {
		tag, err := decodeTag(doc)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func decodeTag(doc json.RawMessage) (model.Tag, error) {
	var tag model.Tag
	if err := json.Unmarshal(doc, &tag); err != nil {
		return model.Tag{}, fmt.Errorf("unmarshal tag: %w", err)
	}
	return tag, nil
}
