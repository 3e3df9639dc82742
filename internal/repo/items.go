package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

type Items struct {
	coll docstore.Collection
}

func (r *Items) Insert(ctx context.Context, item model.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	return r.coll.Insert(ctx, item.ID, doc)
}

func (r *Items) ByID(ctx context.Context, id string) (model.Item, error) {
	doc, err := r.coll.FindByID(ctx, id)
	if err != nil {
		return model.Item{}, err
	}
	return decodeItem(doc)
}

func (r *Items) ListByProject(ctx context.Context, projectID string) ([]model.Item, error) {
	return r.find(ctx, docstore.Filter{"projectId": projectID})
}

func (r *Items) ListByAssignee(ctx context.Context, userID string) ([]model.Item, error) {
	return r.find(ctx, docstore.Filter{"assigneeId": userID})
}

func (r *Items) ListByReporter(ctx context.Context, userID string) ([]model.Item, error) {
	return r.find(ctx, docstore.Filter{"reporterId": userID})
}

// ListByTag returns the project's items currently referencing tagID.
func (r *Items) ListByTag(ctx context.Context, projectID, tagID string) ([]model.Item, error) {
	items, err := r.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	matches := make([]model.Item, 0)
	for _, item := range items {
		if item.HasTag(tagID) {
			matches = append(matches, item)
		}
	}
	return matches, nil
}

func (r *Items) CountByProject(ctx context.Context, projectID string) (int, error) {
	return r.coll.Count(ctx, docstore.Filter{"projectId": projectID})
}

func (r *Items) Update(ctx context.Context, item model.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	return r.coll.Update(ctx, item.ID, doc)
}

func (r *Items) Remove(ctx context.Context, id string) error {
	return r.coll.Remove(ctx, id)
}

func (r *Items) find(ctx context.Context, filter docstore.Filter) ([]model.Item, error) {
	docs, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]model.Item, 0, len(docs))
	for _, doc := range docs {
		item, err := decodeItem(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem(doc json.RawMessage) (model.Item, error) {
	var item model.Item
	if err := json.Unmarshal(doc, &item); err != nil {
		return model.Item{}, fmt.Errorf("unmarshal item: %w", err)
	}
	if item.TagIDs == nil {
		item.TagIDs = make([]string, 0)
	}
	return item, nil
}
