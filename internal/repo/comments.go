package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

type Comments struct {
	coll docstore.Collection
}

func (r *Comments) Insert(ctx context.Context, comment model.Comment) error {
	doc, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	return r.coll.Insert(ctx, comment.ID, doc)
}

func (r *Comments) ByID(ctx context.Context, id string) (model.Comment, error) {
	doc, err := r.coll.FindByID(ctx, id)
	if err != nil {
		return model.Comment{}, err
	}
	return decodeComment(doc)
}

func (r *Comments) ListByItem(ctx context.Context, itemID string) ([]model.Comment, error) {
	return r.find(ctx, docstore.Filter{"itemId": itemID})
}

func (r *Comments) ListByAuthor(ctx context.Context, userID string) ([]model.Comment, error) {
	return r.find(ctx, docstore.Filter{"authorId": userID})
}

func (r *Comments) CountByItem(ctx context.Context, itemID string) (int, error) {
	return r.coll.Count(ctx, docstore.Filter{"itemId": itemID})
}

func (r *Comments) Update(ctx context.Context, comment model.Comment) error {
	doc, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	return r.coll.Update(ctx, comment.ID, doc)
}

func (r *Comments) Remove(ctx context.Context, id string) error {
	return r.coll.Remove(ctx, id)
}

func (r *Comments) find(ctx context.Context, filter docstore.Filter) ([]model.Comment, error) {
	docs, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	comments := make([]model.Comment, 0, len(docs))
	for _, doc := range docs {
		comment, err := decodeComment(doc)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

func decodeComment(doc json.RawMessage) (model.Comment, error) {
	var comment model.Comment
	if err := json.Unmarshal(doc, &comment); err != nil {
		return model.Comment{}, fmt.Errorf("unmarshal comment: %w", err)
	}
	if comment.Mentions == nil {
		comment.Mentions = make([]string, 0)
	}
	if comment.ReadBy == nil {
		comment.ReadBy = make([]string, 0)
	}
	return comment, nil
}
