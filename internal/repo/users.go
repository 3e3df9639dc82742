package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

type Users struct {
	coll docstore.Collection
}

func (r *Users) Insert(ctx context.Context, user model.User) error {
	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return r.coll.Insert(ctx, user.ID, doc)
}

func (r *Users) ByID(ctx context.Context, id string) (model.User, error) {
	doc, err := r.coll.FindByID(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	return decodeUser(doc)
}

func (r *Users) ByUsername(ctx context.Context, username string) (model.User, error) {
	return r.findOne(ctx, docstore.Filter{"username": username})
}

func (r *Users) ByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, docstore.Filter{"email": email})
}

func (r *Users) List(ctx context.Context) ([]model.User, error) {
	return r.find(ctx, docstore.Filter{})
}

func (r *Users) ListByRole(ctx context.Context, role model.GlobalRole) ([]model.User, error) {
	return r.find(ctx, docstore.Filter{"role": string(role)})
}

func (r *Users) Update(ctx context.Context, user model.User) error {
	doc, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return r.coll.Update(ctx, user.ID, doc)
}

func (r *Users) Remove(ctx context.Context, id string) error {
	return r.coll.Remove(ctx, id)
}

func (r *Users) Count(ctx context.Context) (int, error) {
	return r.coll.Count(ctx, docstore.Filter{})
}

func (r *Users) findOne(ctx context.Context, filter docstore.Filter) (model.User, error) {
	users, err := r.find(ctx, filter)
	if err != nil {
		return model.User{}, err
	}
	if len(users) == 0 {
		return model.User{}, docstore.ErrNotFound
	}
	return users[0], nil
}

func (r *Users) find(ctx context.Context, filter docstore.Filter) ([]model.User, error) {
	docs, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(docs))
	for _, doc := range docs {
		user, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func decodeUser(doc json.RawMessage) (model.User, error) {
	var user model.User
	if err := json.Unmarshal(doc, &user); err != nil {
		return model.User{}, fmt.Errorf("unmarshal user: %w", err)
	}
	return user, nil
}
