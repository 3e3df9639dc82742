package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

type Projects struct {
	coll docstore.Collection
}

func (r *Projects) Insert(ctx context.Context, project model.Project) error {
	doc, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	return r.coll.Insert(ctx, project.ID, doc)
}

func (r *Projects) ByID(ctx context.Context, id string) (model.Project, error) {
	doc, err := r.coll.FindByID(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	return decodeProject(doc)
}

// ByKey looks up a project by its unique short key.
func (r *Projects) ByKey(ctx context.Context, key string) (model.Project, error) {
	projects, err := r.find(ctx, docstore.Filter{"key": key})
	if err != nil {
		return model.Project{}, err
	}
	if len(projects) == 0 {
		return model.Project{}, docstore.ErrNotFound
	}
	return projects[0], nil
}

func (r *Projects) List(ctx context.Context) ([]model.Project, error) {
	return r.find(ctx, docstore.Filter{})
}

func (r *Projects) ListByOwner(ctx context.Context, ownerID string) ([]model.Project, error) {
	return r.find(ctx, docstore.Filter{"ownerId": ownerID})
}

// ListByMember returns projects whose member list contains userID. The store
// only matches top-level equality, so the membership walk happens here.
func (r *Projects) ListByMember(ctx context.Context, userID string) ([]model.Project, error) {
	projects, err := r.find(ctx, docstore.Filter{})
	if err != nil {
		return nil, err
	}
	matches := make([]model.Project, 0)
	for _, project := range projects {
		if project.HasMember(userID) {
			matches = append(matches, project)
		}
	}
	return matches, nil
}

func (r *Projects) Update(ctx context.Context, project model.Project) error {
	doc, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	return r.coll.Update(ctx, project.ID, doc)
}

func (r *Projects) Remove(ctx context.Context, id string) error {
	return r.coll.Remove(ctx, id)
}

func (r *Projects) find(ctx context.Context, filter docstore.Filter) ([]model.Project, error) {
	docs, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	projects := make([]model.Project, 0, len(docs))
	for _, doc := range docs {
		project, err := decodeProject(doc)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}

func decodeProject(doc json.RawMessage) (model.Project, error) {
	var project model.Project
	if err := json.Unmarshal(doc, &project); err != nil {
		return model.Project{}, fmt.Errorf("unmarshal project: %w", err)
	}
	if project.Members == nil {
		project.Members = make([]model.Member, 0)
	}
	return project, nil
}
