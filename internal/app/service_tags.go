package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"tracker/api/internal/access"
	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
	"tracker/api/internal/util"
)

type TagInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

const defaultTagColor = "#6b7280"

// CreateTag creates a tag in a project. Names are unique per project; the
// check-then-insert runs under the project's tag lock so concurrent creates
// of the same name collapse to one winner and one Conflict.
func (s *Service) CreateTag(ctx context.Context, actor access.Actor, projectID string, input TagInput) (map[string]any, error) {
	project, err := s.policy.CheckProject(ctx, actor, projectID, model.RoleDeveloper)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	color := strings.TrimSpace(input.Color)
	if color == "" {
		color = defaultTagColor
	}
	messages := model.Check(map[string]string{
		"name":  name,
		"color": color,
	}, model.TagConstraints)
	if len(messages) > 0 {
		return nil, apperr.Validation("invalid tag", messages)
	}

	unlock := s.tagLocks.Lock(project.ID)
	defer unlock()

	if _, err := s.repos.Tags.ByProjectAndName(ctx, project.ID, name); err == nil {
		return nil, apperr.Conflict("tag name already in use")
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}

	tag := model.Tag{
		ID:        util.NewID("tag"),
		ProjectID: project.ID,
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.Tags.Insert(ctx, tag); err != nil {
		return nil, err
	}
	return tagPayload(tag), nil
}

func (s *Service) ListTags(ctx context.Context, actor access.Actor, projectID string) (map[string]any, error) {
	if _, err := s.policy.CheckProject(ctx, actor, projectID, access.AnyMember); err != nil {
		return nil, err
	}
	tags, err := s.repos.Tags.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		payloads = append(payloads, tagPayload(tag))
	}
	return map[string]any{"tags": payloads}, nil
}

// UpdateTag renames or recolors a tag. Renames re-check uniqueness under
// the same lock as creation.
func (s *Service) UpdateTag(ctx context.Context, actor access.Actor, tagID string, input TagInput) (map[string]any, error) {
	tag, _, err := s.loadTagForActor(ctx, actor, tagID, model.RoleDeveloper)
	if err != nil {
		return nil, err
	}

	values := map[string]string{}
	name := strings.TrimSpace(input.Name)
	color := strings.TrimSpace(input.Color)
	if name != "" {
		values["name"] = name
	}
	if color != "" {
		values["color"] = color
	}
	if messages := model.Check(values, model.TagConstraints); len(messages) > 0 {
		return nil, apperr.Validation("invalid tag", messages)
	}

	unlock := s.tagLocks.Lock(tag.ProjectID)
	defer unlock()

	if name != "" && name != tag.Name {
		if existing, err := s.repos.Tags.ByProjectAndName(ctx, tag.ProjectID, name); err == nil && existing.ID != tag.ID {
			return nil, apperr.Conflict("tag name already in use")
		} else if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		tag.Name = name
	}
	if color != "" {
		tag.Color = color
	}

	if err := s.repos.Tags.Update(ctx, tag); err != nil {
		return nil, err
	}
	return tagPayload(tag), nil
}

// DeleteTag removes a tag. A tag still attached to items is refused unless
// force is set, in which case it is detached everywhere first.
func (s *Service) DeleteTag(ctx context.Context, actor access.Actor, tagID string, force bool) error {
	tag, _, err := s.loadTagForActor(ctx, actor, tagID, model.RoleManager)
	if err != nil {
		return err
	}
	return s.cascades.DeleteTag(ctx, tag.ID, force)
}

// MostUsedTags returns up to limit tags ordered by usage count, busiest
// first, name as tie-break.
func (s *Service) MostUsedTags(ctx context.Context, actor access.Actor, projectID string, limit int) (map[string]any, error) {
	if _, err := s.policy.CheckProject(ctx, actor, projectID, access.AnyMember); err != nil {
		return nil, err
	}
	tags, err := s.repos.Tags.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].UsageCount != tags[j].UsageCount {
			return tags[i].UsageCount > tags[j].UsageCount
		}
		return tags[i].Name < tags[j].Name
	})
	if limit <= 0 || limit > len(tags) {
		limit = len(tags)
	}
	payloads := make([]map[string]any, 0, limit)
	for _, tag := range tags[:limit] {
		payloads = append(payloads, tagPayload(tag))
	}
	return map[string]any{"tags": payloads}, nil
}

// RecountTag recomputes a tag's usage counter from the items that carry it.
// Admin-only repair for counters that drifted after a partial failure.
func (s *Service) RecountTag(ctx context.Context, actor access.Actor, tagID string) (map[string]any, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins recount tag usage")
	}
	tag, err := s.cascades.RecountTagUsage(ctx, tagID)
	if err != nil {
		return nil, err
	}
	return tagPayload(tag), nil
}

// ProjectStats summarizes a project: item counts by status, member and tag
// counts, and the busiest tags.
func (s *Service) ProjectStats(ctx context.Context, actor access.Actor, projectID string) (map[string]any, error) {
	project, err := s.policy.CheckProject(ctx, actor, projectID, access.AnyMember)
	if err != nil {
		return nil, err
	}
	items, err := s.repos.Items.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tags, err := s.repos.Tags.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byStatus := map[string]int{
		string(model.StatusTodo):       0,
		string(model.StatusInProgress): 0,
		string(model.StatusInReview):   0,
		string(model.StatusDone):       0,
	}
	for _, item := range items {
		byStatus[string(item.Status)]++
	}

	sort.Slice(tags, func(i, j int) bool {
		if tags[i].UsageCount != tags[j].UsageCount {
			return tags[i].UsageCount > tags[j].UsageCount
		}
		return tags[i].Name < tags[j].Name
	})
	top := tags
	if len(top) > 5 {
		top = top[:5]
	}
	topPayloads := make([]map[string]any, 0, len(top))
	for _, tag := range top {
		topPayloads = append(topPayloads, tagPayload(tag))
	}

	return map[string]any{
		"projectId":     project.ID,
		"totalItems":    len(items),
		"itemsByStatus": byStatus,
		"memberCount":   len(project.Members),
		"tagCount":      len(tags),
		"mostUsedTags":  topPayloads,
	}, nil
}

func (s *Service) loadTagForActor(ctx context.Context, actor access.Actor, tagID string, required model.ProjectRole) (model.Tag, model.Project, error) {
	tag, err := s.repos.Tags.ByID(ctx, tagID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Tag{}, model.Project{}, apperr.NotFound("tag not found")
	}
	if err != nil {
		return model.Tag{}, model.Project{}, err
	}
	project, err := s.policy.CheckProject(ctx, actor, tag.ProjectID, required)
	if err != nil {
		return model.Tag{}, model.Project{}, err
	}
	return tag, project, nil
}

func tagPayload(tag model.Tag) map[string]any {
	return map[string]any{
		"id":         tag.ID,
		"projectId":  tag.ProjectID,
		"name":       tag.Name,
		"color":      tag.Color,
		"usageCount": tag.UsageCount,
		"createdAt":  tag.CreatedAt.Format(time.RFC3339),
	}
}
