package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"tracker/api/internal/access"
	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/membership"
	"tracker/api/internal/model"
	"tracker/api/internal/util"
)

type CreateProjectInput struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Key         *string `json:"key"`
}

type MemberInput struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// CreateProject registers a project owned by the actor. Global viewers
// cannot create projects; everyone else can.
func (s *Service) CreateProject(ctx context.Context, actor access.Actor, input CreateProjectInput) (map[string]any, error) {
	if actor.Role == model.GlobalViewer {
		return nil, apperr.Forbidden("viewers cannot create projects")
	}

	name := strings.TrimSpace(input.Name)
	key := strings.ToUpper(strings.TrimSpace(input.Key))
	messages := model.Check(map[string]string{
		"name":        name,
		"key":         key,
		"description": input.Description,
	}, model.ProjectConstraints)
	if len(messages) > 0 {
		return nil, apperr.Validation("invalid project", messages)
	}

	// Key uniqueness is re-checked immediately before insert; a racing
	// duplicate surfaces as Conflict and the caller retries with a new key.
	if _, err := s.repos.Projects.ByKey(ctx, key); err == nil {
		return nil, apperr.Conflict("project key already in use")
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	project := model.Project{
		ID:          util.NewID("prj"),
		Name:        name,
		Key:         key,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     actor.ID,
		Status:      model.ProjectActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	membership.EnsureOwnerMember(&project)

	if err := s.repos.Projects.Insert(ctx, project); err != nil {
		if errors.Is(err, docstore.ErrDuplicateID) {
			return nil, apperr.Conflict("project already exists")
		}
		return nil, err
	}
	return s.projectPayload(ctx, project)
}

// ListProjects returns projects visible to the actor: all of them for
// admins, member-of otherwise.
func (s *Service) ListProjects(ctx context.Context, actor access.Actor, page, perPage int) (map[string]any, error) {
	var (
		projects []model.Project
		err      error
	)
	if actor.IsAdmin() {
		projects, err = s.repos.Projects.List(ctx)
	} else {
		projects, err = s.repos.Projects.ListByMember(ctx, actor.ID)
	}
	if err != nil {
		return nil, err
	}

	pageInfo, start, end := paginate(len(projects), page, perPage)
	items := make([]map[string]any, 0, end-start)
	for _, project := range projects[start:end] {
		payload, err := s.projectPayload(ctx, project)
		if err != nil {
			return nil, err
		}
		items = append(items, payload)
	}
	return map[string]any{"projects": items, "pagination": pageInfo}, nil
}

func (s *Service) GetProject(ctx context.Context, actor access.Actor, projectID string) (map[string]any, error) {
	project, err := s.policy.CheckProject(ctx, actor, projectID, access.AnyMember)
	if err != nil {
		return nil, err
	}
	return s.projectPayload(ctx, project)
}

// UpdateProject edits name/description/status. The key is immutable after
// creation, so sending one is rejected rather than ignored.
func (s *Service) UpdateProject(ctx context.Context, actor access.Actor, projectID string, input UpdateProjectInput) (map[string]any, error) {
	project, err := s.policy.CheckProject(ctx, actor, projectID, model.RoleManager)
	if err != nil {
		return nil, err
	}
	if input.Key != nil && strings.ToUpper(strings.TrimSpace(*input.Key)) != project.Key {
		return nil, apperr.Validation("project key is immutable", []string{"key cannot be changed after creation"})
	}

	values := map[string]string{}
	if input.Name != nil {
		values["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		values["description"] = *input.Description
	}
	if input.Status != nil {
		values["status"] = strings.TrimSpace(*input.Status)
	}
	if messages := model.Check(values, model.ProjectConstraints); len(messages) > 0 {
		return nil, apperr.Validation("invalid project", messages)
	}

	if name, ok := values["name"]; ok {
		project.Name = name
	}
	if input.Description != nil {
		project.Description = strings.TrimSpace(*input.Description)
	}
	if status, ok := values["status"]; ok {
		project.Status = model.ProjectStatus(status)
	}

	project.UpdatedAt = time.Now().UTC()
	if err := s.repos.Projects.Update(ctx, project); err != nil {
		return nil, err
	}
	return s.projectPayload(ctx, project)
}

// DeleteProject runs the project cascade and drops the key watermark.
func (s *Service) DeleteProject(ctx context.Context, actor access.Actor, projectID string) error {
	if _, err := s.policy.CheckProject(ctx, actor, projectID, model.RoleManager); err != nil {
		return err
	}
	if err := s.cascades.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.keys.Forget(projectID)
	return nil
}

func (s *Service) AddMember(ctx context.Context, actor access.Actor, projectID string, input MemberInput) (map[string]any, error) {
	if _, err := s.policy.CheckProject(ctx, actor, projectID, model.RoleManager); err != nil {
		return nil, err
	}
	project, err := s.registry.AddMember(ctx, projectID, strings.TrimSpace(input.UserID), model.ProjectRole(input.Role))
	if err != nil {
		return nil, err
	}
	return s.projectPayload(ctx, project)
}

func (s *Service) RemoveMember(ctx context.Context, actor access.Actor, projectID, userID string) (map[string]any, error) {
	if _, err := s.policy.CheckProject(ctx, actor, projectID, model.RoleManager); err != nil {
		return nil, err
	}
	project, err := s.registry.RemoveMember(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	return s.projectPayload(ctx, project)
}

func (s *Service) UpdateMemberRole(ctx context.Context, actor access.Actor, projectID, userID string, role string) (map[string]any, error) {
	if _, err := s.policy.CheckProject(ctx, actor, projectID, model.RoleManager); err != nil {
		return nil, err
	}
	project, err := s.registry.UpdateMemberRole(ctx, projectID, userID, model.ProjectRole(role))
	if err != nil {
		return nil, err
	}
	return s.projectPayload(ctx, project)
}

func (s *Service) projectPayload(ctx context.Context, project model.Project) (map[string]any, error) {
	members := make([]map[string]any, 0, len(project.Members))
	for _, member := range project.Members {
		entry := map[string]any{
			"userId":   member.UserID,
			"role":     member.Role,
			"joinedAt": member.JoinedAt.Format(time.RFC3339),
			"isOwner":  member.UserID == project.OwnerID,
		}
		if user, err := s.repos.Users.ByID(ctx, member.UserID); err == nil {
			entry["username"] = user.Username
		}
		members = append(members, entry)
	}
	return map[string]any{
		"id":          project.ID,
		"name":        project.Name,
		"key":         project.Key,
		"description": project.Description,
		"ownerId":     project.OwnerID,
		"status":      project.Status,
		"members":     members,
		"createdAt":   project.CreatedAt.Format(time.RFC3339),
		"updatedAt":   project.UpdatedAt.Format(time.RFC3339),
	}, nil
}
