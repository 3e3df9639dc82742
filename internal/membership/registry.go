// Package membership owns the project member list and its invariant: the
// owner is always present in members at the manager role. No other code path
// writes the members or owner fields.
package membership

import (
	"context"
	"errors"
	"time"

	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
	"tracker/api/internal/repo"
)

type UserLoader interface {
	ByID(ctx context.Context, id string) (model.User, error)
}

type Registry struct {
	projects *repo.Projects
	users    UserLoader
}

func NewRegistry(projects *repo.Projects, users UserLoader) *Registry {
	return &Registry{projects: projects, users: users}
}

// AddMember appends userID at the given role. Conflict if the user is
// already a member or is the owner.
func (r *Registry) AddMember(ctx context.Context, projectID, userID string, role model.ProjectRole) (model.Project, error) {
	if !role.Valid() {
		return model.Project{}, apperr.Validation("invalid member role", []string{"role must be one of manager, developer, viewer"})
	}
	if _, err := r.users.ByID(ctx, userID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return model.Project{}, apperr.NotFound("user not found")
		}
		return model.Project{}, err
	}

	project, err := r.load(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if userID == project.OwnerID {
		return model.Project{}, apperr.Conflict("user is the project owner")
	}
	for _, member := range project.Members {
		if member.UserID == userID {
			return model.Project{}, apperr.Conflict("user is already a member")
		}
	}

	project.Members = append(project.Members, model.Member{
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	})
	return r.save(ctx, project)
}

// RemoveMember drops userID from members. Removing the owner is an invalid
// operation; removing a non-member is a no-op, not an error, so callers must
// not infer prior presence from success.
func (r *Registry) RemoveMember(ctx context.Context, projectID, userID string) (model.Project, error) {
	project, err := r.load(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if userID == project.OwnerID {
		return model.Project{}, apperr.InvalidOperation("cannot remove the project owner")
	}

	kept := make([]model.Member, 0, len(project.Members))
	for _, member := range project.Members {
		if member.UserID != userID {
			kept = append(kept, member)
		}
	}
	project.Members = kept
	return r.save(ctx, project)
}

// UpdateMemberRole changes an existing member's role. The role is validated
// here because the store would happily persist any string.
func (r *Registry) UpdateMemberRole(ctx context.Context, projectID, userID string, role model.ProjectRole) (model.Project, error) {
	if !role.Valid() {
		return model.Project{}, apperr.Validation("invalid member role", []string{"role must be one of manager, developer, viewer"})
	}

	project, err := r.load(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	if userID == project.OwnerID {
		return model.Project{}, apperr.InvalidOperation("cannot change the owner's role")
	}

	found := false
	for i := range project.Members {
		if project.Members[i].UserID == userID {
			project.Members[i].Role = role
			found = true
			break
		}
	}
	if !found {
		return model.Project{}, apperr.NotFound("user is not a member")
	}
	return r.save(ctx, project)
}

// TransferOwnership makes newOwnerID the owner. With removeFormer the
// previous owner also leaves the member list, which is how user-deletion
// inheritance works.
func (r *Registry) TransferOwnership(ctx context.Context, projectID, newOwnerID string, removeFormer bool) (model.Project, error) {
	project, err := r.load(ctx, projectID)
	if err != nil {
		return model.Project{}, err
	}
	formerOwner := project.OwnerID
	if formerOwner == newOwnerID {
		return project, nil
	}
	project.OwnerID = newOwnerID

	if removeFormer {
		kept := make([]model.Member, 0, len(project.Members))
		for _, member := range project.Members {
			if member.UserID != formerOwner {
				kept = append(kept, member)
			}
		}
		project.Members = kept
	}
	return r.save(ctx, project)
}

// EnsureOwnerMember repairs and returns the members slice so that the owner
// appears exactly once, at manager. Used by the registry after every
// mutation and by project creation.
func EnsureOwnerMember(project *model.Project) {
	now := time.Now().UTC()
	kept := make([]model.Member, 0, len(project.Members))
	seen := false
	for _, member := range project.Members {
		if member.UserID == project.OwnerID {
			if seen {
				continue
			}
			member.Role = model.RoleManager
			seen = true
		}
		kept = append(kept, member)
	}
	if !seen {
		kept = append([]model.Member{{UserID: project.OwnerID, Role: model.RoleManager, JoinedAt: now}}, kept...)
	}
	project.Members = kept
}

func (r *Registry) load(ctx context.Context, projectID string) (model.Project, error) {
	project, err := r.projects.ByID(ctx, projectID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Project{}, apperr.NotFound("project not found")
	}
	if err != nil {
		return model.Project{}, err
	}
	return project, nil
}

func (r *Registry) save(ctx context.Context, project model.Project) (model.Project, error) {
	EnsureOwnerMember(&project)
	project.UpdatedAt = time.Now().UTC()
	if err := r.projects.Update(ctx, project); err != nil {
		return model.Project{}, err
	}
	return project, nil
}
