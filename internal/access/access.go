// Package access decides (actor, resource, action) questions. Decisions are
// pure: the policy reads project state and returns an allow/deny error,
// never mutating anything. Every state-mutating service path consults it
// before touching a repository.
package access

import (
	"context"
	"errors"

	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

// Actor is the authenticated identity a request acts as.
type Actor struct {
	ID   string
	Role model.GlobalRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.GlobalAdmin
}

// ProjectLoader is the slice of the project repository the policy needs.
type ProjectLoader interface {
	ByID(ctx context.Context, id string) (model.Project, error)
}

type Policy struct {
	projects ProjectLoader
}

func NewPolicy(projects ProjectLoader) *Policy {
	return &Policy{projects: projects}
}

// AnyMember passed as the required role checks membership only.
const AnyMember = model.ProjectRole("")

// CheckProject resolves the project and decides whether actor may act on it
// at the required role. Global admins pass any role gate but still get
// NotFound for a missing project. Owners count as managers whether or not
// the member entry is present.
func (p *Policy) CheckProject(ctx context.Context, actor Actor, projectID string, required model.ProjectRole) (model.Project, error) {
	project, err := p.projects.ByID(ctx, projectID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Project{}, apperr.NotFound("project not found")
	}
	if err != nil {
		return model.Project{}, err
	}
	if err := Check(actor, &project, required); err != nil {
		return model.Project{}, err
	}
	return project, nil
}

// Check is the pure decision over an already-loaded project.
func Check(actor Actor, project *model.Project, required model.ProjectRole) error {
	if actor.IsAdmin() {
		return nil
	}
	role, member := project.MemberRole(actor.ID)
	if !member {
		return apperr.Forbidden("not a member of this project")
	}
	if required == AnyMember {
		return nil
	}
	if !role.Meets(required) {
		return apperr.Forbidden("insufficient project role")
	}
	return nil
}

// CheckComment decides comment edit/delete: the comment's own author is
// allowed regardless of project role; anyone else needs manager on the
// parent project (admins always pass).
func CheckComment(actor Actor, comment *model.Comment, project *model.Project) error {
	if comment.AuthorID != nil && *comment.AuthorID == actor.ID {
		return nil
	}
	return Check(actor, project, model.RoleManager)
}
