package access

import (
	"context"
	"testing"

	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
	"tracker/api/internal/repo"
)

func testProject() *model.Project {
	return &model.Project{
		ID:      "prj_1",
		Name:    "Alpha",
		Key:     "ALPHA",
		OwnerID: "usr_owner",
		Members: []model.Member{
			{UserID: "usr_owner", Role: model.RoleManager},
			{UserID: "usr_manager", Role: model.RoleManager},
			{UserID: "usr_dev", Role: model.RoleDeveloper},
			{UserID: "usr_viewer", Role: model.RoleViewer},
		},
	}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name     string
		actor    Actor
		required model.ProjectRole
		allow    bool
	}{
		{name: "viewer reads", actor: Actor{ID: "usr_viewer"}, required: AnyMember, allow: true},
		{name: "viewer cannot develop", actor: Actor{ID: "usr_viewer"}, required: model.RoleDeveloper, allow: false},
		{name: "developer develops", actor: Actor{ID: "usr_dev"}, required: model.RoleDeveloper, allow: true},
		{name: "developer cannot manage", actor: Actor{ID: "usr_dev"}, required: model.RoleManager, allow: false},
		{name: "manager manages", actor: Actor{ID: "usr_manager"}, required: model.RoleManager, allow: true},
		{name: "owner manages", actor: Actor{ID: "usr_owner"}, required: model.RoleManager, allow: true},
		{name: "stranger denied membership", actor: Actor{ID: "usr_nobody"}, required: AnyMember, allow: false},
		{name: "admin bypasses role gates", actor: Actor{ID: "usr_root", Role: model.GlobalAdmin}, required: model.RoleManager, allow: true},
		{name: "global manager is not project manager", actor: Actor{ID: "usr_nobody", Role: model.GlobalManager}, required: AnyMember, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.actor, testProject(), tc.required)
			if tc.allow && err != nil {
				t.Fatalf("Check() = %v, want allow", err)
			}
			if !tc.allow && !apperr.IsForbidden(err) {
				t.Fatalf("Check() = %v, want Forbidden", err)
			}
		})
	}
}

func TestCheckOwnerWithoutMemberEntry(t *testing.T) {
	project := testProject()
	project.Members = nil

	if err := Check(Actor{ID: "usr_owner"}, project, model.RoleManager); err != nil {
		t.Fatalf("owner without member entry denied: %v", err)
	}
}

func TestCheckProjectMissing(t *testing.T) {
	store := docstore.NewMemoryStore()
	policy := NewPolicy(repo.New(store).Projects)

	admin := Actor{ID: "usr_root", Role: model.GlobalAdmin}
	_, err := policy.CheckProject(context.Background(), admin, "prj_missing", AnyMember)
	if !apperr.IsNotFound(err) {
		t.Fatalf("CheckProject() = %v, want NotFound even for admins", err)
	}
}

func TestCheckComment(t *testing.T) {
	project := testProject()
	author := "usr_viewer"
	comment := &model.Comment{ID: "cmt_1", AuthorID: &author}

	if err := CheckComment(Actor{ID: "usr_viewer"}, comment, project); err != nil {
		t.Fatalf("author denied own comment: %v", err)
	}
	if err := CheckComment(Actor{ID: "usr_manager"}, comment, project); err != nil {
		t.Fatalf("manager denied foreign comment: %v", err)
	}
	if err := CheckComment(Actor{ID: "usr_dev"}, comment, project); !apperr.IsForbidden(err) {
		t.Fatalf("developer editing foreign comment = %v, want Forbidden", err)
	}

	anonymous := &model.Comment{ID: "cmt_2"}
	if err := CheckComment(Actor{ID: "usr_dev"}, anonymous, project); !apperr.IsForbidden(err) {
		t.Fatalf("developer editing anonymized comment = %v, want Forbidden", err)
	}
}
