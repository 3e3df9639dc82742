package model

import (
	"strings"
	"testing"
)

func TestCheckUsers(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]string
		want   int
	}{
		{name: "valid", values: map[string]string{"username": "alice", "email": "alice@example.com"}, want: 0},
		{name: "missing username", values: map[string]string{"username": "", "email": "alice@example.com"}, want: 1},
		{name: "short username", values: map[string]string{"username": "al", "email": "alice@example.com"}, want: 1},
		{name: "bad email", values: map[string]string{"username": "alice", "email": "not-an-email"}, want: 1},
		{name: "bad role", values: map[string]string{"username": "alice", "email": "a@b.co", "role": "wizard"}, want: 1},
		{name: "partial update skips absent fields", values: map[string]string{"fullName": "Alice A"}, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Check(tc.values, UserConstraints)
			if len(got) != tc.want {
				t.Fatalf("Check() = %v, want %d messages", got, tc.want)
			}
		})
	}
}

func TestCheckProjects(t *testing.T) {
	cases := []struct {
		name   string
		values map[string]string
		want   int
	}{
		{name: "valid", values: map[string]string{"name": "Alpha", "key": "ALPHA"}, want: 0},
		{name: "lowercase key", values: map[string]string{"name": "Alpha", "key": "alpha"}, want: 1},
		{name: "key too long", values: map[string]string{"name": "Alpha", "key": "ABCDEFGHIJK"}, want: 1},
		{name: "key starts with digit", values: map[string]string{"name": "Alpha", "key": "1ALPHA"}, want: 1},
		{name: "long description", values: map[string]string{"name": "Alpha", "key": "ALPHA", "description": strings.Repeat("x", 2001)}, want: 1},
		{name: "bad status", values: map[string]string{"name": "Alpha", "key": "ALPHA", "status": "paused"}, want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Check(tc.values, ProjectConstraints)
			if len(got) != tc.want {
				t.Fatalf("Check() = %v, want %d messages", got, tc.want)
			}
		})
	}
}

func TestCheckTags(t *testing.T) {
	if got := Check(map[string]string{"name": "backend", "color": "#7d56f4"}, TagConstraints); len(got) != 0 {
		t.Fatalf("valid tag rejected: %v", got)
	}
	if got := Check(map[string]string{"name": "backend", "color": "purple"}, TagConstraints); len(got) != 1 {
		t.Fatalf("bad color accepted: %v", got)
	}
}

func TestProjectRoleMeets(t *testing.T) {
	cases := []struct {
		role     ProjectRole
		required ProjectRole
		want     bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleDeveloper, false},
		{RoleDeveloper, RoleViewer, true},
		{RoleDeveloper, RoleManager, false},
		{RoleManager, RoleManager, true},
		{RoleManager, RoleDeveloper, true},
	}
	for _, tc := range cases {
		if got := tc.role.Meets(tc.required); got != tc.want {
			t.Fatalf("%s.Meets(%s) = %v, want %v", tc.role, tc.required, got, tc.want)
		}
	}
}

func TestMemberRoleOwnerImplied(t *testing.T) {
	project := Project{ID: "prj_1", OwnerID: "usr_owner"}
	role, ok := project.MemberRole("usr_owner")
	if !ok || role != RoleManager {
		t.Fatalf("owner role = %q ok=%v, want manager true", role, ok)
	}
	if _, ok := project.MemberRole("usr_other"); ok {
		t.Fatal("stranger reported as member")
	}
}
