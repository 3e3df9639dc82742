package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"tracker/api/internal/access"
	"tracker/api/internal/apperr"
	"tracker/api/internal/config"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

// fakeSessions is an in-memory session store with the redis store's
// observable behavior.
type fakeSessions struct {
	mu      sync.Mutex
	refresh map[string]string
	revoked map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{refresh: make(map[string]string), revoked: make(map[string]bool)}
}

func (f *fakeSessions) Save(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeSessions) Lookup(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return "", docstore.ErrNotFound
	}
	return userID, nil
}

func (f *fakeSessions) Revoke(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeSessions) RevokeAccess(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeSessions) IsAccessRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
	return New(cfg, docstore.NewMemoryStore(), newFakeSessions())
}

func register(t *testing.T, s *Service, username string) (string, access.Actor) {
	t.Helper()
	payload, err := s.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	id := payload["id"].(string)
	role := payload["role"].(model.GlobalRole)
	return id, access.Actor{ID: id, Role: role}
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	s := newTestService(t)

	_, first := register(t, s, "alice")
	if first.Role != model.GlobalAdmin {
		t.Fatalf("first user role = %q, want admin", first.Role)
	}
	_, second := register(t, s, "bob")
	if second.Role != model.GlobalDeveloper {
		t.Fatalf("second user role = %q, want developer", second.Role)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := newTestService(t)
	register(t, s, "alice")

	_, err := s.Register(context.Background(), RegisterInput{Username: "alice", Email: "other@example.com", Password: "password123"})
	if !apperr.IsConflict(err) {
		t.Fatalf("duplicate username = %v, want Conflict", err)
	}
	_, err = s.Register(context.Background(), RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "password123"})
	if !apperr.IsConflict(err) {
		t.Fatalf("duplicate email = %v, want Conflict", err)
	}
	_, err = s.Register(context.Background(), RegisterInput{Username: "x", Email: "bad", Password: "short"})
	if !apperr.HasCode(err, "VALIDATION_ERROR") {
		t.Fatalf("invalid input = %v, want Validation", err)
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	register(t, s, "alice")

	if _, err := s.Login(ctx, "alice", "wrong-password"); !apperr.HasCode(err, "UNAUTHORIZED") {
		t.Fatalf("bad password = %v, want Unauthenticated", err)
	}

	session, err := s.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	parsed, err := s.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.Username != "alice" {
		t.Fatalf("session username = %q, want alice", parsed.Username)
	}

	// Email works as login too.
	if _, err := s.Login(ctx, "alice@example.com", "password123"); err != nil {
		t.Fatalf("Login by email: %v", err)
	}

	rotated, err := s.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := s.Refresh(ctx, session.RefreshToken); !apperr.HasCode(err, "UNAUTHORIZED") {
		t.Fatalf("replayed refresh token = %v, want Unauthenticated", err)
	}

	if err := s.Logout(ctx, rotated, rotated.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := s.SessionFromToken(ctx, rotated.Token); !apperr.HasCode(err, "UNAUTHORIZED") {
		t.Fatalf("revoked access token = %v, want Unauthenticated", err)
	}
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, admin := register(t, s, "alice")
	devID, dev := register(t, s, "bob")

	project, err := s.CreateProject(ctx, admin, CreateProjectInput{Name: "Alpha", Key: "ALPHA"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	projectID := project["id"].(string)

	if _, err := s.CreateProject(ctx, dev, CreateProjectInput{Name: "Other", Key: "ALPHA"}); !apperr.IsConflict(err) {
		t.Fatalf("duplicate key = %v, want Conflict", err)
	}

	// Key is immutable.
	newKey := "BETA"
	if _, err := s.UpdateProject(ctx, admin, projectID, UpdateProjectInput{Key: &newKey}); !apperr.HasCode(err, "VALIDATION_ERROR") {
		t.Fatalf("key change = %v, want Validation", err)
	}

	// Outsider cannot even see the project.
	if _, err := s.GetProject(ctx, dev, projectID); !apperr.IsForbidden(err) {
		t.Fatalf("outsider read = %v, want Forbidden", err)
	}

	if _, err := s.AddMember(ctx, admin, projectID, MemberInput{UserID: devID, Role: "developer"}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if _, err := s.GetProject(ctx, dev, projectID); err != nil {
		t.Fatalf("member read: %v", err)
	}

	// Developers manage neither members nor the project itself.
	if _, err := s.RemoveMember(ctx, dev, projectID, devID); !apperr.IsForbidden(err) {
		t.Fatalf("developer removing member = %v, want Forbidden", err)
	}
	name := "Renamed"
	if _, err := s.UpdateProject(ctx, dev, projectID, UpdateProjectInput{Name: &name}); !apperr.IsForbidden(err) {
		t.Fatalf("developer project update = %v, want Forbidden", err)
	}

	if err := s.DeleteProject(ctx, admin, projectID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.GetProject(ctx, admin, projectID); !apperr.IsNotFound(err) {
		t.Fatalf("deleted project read = %v, want NotFound", err)
	}
}

func TestItemAndCommentFlow(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, admin := register(t, s, "alice")
	bobID, bob := register(t, s, "bob")

	project, err := s.CreateProject(ctx, admin, CreateProjectInput{Name: "Alpha", Key: "ALPHA"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	projectID := project["id"].(string)
	if _, err := s.AddMember(ctx, admin, projectID, MemberInput{UserID: bobID, Role: "developer"}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	item, err := s.CreateItem(ctx, bob, projectID, CreateItemInput{Title: "First", Type: "task", AssigneeID: &bobID})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item["key"] != "ALPHA-1" {
		t.Fatalf("first item key = %v, want ALPHA-1", item["key"])
	}
	second, err := s.CreateItem(ctx, bob, projectID, CreateItemInput{Title: "Second", Type: "bug"})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if second["key"] != "ALPHA-2" {
		t.Fatalf("second item key = %v, want ALPHA-2", second["key"])
	}

	// Assignee must be a member.
	outsiderID, _ := register(t, s, "carol")
	if _, err := s.CreateItem(ctx, bob, projectID, CreateItemInput{Title: "Bad", Type: "task", AssigneeID: &outsiderID}); !apperr.HasCode(err, "VALIDATION_ERROR") {
		t.Fatalf("non-member assignee = %v, want Validation", err)
	}

	itemID := item["id"].(string)
	comment, err := s.CreateComment(ctx, bob, itemID, CommentInput{Content: "ping @alice and @carol"})
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	mentions := comment["mentions"].([]string)
	if len(mentions) != 1 {
		t.Fatalf("mentions = %v, want only the member alice", mentions)
	}
	readBy := comment["readBy"].([]string)
	if len(readBy) != 1 || readBy[0] != bob.ID {
		t.Fatalf("readBy = %v, want just the author", readBy)
	}

	commentID := comment["id"].(string)
	if _, err := s.MarkCommentRead(ctx, admin, commentID); err != nil {
		t.Fatalf("MarkCommentRead: %v", err)
	}
	marked, err := s.MarkCommentRead(ctx, admin, commentID)
	if err != nil {
		t.Fatalf("repeat MarkCommentRead: %v", err)
	}
	if got := marked["readBy"].([]string); len(got) != 2 {
		t.Fatalf("readBy after repeated marks = %v, want 2 entries", got)
	}

	// A second developer cannot edit bob's comment, but can delete their own.
	daveID, _ := register(t, s, "dave")
	if _, err := s.AddMember(ctx, admin, projectID, MemberInput{UserID: daveID, Role: "developer"}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	dave := access.Actor{ID: daveID, Role: model.GlobalDeveloper}
	if _, err := s.UpdateComment(ctx, dave, commentID, CommentInput{Content: "hijack"}); !apperr.IsForbidden(err) {
		t.Fatalf("foreign comment edit = %v, want Forbidden", err)
	}
	if err := s.DeleteComment(ctx, bob, commentID); err != nil {
		t.Fatalf("author delete: %v", err)
	}

	// Items cannot become their own ancestor.
	secondID := second["id"].(string)
	if _, err := s.UpdateItem(ctx, bob, secondID, UpdateItemInput{ParentID: &itemID}); err != nil {
		t.Fatalf("set parent: %v", err)
	}
	if _, err := s.UpdateItem(ctx, bob, itemID, UpdateItemInput{ParentID: &secondID}); !apperr.HasCode(err, "VALIDATION_ERROR") {
		t.Fatalf("parent cycle = %v, want Validation", err)
	}
}

func TestTagFlow(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, admin := register(t, s, "alice")

	project, err := s.CreateProject(ctx, admin, CreateProjectInput{Name: "Alpha", Key: "ALPHA"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	projectID := project["id"].(string)

	tag, err := s.CreateTag(ctx, admin, projectID, TagInput{Name: "backend", Color: "#7d56f4"})
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if _, err := s.CreateTag(ctx, admin, projectID, TagInput{Name: "backend"}); !apperr.IsConflict(err) {
		t.Fatalf("duplicate tag name = %v, want Conflict", err)
	}

	tagID := tag["id"].(string)
	item, err := s.CreateItem(ctx, admin, projectID, CreateItemInput{Title: "Work", Type: "task", TagIDs: []string{tagID, tagID}})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if tags := item["tagIds"].([]string); len(tags) != 1 {
		t.Fatalf("item tags = %v, want deduplicated single tag", tags)
	}

	// In-use tag refuses plain delete, force detaches.
	if err := s.DeleteTag(ctx, admin, tagID, false); !apperr.IsConflict(err) {
		t.Fatalf("delete used tag = %v, want Conflict", err)
	}
	if err := s.DeleteTag(ctx, admin, tagID, true); err != nil {
		t.Fatalf("force delete: %v", err)
	}
	got, err := s.GetItem(ctx, admin, item["id"].(string))
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if tags := got["tagIds"].([]string); len(tags) != 0 {
		t.Fatalf("item tags after force delete = %v, want none", tags)
	}

	stats, err := s.ProjectStats(ctx, admin, projectID)
	if err != nil {
		t.Fatalf("ProjectStats: %v", err)
	}
	if stats["totalItems"] != 1 {
		t.Fatalf("totalItems = %v, want 1", stats["totalItems"])
	}
}
