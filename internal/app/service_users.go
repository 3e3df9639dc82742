package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"tracker/api/internal/access"
	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
	"tracker/api/internal/util"
)

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type UpdateProfileInput struct {
	Email    *string `json:"email"`
	FullName *string `json:"fullName"`
}

// Register creates a user account. The very first account becomes the
// global admin so a fresh install always has one.
func (s *Service) Register(ctx context.Context, input RegisterInput) (map[string]any, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)

	messages := model.Check(map[string]string{
		"username": username,
		"email":    email,
		"fullName": input.FullName,
	}, model.UserConstraints)
	if len(messages) > 0 {
		return nil, apperr.Validation("invalid user", messages)
	}

	hash, err := s.passwords.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	if _, err := s.repos.Users.ByUsername(ctx, username); err == nil {
		return nil, apperr.Conflict("username already taken")
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}
	if _, err := s.repos.Users.ByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email already registered")
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}

	role := model.GlobalDeveloper
	count, err := s.repos.Users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		role = model.GlobalAdmin
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           util.NewID("usr"),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(input.FullName),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.Users.Insert(ctx, user); err != nil {
		if errors.Is(err, docstore.ErrDuplicateID) {
			return nil, apperr.Conflict("user already exists")
		}
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) GetUser(ctx context.Context, actor access.Actor, userID string) (map[string]any, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) ListUsers(ctx context.Context, actor access.Actor, page, perPage int) (map[string]any, error) {
	users, err := s.repos.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	pageInfo, start, end := paginate(len(users), page, perPage)
	items := make([]map[string]any, 0, end-start)
	for _, user := range users[start:end] {
		items = append(items, userPayload(user))
	}
	return map[string]any{"users": items, "pagination": pageInfo}, nil
}

// UpdateProfile changes email/full name. Users edit themselves; admins edit
// anyone.
func (s *Service) UpdateProfile(ctx context.Context, actor access.Actor, userID string, input UpdateProfileInput) (map[string]any, error) {
	if actor.ID != userID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("cannot edit another user's profile")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	values := map[string]string{}
	if input.Email != nil {
		values["email"] = strings.TrimSpace(*input.Email)
	}
	if input.FullName != nil {
		values["fullName"] = strings.TrimSpace(*input.FullName)
	}
	if messages := model.Check(values, model.UserConstraints); len(messages) > 0 {
		return nil, apperr.Validation("invalid profile", messages)
	}

	if email, ok := values["email"]; ok && email != user.Email {
		if existing, err := s.repos.Users.ByEmail(ctx, email); err == nil && existing.ID != user.ID {
			return nil, apperr.Conflict("email already registered")
		} else if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return nil, err
		}
		user.Email = email
	}
	if fullName, ok := values["fullName"]; ok {
		user.FullName = fullName
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

// UpdateUserRole sets the global role; admin only, enum enforced.
func (s *Service) UpdateUserRole(ctx context.Context, actor access.Actor, userID string, role model.GlobalRole) (map[string]any, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins change global roles")
	}
	if !role.Valid() {
		return nil, apperr.Validation("invalid role", []string{"role must be one of admin, manager, developer, viewer"})
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) ChangePassword(ctx context.Context, actor access.Actor, userID, current, next string) error {
	if actor.ID != userID && !actor.IsAdmin() {
		return apperr.Forbidden("cannot change another user's password")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	// Self-service requires the current password; admin resets do not.
	if actor.ID == userID {
		if _, err := s.passwords.Verify(ctx, user.Username, current); err != nil {
			return err
		}
	}
	hash, err := s.passwords.HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return s.repos.Users.Update(ctx, user)
}

// DeleteUser runs the user cascade: ownership inheritance, membership
// removal, anonymization, then the record itself.
func (s *Service) DeleteUser(ctx context.Context, actor access.Actor, userID string) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden("only admins delete users")
	}
	return s.cascades.DeleteUser(ctx, userID)
}

func (s *Service) loadUser(ctx context.Context, userID string) (model.User, error) {
	user, err := s.repos.Users.ByID(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

// userPayload shapes a user for responses; the password hash never leaves
// the service.
func userPayload(user model.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"fullName":  user.FullName,
		"role":      user.Role,
		"external":  user.External,
		"createdAt": user.CreatedAt.Format(time.RFC3339),
		"updatedAt": user.UpdatedAt.Format(time.RFC3339),
	}
}
