// Package authpw is the password credential boundary: hashing on the way in,
// verification on the way out. Nothing else reads PasswordHash.
package authpw

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"tracker/api/internal/apperr"
	"tracker/api/internal/docstore"
	"tracker/api/internal/model"
)

const minPasswordLength = 8

type UserLookup interface {
	ByUsername(ctx context.Context, username string) (model.User, error)
	ByEmail(ctx context.Context, email string) (model.User, error)
}

type Service struct {
	users UserLookup
}

func NewService(users UserLookup) *Service {
	return &Service{users: users}
}

func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", apperr.Validation("password too short", []string{"password must be at least 8 characters"})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify resolves the login (username, or email as fallback) and checks the
// password. Credential failures are indistinguishable from unknown users.
func (s *Service) Verify(ctx context.Context, login, password string) (model.User, error) {
	user, err := s.users.ByUsername(ctx, login)
	if errors.Is(err, docstore.ErrNotFound) {
		user, err = s.users.ByEmail(ctx, login)
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return model.User{}, apperr.Unauthenticated("invalid credentials")
	}
	if err != nil {
		return model.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return model.User{}, apperr.Unauthenticated("invalid credentials")
	}
	return user, nil
}
