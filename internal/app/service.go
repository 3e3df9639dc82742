package app

import (
	"context"
	"errors"
	"time"

	"tracker/api/internal/access"
	"tracker/api/internal/apperr"
	"tracker/api/internal/auth"
	"tracker/api/internal/authpw"
	"tracker/api/internal/cascade"
	"tracker/api/internal/config"
	"tracker/api/internal/docstore"
	"tracker/api/internal/keygen"
	"tracker/api/internal/membership"
	"tracker/api/internal/mentions"
	"tracker/api/internal/model"
	"tracker/api/internal/repo"
	"tracker/api/internal/util"
)

// Session is an authenticated request context plus the tokens issued for it.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	Role         model.GlobalRole
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Actor() access.Actor {
	return access.Actor{ID: s.UserID, Role: s.Role}
}

// sessionStore is the refresh-token and revocation backend (redis in
// production).
type sessionStore interface {
	Save(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (string, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAccess(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

type Service struct {
	cfg       config.Config
	store     docstore.Store
	repos     *repo.Repos
	policy    *access.Policy
	registry  *membership.Registry
	keys      *keygen.Generator
	resolver  *mentions.Resolver
	cascades  *cascade.Coordinator
	passwords *authpw.Service
	sessions  sessionStore

	// Serializes tag-name uniqueness checks per project; the other racy
	// aggregate (item keys) is serialized inside the generator.
	tagLocks *util.KeyedMutex
}

func New(cfg config.Config, store docstore.Store, sessions sessionStore) *Service {
	repos := repo.New(store)
	registry := membership.NewRegistry(repos.Projects, repos.Users)
	return &Service{
		cfg:       cfg,
		store:     store,
		repos:     repos,
		policy:    access.NewPolicy(repos.Projects),
		registry:  registry,
		keys:      keygen.NewGenerator(repos.Items),
		resolver:  mentions.NewResolver(repos.Users),
		cascades:  cascade.NewCoordinator(repos, registry),
		passwords: authpw.NewService(repos.Users),
		sessions:  sessions,
		tagLocks:  util.NewKeyedMutex(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login verifies credentials and issues a session.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	user, err := s.passwords.Verify(ctx, login, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the old one is revoked before new tokens
// are issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.Lookup(ctx, tokenHash)
	if err != nil {
		return Session{}, apperr.Unauthenticated("invalid refresh token")
	}
	if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.repos.Users.ByID(ctx, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Session{}, apperr.Unauthenticated("invalid refresh token")
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user model.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.Save(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken realizes the identity contract: bearer credential in,
// {userId, globalRole} out, or Unauthenticated.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, apperr.Unauthenticated("invalid token")
	}
	revoked, err := s.sessions.IsAccessRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, apperr.Unauthenticated("token revoked")
	}

	user, err := s.repos.Users.ByID(ctx, claims.Sub)
	if errors.Is(err, docstore.ErrNotFound) {
		return Session{}, apperr.Unauthenticated("unknown user")
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccess(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
	}
	return nil
}
