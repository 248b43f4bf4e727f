package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/backend"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/observability"
	"github.com/spec-kit/incident-sync/internal/session"
)

// AuthBackend is the remote side of the login flow.
type AuthBackend interface {
	Login(ctx context.Context, email, password string) (domain.Session, error)
	Register(ctx context.Context, req backend.RegisterRequest) error
	WhoAmI(ctx context.Context) (domain.Profile, error)
}

// AuthService coordinates login, logout and the cached profile.
type AuthService struct {
	backend       AuthBackend
	tokens        *session.TokenStore
	profiles      *session.ProfileStore
	notifications *NotificationService
	logger        *zap.Logger
}

// AuthDependencies encapsulates what the auth service needs.
type AuthDependencies struct {
	Backend       AuthBackend
	Tokens        *session.TokenStore
	Profiles      *session.ProfileStore
	Notifications *NotificationService
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies, logger *zap.Logger) *AuthService {
	return &AuthService{
		backend:       deps.Backend,
		tokens:        deps.Tokens,
		profiles:      deps.Profiles,
		notifications: deps.Notifications,
		logger:        observability.OrNop(logger).Named("auth"),
	}
}

// Login stores a fresh session and caches the profile it belongs to.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.Profile, domain.Session, error) {
	sess, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return domain.Profile{}, domain.Session{}, err
	}
	profile, err := s.refreshProfile(ctx)
	if err != nil {
		return domain.Profile{}, sess, fmt.Errorf("load profile: %w", err)
	}
	s.logger.Info("session started", zap.String("user_id", profile.ID), zap.String("role", string(profile.Role)))
	return profile, sess, nil
}

// Register creates a community account; it does not log in.
func (s *AuthService) Register(ctx context.Context, req backend.RegisterRequest) error {
	return s.backend.Register(ctx, req)
}

// Logout destroys the session, the cached profile and the notification log.
func (s *AuthService) Logout(ctx context.Context) error {
	var errs []error
	if err := s.tokens.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.profiles.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.notifications != nil {
		if err := s.notifications.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.logger.Info("session ended")
	return errors.Join(errs...)
}

// HandleSessionExpired drops what belonged to the rejected session. The token
// itself has already been cleared by the backend client.
func (s *AuthService) HandleSessionExpired(ctx context.Context) {
	if err := s.profiles.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear cached profile", zap.Error(err))
	}
	s.logger.Warn("session expired; login required")
}

// Profile returns the cached profile, asking the backend when there is none
// or when refresh is set.
func (s *AuthService) Profile(ctx context.Context, refresh bool) (domain.Profile, error) {
	if !s.tokens.Valid(ctx) {
		return domain.Profile{}, session.ErrNoToken
	}
	if !refresh {
		profile, err := s.profiles.Load(ctx)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, session.ErrNoProfile) {
			s.logger.Warn("cached profile unreadable", zap.Error(err))
		}
	}
	return s.refreshProfile(ctx)
}

func (s *AuthService) refreshProfile(ctx context.Context) (domain.Profile, error) {
	profile, err := s.backend.WhoAmI(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}
