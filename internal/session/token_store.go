// Package session persists the bearer token, its expiry and the cached user profile.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/spec-kit/incident-sync/internal/auth"
	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/persistence"
)

// DefaultTTL applies when neither the login response nor the token says when it expires.
const DefaultTTL = time.Hour

// ErrNoToken means no valid session is stored.
var ErrNoToken = errors.New("no valid session (login required)")

// TokenStore keeps the current session in a KV.
type TokenStore struct {
	kv  persistence.KV
	now func() time.Time

	mu     sync.RWMutex
	cached *domain.Session
}

// NewTokenStore builds a store over kv.
func NewTokenStore(kv persistence.KV) *TokenStore {
	return &TokenStore{kv: kv, now: time.Now}
}

// Save persists token. A zero expiresAt is resolved from the token's exp claim,
// then DefaultTTL.
func (s *TokenStore) Save(ctx context.Context, token string, expiresAt time.Time) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, errors.New("empty token")
	}
	if expiresAt.IsZero() {
		if exp, err := auth.ExpiryOf(token); err == nil {
			expiresAt = exp
		} else {
			expiresAt = s.now().Add(DefaultTTL)
		}
	}

	sess := domain.Session{Token: token, ExpiresAt: expiresAt}
	data, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("encode session: %w", err)
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return domain.Session{}, ErrNoToken
	}
	if err := s.kv.Set(ctx, persistence.KeySession, data, ttl); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}

	s.mu.Lock()
	s.cached = &sess
	s.mu.Unlock()
	return sess, nil
}

// Load returns the stored session if it is still valid.
func (s *TokenStore) Load(ctx context.Context) (domain.Session, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		if cached.Valid(s.now()) {
			return *cached, nil
		}
		return domain.Session{}, ErrNoToken
	}

	data, err := s.kv.Get(ctx, persistence.KeySession)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return domain.Session{}, ErrNoToken
		}
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if !sess.Valid(s.now()) {
		return domain.Session{}, ErrNoToken
	}

	s.mu.Lock()
	s.cached = &sess
	s.mu.Unlock()
	return sess, nil
}

// Token returns the bearer token when a valid session exists.
func (s *TokenStore) Token(ctx context.Context) (string, bool) {
	sess, err := s.Load(ctx)
	if err != nil {
		return "", false
	}
	return sess.Token, true
}

// Valid reports whether a non-expired token is stored.
func (s *TokenStore) Valid(ctx context.Context) bool {
	_, ok := s.Token(ctx)
	return ok
}

// Clear destroys the session, as on logout or a 401/403 from the backend.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return s.kv.Delete(ctx, persistence.KeySession)
}
