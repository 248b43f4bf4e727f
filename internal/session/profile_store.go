package session

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/persistence"
)

// ErrNoProfile means whoami has not been cached yet.
var ErrNoProfile = errors.New("no cached profile")

// ProfileStore caches the last-known user profile.
type ProfileStore struct {
	kv persistence.KV
}

// NewProfileStore builds a store over kv.
func NewProfileStore(kv persistence.KV) *ProfileStore {
	return &ProfileStore{kv: kv}
}

func (s *ProfileStore) Save(ctx context.Context, p domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.kv.Set(ctx, persistence.KeyProfile, data, 0)
}

func (s *ProfileStore) Load(ctx context.Context) (domain.Profile, error) {
	data, err := s.kv.Get(ctx, persistence.KeyProfile)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return domain.Profile{}, ErrNoProfile
		}
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, persistence.KeyProfile)
}
