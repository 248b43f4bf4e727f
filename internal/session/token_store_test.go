package session

import (
	"context"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/persistence"
)

func newStore(t *testing.T) (*TokenStore, *persistence.FileKV) {
	t.Helper()
	kv, err := persistence.NewFileKV(t.TempDir())
	require.NoError(t, err)
	return NewTokenStore(kv), kv
}

func TestTokenStore_SaveLoad(t *testing.T) {
	store, kv := newStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, ErrNoToken)
	assert.False(t, store.Valid(ctx))

	exp := time.Now().Add(time.Hour)
	_, err = store.Save(ctx, "tok", exp)
	require.NoError(t, err)

	tok, ok := store.Token(ctx)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	// a fresh store over the same KV reads the persisted session
	reopened := NewTokenStore(kv)
	sess, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", sess.Token)
	assert.True(t, exp.Equal(sess.ExpiresAt))
}

func TestTokenStore_Expiry(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.Save(ctx, "tok", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, store.Valid(ctx))

	now = now.Add(2 * time.Minute)
	assert.False(t, store.Valid(ctx))

	_, err = store.Save(ctx, "stale", now.Add(-time.Second))
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestTokenStore_ExpiryFromJWT(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	sess, err := store.Save(ctx, tok, time.Time{})
	require.NoError(t, err)
	assert.True(t, exp.Equal(sess.ExpiresAt))
}

func TestTokenStore_DefaultTTLForOpaqueToken(t *testing.T) {
	store, _ := newStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	sess, err := store.Save(context.Background(), "opaque", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTTL), sess.ExpiresAt)
}

func TestTokenStore_Clear(t *testing.T) {
	store, kv := newStore(t)
	ctx := context.Background()
	_, err := store.Save(ctx, "tok", time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, store.Valid(ctx))
	assert.False(t, NewTokenStore(kv).Valid(ctx))
}

func TestProfileStore(t *testing.T) {
	kv, err := persistence.NewFileKV(t.TempDir())
	require.NoError(t, err)
	store := NewProfileStore(kv)
	ctx := context.Background()

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrNoProfile)

	p := domain.Profile{
		ID:     "p-1",
		Role:   domain.RolePersonnel,
		Area:   "Limpieza",
		ToList: []domain.IncidentKey{{Type: "LIMPIEZA", UUID: "abc#1"}},
	}
	require.NoError(t, store.Save(ctx, p))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoProfile)
}
