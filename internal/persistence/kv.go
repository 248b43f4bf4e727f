package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by KV implementations for missing keys.
var ErrNotFound = errors.New("key not found")

// Keys used for persisted client state.
const (
	KeySession       = "session"
	KeyProfile       = "profile"
	KeyNotifications = "notifications"
)

// KV stores small JSON documents under string keys. A zero ttl means no expiry.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
