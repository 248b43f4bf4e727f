package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/incident-sync/internal/config"
)

// Redis wraps the go-redis client and serves as a KV for shared session state.
type Redis struct {
	Client    redis.UniversalClient
	keyPrefix string
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	}

	return NewRedisFromClient(client, cfg.KeyPrefix)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, keyPrefix string) *Redis {
	return &Redis{Client: client, keyPrefix: keyPrefix}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) buildKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	var b strings.Builder
	b.WriteString(r.keyPrefix)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

// Get returns the stored value or ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.Client.Get(ctx, r.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set stores value with an optional ttl.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, r.buildKey(key), value, ttl).Err()
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.buildKey(key)).Err()
}
