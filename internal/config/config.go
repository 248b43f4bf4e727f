package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the sync client.
type Config struct {
	App      AppConfig
	Backend  BackendConfig
	Realtime RealtimeConfig
	Session  SessionConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Logger   LoggerConfig
	Areas    AreasConfig
}

// AppConfig controls the local view bridge.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// BackendConfig holds the remote HTTP endpoints.
type BackendConfig struct {
	BaseURL        string
	IncidentsPath  string
	IncidentPath   string
	WhoAmIPath     string
	LoginPath      string
	RegisterPath   string
	TimeoutSeconds int
}

// RealtimeConfig holds WebSocket connection values.
type RealtimeConfig struct {
	Endpoint                string
	MaxReconnectAttempts    int
	ReconnectDelaySeconds   int
	HandshakeTimeoutSeconds int
	ConfirmTimeoutSeconds   int
}

// SessionConfig selects where the token, profile and notification log live.
type SessionConfig struct {
	Store                string
	Dir                  string
	NotificationLogLimit int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// PostgresConfig holds DB connection values for the frame journal.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AreasConfig points at an optional area catalog file.
type AreasConfig struct {
	File string
}

const (
	SessionStoreFile  = "file"
	SessionStoreRedis = "redis"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	store := strings.ToLower(getEnv("SESSION_STORE", SessionStoreFile))
	if store != SessionStoreFile && store != SessionStoreRedis {
		return nil, fmt.Errorf("invalid SESSION_STORE %q", store)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "incident-sync"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "127.0.0.1"),
			Port:                  getEnv("APP_PORT", "8787"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Backend: BackendConfig{
			BaseURL:        strings.TrimRight(os.Getenv("BACKEND_BASE_URL"), "/"),
			IncidentsPath:  getEnv("BACKEND_INCIDENTS_PATH", "/incidents"),
			IncidentPath:   getEnv("BACKEND_INCIDENT_PATH", "/incident"),
			WhoAmIPath:     getEnv("BACKEND_WHOAMI_PATH", "/whoami"),
			LoginPath:      getEnv("BACKEND_LOGIN_PATH", "/auth/login"),
			RegisterPath:   getEnv("BACKEND_REGISTER_PATH", "/auth/register"),
			TimeoutSeconds: getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 15),
		},
		Realtime: RealtimeConfig{
			Endpoint:                os.Getenv("WS_ENDPOINT"),
			MaxReconnectAttempts:    getEnvAsInt("WS_MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectDelaySeconds:   getEnvAsInt("WS_RECONNECT_DELAY_SECONDS", 3),
			HandshakeTimeoutSeconds: getEnvAsInt("WS_HANDSHAKE_TIMEOUT_SECONDS", 10),
			ConfirmTimeoutSeconds:   getEnvAsInt("ACTION_CONFIRM_TIMEOUT_SECONDS", 10),
		},
		Session: SessionConfig{
			Store:                store,
			Dir:                  getEnv("SESSION_DIR", defaultSessionDir()),
			NotificationLogLimit: getEnvAsInt("NOTIFICATION_LOG_LIMIT", 50),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "incident-sync"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Areas: AreasConfig{
			File: os.Getenv("AREAS_FILE"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the HTTP client timeout for backend calls.
func (b BackendConfig) Timeout() time.Duration {
	return seconds(b.TimeoutSeconds, 15)
}

// ReconnectDelay returns the flat delay between reconnect attempts.
func (r RealtimeConfig) ReconnectDelay() time.Duration {
	return seconds(r.ReconnectDelaySeconds, 3)
}

// HandshakeTimeout bounds a single dial.
func (r RealtimeConfig) HandshakeTimeout() time.Duration {
	return seconds(r.HandshakeTimeoutSeconds, 10)
}

// ConfirmTimeout is how long an action waits for its confirming event.
func (r RealtimeConfig) ConfirmTimeout() time.Duration {
	return seconds(r.ConfirmTimeoutSeconds, 10)
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func defaultSessionDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "incident-sync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".incident-sync"
	}
	return filepath.Join(home, ".config", "incident-sync")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
