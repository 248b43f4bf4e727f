package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

type fileEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// FileKV keeps one JSON file per key inside a private directory.
type FileKV struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileKV creates the directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, errors.New("file kv: directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file kv: create dir: %w", err)
	}
	return &FileKV{dir: dir, now: time.Now}, nil
}

func (f *FileKV) path(key string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(f.dir, safe+".json")
}

// Get returns the stored value or ErrNotFound when missing or expired.
func (f *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("file kv: read %s: %w", key, err)
	}

	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("file kv: decode %s: %w", key, err)
	}
	if entry.ExpiresAt != nil && !f.now().Before(*entry.ExpiresAt) {
		_ = os.Remove(f.path(key))
		return nil, ErrNotFound
	}
	return entry.Value, nil
}

// Set writes value atomically via a temp file and rename.
func (f *FileKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := fileEntry{Value: json.RawMessage(value)}
	if ttl > 0 {
		exp := f.now().Add(ttl)
		entry.ExpiresAt = &exp
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("file kv: encode %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".kv-*")
	if err != nil {
		return fmt.Errorf("file kv: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file kv: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file kv: close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file kv: rename %s: %w", key, err)
	}
	return nil
}

// Delete removes key; missing keys are not an error.
func (f *FileKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file kv: delete %s: %w", key, err)
	}
	return nil
}
