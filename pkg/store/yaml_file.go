package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLFileStore persists all entries as one YAML mapping on disk.
// Every write rewrites the file through a temp file and rename.
type YAMLFileStore struct {
	mu     sync.RWMutex
	path   string
	cache  *InMemoryStore
	closed bool
}

var _ Store = (*YAMLFileStore)(nil)

func NewYAMLFileStore(path string) (*YAMLFileStore, error) {
	if path == "" {
		return nil, errors.New("yaml store path is required")
	}
	s := &YAMLFileStore{
		path:  path,
		cache: NewInMemoryStore(),
	}
	if err := s.loadFromDisk(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *YAMLFileStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return "", false, err
	}
	return s.cache.Get(ctx, key)
}

func (s *YAMLFileStore) Set(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	prev, had, _ := s.cache.Get(ctx, key)
	if err := s.cache.Set(ctx, key, value); err != nil {
		return err
	}
	if err := s.persistLocked(); err != nil {
		// keep memory and disk in agreement
		if had {
			_ = s.cache.Set(ctx, key, prev)
		} else {
			_ = s.cache.Delete(ctx, key)
		}
		return err
	}
	return nil
}

func (s *YAMLFileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	prev, had, _ := s.cache.Get(ctx, key)
	if !had {
		return nil
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.persistLocked(); err != nil {
		_ = s.cache.Set(ctx, key, prev)
		return err
	}
	return nil
}

func (s *YAMLFileStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	return s.cache.Keys(ctx)
}

func (s *YAMLFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *YAMLFileStore) loadFromDisk() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "yaml store: read %s", s.path)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(b, &values); err != nil {
		return errors.Wrapf(err, "yaml store: decode %s", s.path)
	}

	s.cache = NewInMemoryStore()
	for k, v := range values {
		s.cache.values[k] = v
	}
	return nil
}

func (s *YAMLFileStore) persistLocked() error {
	b, err := yaml.Marshal(s.cache.snapshot())
	if err != nil {
		return errors.Wrap(err, "yaml store: encode")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func (s *YAMLFileStore) ensureOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
