package preferences

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/tallyhq/tally/pkg/errors"
)

// Store loads and persists per-user preferences. The agent core reads at
// turn start and writes only on an always-allow resolution.
type Store interface {
	Load(ctx context.Context, userID string) (Preferences, error)
	Save(ctx context.Context, userID string, prefs Preferences) error
}

// MemoryStore is an in-memory Store for embedding and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

// NewMemoryStore creates an empty in-memory preferences store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]Preferences)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prefs[userID]; ok {
		return Resolve(p), nil
	}
	return Defaults(), nil
}

func (s *MemoryStore) Save(ctx context.Context, userID string, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = prefs
	return nil
}

// FileStore persists preferences as one JSON file per user under a base
// directory, so always-allow decisions survive restarts.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates a file-backed preferences store.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "create preferences directory")
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Load(ctx context.Context, userID string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(userID))
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), errors.Wrap(err, errors.ErrCodeStorageRead, "read preferences")
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return Defaults(), errors.Wrap(err, errors.ErrCodeStorageRead, "parse preferences")
	}
	return Resolve(prefs), nil
}

func (s *FileStore) Save(ctx context.Context, userID string, prefs Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "encode preferences")
	}

	path := s.path(userID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "write preferences")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "commit preferences")
	}
	return nil
}

func (s *FileStore) path(userID string) string {
	if userID == "" {
		userID = "default"
	}
	return filepath.Join(s.baseDir, userID+".json")
}
