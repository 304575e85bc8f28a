// Package profile owns the single "profile" setting and the gate that decides
// whether a search request may run under the active profile.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Key is the settings key holding the active profile.
const Key = "profile"

// Store is durable key-value settings storage scoped to the finder.
type Store interface {
	// Get returns the stored profile, or the store's default when unset.
	Get(ctx context.Context) (string, error)
	// Set persists a new profile.
	Set(ctx context.Context, profile string) error
}

// FileStore keeps settings in a JSON object on disk. It never caches: every
// Get reads the file so edits made by other processes are seen immediately.
type FileStore struct {
	path     string
	fallback string
	mu       sync.Mutex
}

func NewFileStore(path, fallback string) *FileStore {
	return &FileStore{path: path, fallback: fallback}
}

// Path returns the settings file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context) (string, error) {
	settings, err := s.read()
	if err != nil {
		return s.fallback, err
	}
	var profile string
	if raw, ok := settings[Key]; ok {
		if err := json.Unmarshal(raw, &profile); err != nil {
			return s.fallback, fmt.Errorf("settings %s: %s is not a string", s.path, Key)
		}
	}
	if profile == "" {
		return s.fallback, nil
	}
	return profile, nil
}

func (s *FileStore) Set(_ context.Context, profile string) error {
	if profile == "" {
		return errors.New("profile must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.read()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	settings[Key] = encoded

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	// Write-then-rename so concurrent readers never see a torn file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) read() (map[string]json.RawMessage, error) {
	settings := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("settings %s: %w", s.path, err)
	}
	if settings == nil {
		settings = make(map[string]json.RawMessage)
	}
	return settings, nil
}

// MemoryStore is a Store held in memory.
type MemoryStore struct {
	mu      sync.Mutex
	profile string
	err     error
}

func NewMemoryStore(profile string) *MemoryStore {
	return &MemoryStore{profile: profile}
}

func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, s.err
}

// Fail makes subsequent Get and Set calls return err; nil clears it.
func (s *MemoryStore) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemoryStore) Set(_ context.Context, profile string) error {
	if profile == "" {
		return errors.New("profile must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.profile = profile
	return nil
}
