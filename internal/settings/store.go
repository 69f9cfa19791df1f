package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

const (
	// SettingsFileName is the name of the settings file inside the data dir
	SettingsFileName = "settings.json"
)

// Store defines the interface for durable settings persistence.
type Store interface {
	// Get returns the current settings record
	Get(ctx context.Context) (SyncSettings, error)

	// Set merges the patch into the record, persists it and returns the result
	Set(ctx context.Context, patch Patch) (SyncSettings, error)

	// EnsureDefaults populates any missing field from the default record and
	// persists the result. Idempotent.
	EnsureDefaults(ctx context.Context) (SyncSettings, error)
}

// fileStore implements Store using a single JSON file.
type fileStore struct {
	path string

	mu     sync.Mutex
	cached *SyncSettings
}

// NewFileStore creates a file-backed settings store under the given data dir.
func NewFileStore(dataDir string) Store {
	return &fileStore{
		path: filepath.Join(dataDir, SettingsFileName),
	}
}

func (f *fileStore) Get(_ context.Context) (SyncSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.loadLocked()
	if err != nil {
		return SyncSettings{}, err
	}
	return *s, nil
}

func (f *fileStore) Set(_ context.Context, patch Patch) (SyncSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Re-read before writing so a concurrent external edit is merged into,
	// not clobbered by, this update.
	f.cached = nil
	s, err := f.loadLocked()
	if err != nil {
		return SyncSettings{}, err
	}

	patch.Apply(s)
	if err := f.saveLocked(s); err != nil {
		return SyncSettings{}, err
	}
	return *s, nil
}

func (f *fileStore) EnsureDefaults(_ context.Context) (SyncSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.loadLocked()
	if err != nil {
		return SyncSettings{}, err
	}

	before := *s
	s.fillMissing()
	if *s != before {
		if err := f.saveLocked(s); err != nil {
			return SyncSettings{}, err
		}
	}
	return *s, nil
}

func (f *fileStore) loadLocked() (*SyncSettings, error) {
	if f.cached != nil {
		return f.cached, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			// First run
			s := SyncSettings{}
			f.cached = &s
			return f.cached, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s SyncSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	f.cached = &s
	return f.cached, nil
}

func (f *fileStore) saveLocked(s *SyncSettings) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// Write to temporary file first for atomic operation
	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary settings file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename settings file: %w", err)
	}

	f.cached = s
	return nil
}
