// Package fs provides a file system-based ClientStorage for eventauth clients, the
// command line counterpart of browser local storage.
package fs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStorage keeps client auth state as a JSON object in a single file. Every mutation is
// written through with a temp file and rename, so a crash never leaves a torn file.
type FileStorage struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// NewFileStorage opens (or prepares) a storage file.
// If path is empty, defaults to ~/.config/<appName>/client.json
func NewFileStorage(path string, appName string) (*FileStorage, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "eventauth"
		}
		path = filepath.Join(configDir, appName, "client.json")
	}

	s := &FileStorage{path: path, values: make(map[string]string)}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// load reads values from disk
func (s *FileStorage) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse client storage file: %w", err)
	}
	if values == nil {
		// a file holding JSON null
		values = map[string]string{}
	}
	s.values = values
	return nil
}

// saveLocked persists values to disk. Caller must hold s.mu.
func (s *FileStorage) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize client storage: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".client-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write client storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	// Owner read/write only
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// persist writes through. ClientStorage has no error return, so failures are only logged.
func (s *FileStorage) persist() {
	if err := s.saveLocked(); err != nil {
		slog.Warn("could not persist client storage", "path", s.path, "err", err)
	}
}

func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileStorage) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.persist()
}

func (s *FileStorage) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.persist()
}

func (s *FileStorage) Pop(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if ok {
		delete(s.values, key)
		s.persist()
	}
	return v, ok
}

// Path returns the path to the storage file
func (s *FileStorage) Path() string {
	return s.path
}
