package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// TokenStore caches the session token pair between runs, standing in for
// the browser local storage the hosted identity SDK would use.
type TokenStore interface {
	Load() (accessToken, refreshToken string, err error)
	Save(accessToken, refreshToken string) error
	Clear() error
}

type tokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// FileTokenStore persists the token pair as a JSON file.
type FileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Load() (string, string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", nil
		}

		return "", "", err
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", "", err
	}

	return tf.AccessToken, tf.RefreshToken, nil
}

func (s *FileTokenStore) Save(accessToken, refreshToken string) error {
	data, err := json.Marshal(tokenFile{AccessToken: accessToken, RefreshToken: refreshToken})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// MemoryTokenStore holds the token pair in memory only.
type MemoryTokenStore struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.access, s.refresh, nil
}

func (s *MemoryTokenStore) Save(accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access, s.refresh = accessToken, refreshToken

	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access, s.refresh = "", ""

	return nil
}
