package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const sharedKeyName = "shared"

// FileStore persists user-supplied API keys in a single JSON file,
// keyed per chat with an optional shared fallback. It is the
// local-storage analog for deployments without an ambient key.
type FileStore struct {
	mu   sync.Mutex
	path string
	keys map[string]string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("key store path is empty")
	}

	s := &FileStore{
		path: path,
		keys: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read key store: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.keys); err != nil {
		return nil, fmt.Errorf("parse key store: %w", err)
	}
	return s, nil
}

func (s *FileStore) Has(ctx context.Context) bool {
	_, err := s.Key(ctx)
	return err == nil
}

// Request has no acquisition flow of its own; wrap the store in a
// ChatPrompter to ask the user.
func (s *FileStore) Request(ctx context.Context) error {
	return ErrNoCredential
}

func (s *FileStore) Key(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chatID, ok := ChatFrom(ctx); ok {
		if key := s.keys[chatKeyName(chatID)]; key != "" {
			return key, nil
		}
	}
	if key := s.keys[sharedKeyName]; key != "" {
		return key, nil
	}
	return "", ErrNoCredential
}

func (s *FileStore) SetChatKey(chatID int64, key string) error {
	return s.set(chatKeyName(chatID), key)
}

func (s *FileStore) SetSharedKey(key string) error {
	return s.set(sharedKeyName, key)
}

func (s *FileStore) set(name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		delete(s.keys, name)
	} else {
		s.keys[name] = key
	}
	return s.persistLocked()
}

func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(s.keys, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create key store dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write key store: %w", err)
	}
	return nil
}

func chatKeyName(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}
