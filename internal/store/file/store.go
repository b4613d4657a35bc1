package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"qms/internal/models"
	"qms/internal/store"
)

// Store persists the state blob in a JSON file holding one entry per
// namespace key. Writes go to a temp file that is renamed into place.
type Store struct {
	mu   sync.Mutex
	path string
	key  string
}

func NewStore(path, key string) *Store {
	if key == "" {
		key = store.DefaultStateKey
	}
	return &Store{path: path, key: key}
}

func (s *Store) Load(ctx context.Context) (models.SystemState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readEntries()
	if err != nil {
		return models.SystemState{}, false, err
	}
	blob, ok := entries[s.key]
	if !ok {
		return models.SystemState{}, false, nil
	}
	state, err := store.DecodeState(blob)
	if err != nil {
		return models.SystemState{}, false, fmt.Errorf("decode %s in %s: %w", s.key, s.path, err)
	}
	return state, true, nil
}

func (s *Store) Commit(ctx context.Context, state models.SystemState) error {
	blob, err := store.EncodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.readEntries()
	if err != nil {
		return err
	}
	entries[s.key] = blob
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return s.writeAtomic(data)
}

func (s *Store) readEntries() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	entries := map[string]json.RawMessage{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
