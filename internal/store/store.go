package store

import (
	"context"
	"encoding/json"
	"sync"

	"qms/internal/models"
)

// DefaultStateKey is the namespace the state blob is stored under.
const DefaultStateKey = "qflow_db_v1"

// StateStore persists the whole SystemState as one blob. Load reports
// false when nothing has been committed yet.
type StateStore interface {
	Load(ctx context.Context) (models.SystemState, bool, error)
	Commit(ctx context.Context, state models.SystemState) error
}

// MemoryStateStore keeps the encoded blob in process. It encodes on
// commit so callers observe the same round trip as the durable backends.
type MemoryStateStore struct {
	mu   sync.Mutex
	blob []byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (s *MemoryStateStore) Load(ctx context.Context) (models.SystemState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blob == nil {
		return models.SystemState{}, false, nil
	}
	state, err := DecodeState(s.blob)
	if err != nil {
		return models.SystemState{}, false, err
	}
	return state, true, nil
}

func (s *MemoryStateStore) Commit(ctx context.Context, state models.SystemState) error {
	blob, err := EncodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = blob
	return nil
}

// Blob returns the last committed encoding.
func (s *MemoryStateStore) Blob() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.blob...)
}

func EncodeState(state models.SystemState) ([]byte, error) {
	return json.Marshal(normalizeState(state))
}

func DecodeState(blob []byte) (models.SystemState, error) {
	var state models.SystemState
	if err := json.Unmarshal(blob, &state); err != nil {
		return models.SystemState{}, err
	}
	return normalizeState(state), nil
}

// normalizeState replaces nil slices so an empty collection always
// encodes as [] rather than null.
func normalizeState(state models.SystemState) models.SystemState {
	if state.Services == nil {
		state.Services = []models.Service{}
	}
	if state.Counters == nil {
		state.Counters = []models.Counter{}
	}
	for i := range state.Counters {
		if state.Counters[i].AssignedServiceIDs == nil {
			state.Counters[i].AssignedServiceIDs = []string{}
		}
	}
	if state.Users == nil {
		state.Users = []models.User{}
	}
	if state.Tokens == nil {
		state.Tokens = []models.Token{}
	}
	return state
}
