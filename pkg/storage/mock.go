package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

// MockStorage is an in-memory SessionStore for tests and local runs.
// Documents are deep-copied on the way in and out so callers cannot alias
// stored state.
type MockStorage struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*state.GameState

	pingError error
	getError  error
	putError  error

	PutCalls int
}

var _ SessionStore = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{sessions: make(map[uuid.UUID]*state.GameState)}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetGetError makes Get fail with err.
func (m *MockStorage) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getError = err
}

// SetPutError makes Put fail with err.
func (m *MockStorage) SetPutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) Get(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getError != nil {
		return nil, m.getError
	}
	gs, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return clone(gs)
}

func (m *MockStorage) Put(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls++
	if m.putError != nil {
		return m.putError
	}

	existing, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	gs.UpdatedAt = time.Now().UTC()
	cp, err := clone(gs)
	if err != nil {
		return err
	}
	// Activation is owned by SetActive.
	cp.IsActive = existing.IsActive
	m.sessions[id] = cp
	return nil
}

func (m *MockStorage) Create(ctx context.Context, ownerID, scenarioID string, gs *state.GameState) (uuid.UUID, error) {
	if gs == nil {
		return uuid.Nil, errors.New("gamestate cannot be nil")
	}
	if gs.ID == uuid.Nil {
		gs.ID = uuid.New()
	}
	gs.OwnerID = ownerID
	gs.ScenarioID = scenarioID
	gs.IsActive = false
	gs.UpdatedAt = time.Now().UTC()
	if gs.CreatedAt.IsZero() {
		gs.CreatedAt = gs.UpdatedAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[gs.ID]; exists {
		return uuid.Nil, errors.New("session already exists")
	}
	cp, err := clone(gs)
	if err != nil {
		return uuid.Nil, err
	}
	m.sessions[gs.ID] = cp
	return gs.ID, nil
}

func (m *MockStorage) ListByOwner(ctx context.Context, ownerID string) ([]SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionSummary, 0)
	for _, gs := range m.sessions {
		if gs.OwnerID == ownerID {
			out = append(out, Summarize(gs))
		}
	}
	SortSummaries(out)
	return out, nil
}

func (m *MockStorage) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockStorage) SetActive(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	for _, gs := range m.sessions {
		if gs.OwnerID == target.OwnerID {
			gs.IsActive = false
		}
	}
	target.IsActive = true
	return nil
}

// SortSummaries orders summaries by most recent update, then by id.
func SortSummaries(s []SessionSummary) {
	slices.SortFunc(s, func(a, b SessionSummary) int {
		return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
}

func clone(gs *state.GameState) (*state.GameState, error) {
	data, err := json.Marshal(gs)
	if err != nil {
		return nil, err
	}
	var out state.GameState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
