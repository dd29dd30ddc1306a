package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

var (
	// ErrSessionNotFound is returned by operations that require an existing session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrLockTimeout is returned when a session lock cannot be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for session lock")
)

// SessionSummary is one entry of an owner's session list.
type SessionSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"` // Character name
	ScenarioID   string    `json:"scenario_id"`
	ScenarioName string    `json:"scenario_name"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionStore persists game session documents. Writes are last-write-wins
// and never resurrect a deleted session; callers that need stronger
// guarantees serialize through a Locker.
type SessionStore interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, id uuid.UUID) (*state.GameState, error)
	// Put overwrites an existing session document and stamps UpdatedAt. It
	// returns ErrSessionNotFound if the session was deleted.
	Put(ctx context.Context, id uuid.UUID, gs *state.GameState) error
	// Create stores a new session for the owner and returns its id.
	Create(ctx context.Context, ownerID, scenarioID string, gs *state.GameState) (uuid.UUID, error)
	// ListByOwner returns the owner's sessions, most recently updated first.
	ListByOwner(ctx context.Context, ownerID string) ([]SessionSummary, error)
	// Delete removes a session. Returns ErrSessionNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
	// SetActive deactivates the owner's other sessions and activates this one.
	SetActive(ctx context.Context, id uuid.UUID) error
}

// Locker serializes work on a single session.
type Locker interface {
	// Lock blocks until the session lock is held, ctx is done, or the
	// locker's wait limit passes (ErrLockTimeout). The returned func releases it.
	Lock(ctx context.Context, id uuid.UUID) (unlock func(), err error)
}

// Summarize builds the list entry of a game state.
func Summarize(gs *state.GameState) SessionSummary {
	return SessionSummary{
		ID:           gs.ID,
		Name:         gs.CharacterName,
		ScenarioID:   gs.ScenarioID,
		ScenarioName: gs.ScenarioName,
		IsActive:     gs.IsActive,
		UpdatedAt:    gs.UpdatedAt,
	}
}
