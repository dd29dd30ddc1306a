package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jwebster45206/roleplay-agent/pkg/state"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	scenario_id    TEXT NOT NULL,
	character_name TEXT NOT NULL DEFAULT '',
	scenario_name  TEXT NOT NULL DEFAULT '',
	is_active      INTEGER NOT NULL DEFAULT 0,
	document       TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_owner_idx ON sessions (owner_id, updated_at DESC);
`

// SQLiteStorage implements SessionStore in a single SQLite file. The game
// state is stored as a JSON document; list columns are denormalized from it.
// The is_active column is the source of truth for activation.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.SessionStore = (*SQLiteStorage)(nil)

// OpenSQLite opens and migrates the session database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}

	logger.Info("SQLite session store opened", "path", path)
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Get(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	var doc string
	var active int64
	err := s.db.QueryRowContext(ctx,
		`SELECT document, is_active FROM sessions WHERE id = ?`, id.String(),
	).Scan(&doc, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var gs state.GameState
	if err := json.Unmarshal([]byte(doc), &gs); err != nil {
		s.logger.Error("Failed to unmarshal session", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	gs.IsActive = active != 0
	return &gs, nil
}

// Put overwrites an existing document. It never changes activation.
func (s *SQLiteStorage) Put(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	gs.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			owner_id = ?,
			scenario_id = ?,
			character_name = ?,
			scenario_name = ?,
			document = ?,
			updated_at = ?
		WHERE id = ?`,
		gs.OwnerID, gs.ScenarioID, gs.CharacterName, gs.ScenarioName,
		string(doc), gs.UpdatedAt.UnixMilli(), id.String(),
	)
	if err != nil {
		s.logger.Error("Failed to save session", "session_id", id, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if n == 0 {
		s.logger.Warn("Session deleted before save", "session_id", id)
		return storage.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStorage) Create(ctx context.Context, ownerID, scenarioID string, gs *state.GameState) (uuid.UUID, error) {
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

	doc, err := json.Marshal(gs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, owner_id, scenario_id, character_name, scenario_name, is_active, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		gs.ID.String(), ownerID, scenarioID, gs.CharacterName, gs.ScenarioName,
		string(doc), gs.CreatedAt.UnixMilli(), gs.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("Session created", "session_id", gs.ID, "owner_id", ownerID, "scenario_id", scenarioID)
	return gs.ID, nil
}

func (s *SQLiteStorage) ListByOwner(ctx context.Context, ownerID string) ([]storage.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, character_name, scenario_id, scenario_name, is_active, updated_at
		FROM sessions WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]storage.SessionSummary, 0)
	for rows.Next() {
		var (
			id        string
			sum       storage.SessionSummary
			active    int64
			updatedAt int64
		)
		if err := rows.Scan(&id, &sum.Name, &sum.ScenarioID, &sum.ScenarioName, &active, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			s.logger.Warn("Skipping session with invalid id", "id", id)
			continue
		}
		sum.IsActive = active != 0
		sum.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	storage.SortSummaries(out)
	return out, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrSessionNotFound
	}
	s.logger.Info("Session deleted", "session_id", id)
	return nil
}

// SetActive deactivates every session of the owner, then activates one, in a
// single transaction.
func (s *SQLiteStorage) SetActive(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID string
	err = tx.QueryRowContext(ctx, `SELECT owner_id FROM sessions WHERE id = ?`, id.String()).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session owner: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET is_active = 1 WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to activate session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}
	return nil
}
