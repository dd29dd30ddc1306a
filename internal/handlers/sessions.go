package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/roleplay-agent/internal/auth"
	"github.com/jwebster45206/roleplay-agent/internal/turn"
	"github.com/jwebster45206/roleplay-agent/pkg/chat"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

const maxBodyBytes = 64 << 10

// CreateSessionRequest defines the request body for creating a new session
type CreateSessionRequest struct {
	ScenarioID     string            `json:"scenario_id"`
	CharacterName  string            `json:"character_name"`
	BaseAttributes map[string]int    `json:"base_attributes,omitempty"`
	Selections     map[string]string `json:"selections,omitempty"`
}

// SessionResponse is a session document with its derived attributes.
type SessionResponse struct {
	*state.GameState
	EffectiveAttributes map[string]int `json:"effective_attributes"`
}

type SessionHandler struct {
	store     storage.SessionStore
	catalog   *scenario.Catalog
	processor *turn.Processor
	locker    storage.Locker
	events    http.Handler
	logger    *slog.Logger
}

// NewSessionHandler creates the session handler. events serves the
// websocket route and may be nil.
func NewSessionHandler(store storage.SessionStore, catalog *scenario.Catalog, processor *turn.Processor, locker storage.Locker, events http.Handler, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		store:     store,
		catalog:   catalog,
		processor: processor,
		locker:    locker,
		events:    events,
		logger:    logger,
	}
}

// ServeHTTP handles HTTP requests for session operations
// Routes:
// POST   /v1/sessions               - Create a session
// GET    /v1/sessions               - List the caller's sessions
// GET    /v1/sessions/{id}          - Read a session
// PATCH  /v1/sessions/{id}          - Edit the character before the first turn
// DELETE /v1/sessions/{id}          - Delete a session
// POST   /v1/sessions/{id}/activate - Make a session the caller's active one
// POST   /v1/sessions/{id}/turns    - Play a turn
// GET    /v1/sessions/{id}/events   - Stream turn events (websocket)
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callerID := auth.UserID(r.Context())
	if callerID == "" {
		writeError(w, h.logger, http.StatusUnauthorized, "Authentication required")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if path == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r, callerID)
		case http.MethodGet:
			h.handleList(w, r, callerID)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: POST, GET")
		}
		return
	}

	idStr, action, _ := strings.Cut(path, "/")
	sessionID, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", idStr, "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleRead(w, r, callerID, sessionID)
	case action == "" && r.Method == http.MethodPatch:
		h.handlePatch(w, r, callerID, sessionID)
	case action == "" && r.Method == http.MethodDelete:
		h.handleDelete(w, r, callerID, sessionID)
	case action == "activate" && r.Method == http.MethodPost:
		h.handleActivate(w, r, callerID, sessionID)
	case action == "turns" && r.Method == http.MethodPost:
		h.handleTurn(w, r, callerID, sessionID)
	case action == "events" && r.Method == http.MethodGet && h.events != nil:
		h.events.ServeHTTP(w, r)
	case action == "" || action == "activate" || action == "turns" || action == "events":
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request, callerID string) {
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	scen, ok := h.catalog.Get(strings.TrimSpace(req.ScenarioID))
	if !ok {
		writeError(w, h.logger, http.StatusNotFound, "Scenario not found")
		return
	}
	name := strings.TrimSpace(req.CharacterName)
	if name == "" {
		writeError(w, h.logger, http.StatusBadRequest, "character_name is required")
		return
	}

	gs := state.NewGameState(callerID, name, scen)
	if err := gs.ApplyCharacterEdit(state.CharacterEdit{
		BaseAttributes: req.BaseAttributes,
		Selections:     req.Selections,
	}, scen); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	id, err := h.store.Create(ctx, callerID, scen.ID, gs)
	if err != nil {
		h.logger.Error("Failed to create session", "error", err, "scenario_id", scen.ID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create session")
		return
	}

	// The first session of an owner becomes the active one.
	if err := h.activateIfNone(ctx, callerID, id); err != nil {
		h.logger.Warn("Failed to activate new session", "error", err, "session_id", id)
	}

	created, err := h.store.Get(ctx, id)
	if err != nil || created == nil {
		h.logger.Error("Failed to reload created session", "error", err, "session_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return
	}

	h.logger.Info("Session created", "session_id", id, "owner_id", callerID, "scenario_id", scen.ID)
	writeJSON(w, h.logger, http.StatusCreated, h.view(created, scen))
}

func (h *SessionHandler) activateIfNone(ctx context.Context, ownerID string, id uuid.UUID) error {
	sessions, err := h.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.IsActive {
			return nil
		}
	}
	return h.store.SetActive(ctx, id)
}

func (h *SessionHandler) handleList(w http.ResponseWriter, r *http.Request, callerID string) {
	sessions, err := h.store.ListByOwner(r.Context(), callerID)
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err, "owner_id", callerID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sessions)
}

// loadOwned fetches a session and checks the caller owns it. On failure the
// error response has been written and nil is returned.
func (h *SessionHandler) loadOwned(w http.ResponseWriter, r *http.Request, callerID string, id uuid.UUID) *state.GameState {
	gs, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return nil
	}
	if gs == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return nil
	}
	if gs.OwnerID != callerID {
		h.logger.Warn("Session access denied", "session_id", id, "caller_id", callerID)
		writeError(w, h.logger, http.StatusForbidden, "Session belongs to another user")
		return nil
	}
	return gs
}

func (h *SessionHandler) view(gs *state.GameState, scen *scenario.Scenario) SessionResponse {
	return SessionResponse{GameState: gs, EffectiveAttributes: gs.EffectiveAttributes(scen)}
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, callerID string, id uuid.UUID) {
	gs := h.loadOwned(w, r, callerID, id)
	if gs == nil {
		return
	}
	scen, _ := h.catalog.Get(gs.ScenarioID)
	writeJSON(w, h.logger, http.StatusOK, h.view(gs, scen))
}

func (h *SessionHandler) handlePatch(w http.ResponseWriter, r *http.Request, callerID string, id uuid.UUID) {
	var edit state.CharacterEdit
	if err := decodeBody(w, r, &edit); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	if gs := h.loadOwned(w, r, callerID, id); gs == nil {
		return
	}
	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	gs := h.loadOwned(w, r, callerID, id)
	if gs == nil {
		return
	}
	scen, ok := h.catalog.Get(gs.ScenarioID)
	if !ok {
		writeError(w, h.logger, http.StatusUnprocessableEntity, "Scenario no longer available")
		return
	}

	if err := gs.ApplyCharacterEdit(edit, scen); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, state.ErrCharacterLocked) {
			status = http.StatusConflict
		}
		writeError(w, h.logger, status, err.Error())
		return
	}
	if err := h.store.Put(r.Context(), id, gs); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to save character edit", "error", err, "session_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save session")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, h.view(gs, scen))
}

// lock takes the session lock so the write cannot interleave with a turn.
// On failure the error response has been written.
func (h *SessionHandler) lock(w http.ResponseWriter, r *http.Request, id uuid.UUID) (func(), bool) {
	unlock, err := h.locker.Lock(r.Context(), id)
	if err != nil {
		h.logger.Warn("Session lock unavailable", "session_id", id, "error", err)
		writeError(w, h.logger, http.StatusConflict, "Session is busy")
		return nil, false
	}
	return unlock, true
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, callerID string, id uuid.UUID) {
	if gs := h.loadOwned(w, r, callerID, id); gs == nil {
		return
	}
	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to delete session", "error", err, "session_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	h.logger.Info("Session deleted", "session_id", id, "owner_id", callerID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleActivate(w http.ResponseWriter, r *http.Request, callerID string, id uuid.UUID) {
	if gs := h.loadOwned(w, r, callerID, id); gs == nil {
		return
	}
	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	if err := h.store.SetActive(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to activate session", "error", err, "session_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to activate session")
		return
	}
	gs, err := h.store.Get(r.Context(), id)
	if err != nil || gs == nil {
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, storage.Summarize(gs))
}

func (h *SessionHandler) handleTurn(w http.ResponseWriter, r *http.Request, callerID string, id uuid.UUID) {
	var req chat.TurnRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	result, err := h.processor.Resolve(r.Context(), callerID, id, req.Action)
	if err != nil {
		status, msg := turnErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Turn failed", "error", err, "session_id", id)
		}
		writeError(w, h.logger, status, msg)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}
