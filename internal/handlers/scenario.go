package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
)

type ScenarioHandler struct {
	catalog *scenario.Catalog
	log     *slog.Logger
}

func NewScenarioHandler(catalog *scenario.Catalog, log *slog.Logger) *ScenarioHandler {
	return &ScenarioHandler{
		catalog: catalog,
		log:     log,
	}
}

// ServeHTTP handles scenario requests
// Routes:
// GET /v1/scenarios      - List scenarios
// GET /v1/scenarios/{id} - Full scenario definition
func (h *ScenarioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.log, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/scenarios"), "/")
	if id == "" {
		writeJSON(w, h.log, http.StatusOK, h.catalog.List())
		return
	}

	scen, ok := h.catalog.Get(id)
	if !ok {
		writeError(w, h.log, http.StatusNotFound, "Scenario not found")
		return
	}
	writeJSON(w, h.log, http.StatusOK, scen)
}
