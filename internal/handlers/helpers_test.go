package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/roleplay-agent/internal/auth"
	"github.com/jwebster45206/roleplay-agent/internal/services"
	sessionstore "github.com/jwebster45206/roleplay-agent/internal/storage"
	"github.com/jwebster45206/roleplay-agent/internal/turn"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

func harborScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:          "harbor",
		Name:        "Harbor Town",
		Description: "A fog-bound port.",
		Attributes: map[string]string{
			"Strength": "Raw physical power",
			"Agility":  "Speed and balance",
		},
		StartingLocation: "The Docks",
		OpeningPrompt:    "Gulls cry over the harbor.",
		Customizations: map[string]scenario.Customization{
			"background": {Options: map[string]scenario.Option{
				"sailor": {Bonuses: map[string]int{"Strength": 2}},
				"thief":  {Bonuses: map[string]int{"Agility": 1}},
			}},
		},
	}
}

type sessionFixture struct {
	store    *storage.MockStorage
	narrator *services.MockNarrator
	catalog  *scenario.Catalog
	handler  *SessionHandler
}

func newSessionFixture() *sessionFixture {
	store := storage.NewMockStorage()
	catalog := scenario.NewCatalog(harborScenario())
	narrator := services.NewMockNarrator()
	locker := sessionstore.NewMemoryLocker(50 * time.Millisecond)
	processor := turn.NewProcessor(store, catalog, narrator, testLogger(),
		turn.WithLocker(locker), turn.WithRoller(state.FixedRoller(10)))
	return &sessionFixture{
		store:    store,
		narrator: narrator,
		catalog:  catalog,
		handler:  NewSessionHandler(store, catalog, processor, locker, nil, testLogger()),
	}
}

// seed stores a session for owner and returns it.
func (f *sessionFixture) seed(t *testing.T, owner string) *state.GameState {
	t.Helper()
	gs := state.NewGameState(owner, "Mara", harborScenario())
	if _, err := f.store.Create(context.Background(), owner, "harbor", gs); err != nil {
		t.Fatalf("Failed to seed session: %v", err)
	}
	return gs
}

// do sends a request as userID; an empty userID sends it unauthenticated.
func do(h http.Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
