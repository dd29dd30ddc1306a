package turn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/roleplay-agent/internal/metrics"
	"github.com/jwebster45206/roleplay-agent/internal/services"
	"github.com/jwebster45206/roleplay-agent/internal/services/events"
	sessionstore "github.com/jwebster45206/roleplay-agent/internal/storage"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

const owner = "user-1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func harborScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:   "harbor",
		Name: "Harbor Town",
		Attributes: map[string]string{
			"Strength": "Raw physical power",
			"Agility":  "Speed and balance",
		},
		StartingLocation: "The Docks",
		OpeningPrompt:    "Gulls cry over the harbor.",
		Customizations: map[string]scenario.Customization{
			"background": {Options: map[string]scenario.Option{
				"sailor": {Bonuses: map[string]int{"Strength": 2}},
			}},
		},
	}
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []events.EventType
}

func (r *recorder) Publish(ctx context.Context, sessionID uuid.UUID, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.Type)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.EventType(nil), r.events...)
}

type fixture struct {
	store     *storage.MockStorage
	narrator  *services.MockNarrator
	events    *recorder
	processor *Processor
	sessionID uuid.UUID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	scen := harborScenario()
	store := storage.NewMockStorage()
	gs := state.NewGameState(owner, "Mara", scen)
	id, err := store.Create(context.Background(), owner, scen.ID, gs)
	require.NoError(t, err)

	f := &fixture{
		store:     store,
		narrator:  services.NewMockNarrator(),
		events:    &recorder{},
		sessionID: id,
	}
	opts = append([]Option{WithPublisher(f.events), WithRoller(state.FixedRoller(15)), WithMetrics(metrics.New())}, opts...)
	f.processor = NewProcessor(store, scenario.NewCatalog(scen), f.narrator, discardLogger(), opts...)
	return f
}

func (f *fixture) load(t *testing.T) *state.GameState {
	t.Helper()
	gs, err := f.store.Get(context.Background(), f.sessionID)
	require.NoError(t, err)
	require.NotNil(t, gs)
	return gs
}

func strPtr(s string) *string { return &s }

func TestResolve_Success(t *testing.T) {
	f := newFixture(t)
	f.narrator.ParseIntentFunc = func(ctx context.Context, req services.IntentRequest) (*state.Delta, error) {
		return &state.Delta{ItemChanges: []state.ItemChange{{Item: "rope", Quantity: 1}}}, nil
	}
	f.narrator.GenerateNarrativeFunc = func(ctx context.Context, req services.NarrativeRequest) (string, error) {
		return "You coil the rope over your shoulder and climb toward the lighthouse.", nil
	}
	f.narrator.ExtractDeltaFunc = func(ctx context.Context, req services.ExtractionRequest) (*state.Delta, error) {
		return &state.Delta{Location: strPtr("The Lighthouse")}, nil
	}

	res, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "  I grab the rope.  ")
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Empty(t, res.FailedStage)
	assert.Len(t, res.Mechanics, 2)
	assert.Equal(t, 1, res.State.ItemQuantity("rope"))
	assert.Equal(t, "The Lighthouse", res.State.Location)
	assert.Equal(t, map[string]int{"Strength": 5, "Agility": 5}, res.Effective)

	saved := f.load(t)
	require.Len(t, saved.History, 3)
	assert.Equal(t, state.SpeakerPlayer, saved.History[1].Speaker)
	assert.Equal(t, "I grab the rope.", saved.History[1].Text)
	assert.Equal(t, state.SpeakerNarrator, saved.History[2].Speaker)
	assert.Equal(t, res.Narrative, saved.History[2].Text)
	assert.Equal(t, 1, saved.Turn)
	assert.Equal(t, "The Lighthouse", saved.Location)

	assert.Equal(t, []events.EventType{
		events.EventTypeTurnStarted,
		events.EventTypeTurnIntentApplied,
		events.EventTypeTurnNarrated,
		events.EventTypeTurnCompleted,
	}, f.events.types())
}

func TestResolve_CallSequence(t *testing.T) {
	f := newFixture(t)
	var order []string
	f.narrator.ParseIntentFunc = func(ctx context.Context, req services.IntentRequest) (*state.Delta, error) {
		order = append(order, "intent")
		assert.Equal(t, "I jump.", req.Action)
		return &state.Delta{AttributeChanges: []state.AttributeChange{{Attribute: "Agility", Delta: 1}}}, nil
	}
	f.narrator.GenerateNarrativeFunc = func(ctx context.Context, req services.NarrativeRequest) (string, error) {
		order = append(order, "narrative")
		// History stops before the current action.
		require.Len(t, req.History, 1)
		assert.Equal(t, state.SpeakerNarrator, req.History[0].Speaker)
		assert.Contains(t, req.Mechanics, "Agility +1")
		return "You land lightly.", nil
	}
	f.narrator.ExtractDeltaFunc = func(ctx context.Context, req services.ExtractionRequest) (*state.Delta, error) {
		order = append(order, "extraction")
		assert.Equal(t, "You land lightly.", req.Narrative)
		// Effective attributes are recomputed after the intent delta.
		assert.Equal(t, 6, req.State.Attributes["Agility"])
		return &state.Delta{}, nil
	}

	_, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "I jump.")
	require.NoError(t, err)
	assert.Equal(t, []string{"intent", "narrative", "extraction"}, order)
}

func TestResolve_SkillCheck(t *testing.T) {
	f := newFixture(t, WithRoller(state.FixedRoller(20)))
	f.narrator.ParseIntentFunc = func(ctx context.Context, req services.IntentRequest) (*state.Delta, error) {
		return &state.Delta{SkillCheck: &state.SkillCheck{Attribute: "Agility", Difficulty: 25, RequiresRoll: true}}, nil
	}
	f.narrator.ExtractDeltaFunc = func(ctx context.Context, req services.ExtractionRequest) (*state.Delta, error) {
		// A check in an extracted delta is never rolled.
		return &state.Delta{SkillCheck: &state.SkillCheck{Attribute: "Agility", Difficulty: 5, RequiresRoll: true}}, nil
	}

	res, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "I vault the railing.")
	require.NoError(t, err)
	require.NotNil(t, res.SkillCheck)
	assert.True(t, res.SkillCheck.Success)
	assert.True(t, res.SkillCheck.Critical)
	require.Len(t, res.Mechanics, 1)
	assert.True(t, strings.HasPrefix(res.Mechanics[0], "Skill check"))
}

func TestResolve_Degraded(t *testing.T) {
	boom := errors.New("provider unavailable")

	tests := []struct {
		name          string
		setup         func(n *services.MockNarrator)
		wantStage     string
		wantNarrative string
		wantCalls     [3]int
		wantRope      int
		wantLocation  string
		wantLastEvent events.EventType
	}{
		{
			name: "intent fails",
			setup: func(n *services.MockNarrator) {
				n.ParseIntentFunc = func(ctx context.Context, req services.IntentRequest) (*state.Delta, error) {
					return nil, boom
				}
			},
			wantStage:     metrics.StageIntent,
			wantNarrative: PlaceholderNarration,
			wantCalls:     [3]int{1, 0, 0},
			wantLocation:  "The Docks",
			wantLastEvent: events.EventTypeTurnDegraded,
		},
		{
			name: "narrative fails",
			setup: func(n *services.MockNarrator) {
				n.ParseIntentFunc = func(ctx context.Context, req services.IntentRequest) (*state.Delta, error) {
					return &state.Delta{ItemChanges: []state.ItemChange{{Item: "rope", Quantity: 1}}}, nil
				}
				n.GenerateNarrativeFunc = func(ctx context.Context, req services.NarrativeRequest) (string, error) {
					return "", context.DeadlineExceeded
				}
			},
			wantStage:     metrics.StageNarrative,
			wantNarrative: PlaceholderNarration,
			wantCalls:     [3]int{1, 1, 0},
			wantRope:      1,
			wantLocation:  "The Docks",
			wantLastEvent: events.EventTypeTurnDegraded,
		},
		{
			name: "extraction fails",
			setup: func(n *services.MockNarrator) {
				n.GenerateNarrativeFunc = func(ctx context.Context, req services.NarrativeRequest) (string, error) {
					return "The fog thickens.", nil
				}
				n.ExtractDeltaFunc = func(ctx context.Context, req services.ExtractionRequest) (*state.Delta, error) {
					return nil, services.ErrMalformedOutput
				}
			},
			wantStage:     metrics.StageExtraction,
			wantNarrative: "The fog thickens.",
			wantCalls:     [3]int{1, 1, 1},
			wantLocation:  "The Docks",
			wantLastEvent: events.EventTypeTurnDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.narrator)

			res, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "I wait.")
			require.NoError(t, err)

			assert.Equal(t, OutcomeDegraded, res.Outcome)
			assert.Equal(t, tt.wantStage, res.FailedStage)
			assert.Equal(t, tt.wantNarrative, res.Narrative)

			intent, narrative, extraction := f.narrator.CallCounts()
			assert.Equal(t, tt.wantCalls, [3]int{intent, narrative, extraction})

			saved := f.load(t)
			require.Len(t, saved.History, 3)
			assert.Equal(t, "I wait.", saved.History[1].Text)
			assert.Equal(t, tt.wantNarrative, saved.History[2].Text)
			assert.Equal(t, 1, saved.Turn)
			assert.Equal(t, tt.wantRope, saved.ItemQuantity("rope"))
			assert.Equal(t, tt.wantLocation, saved.Location)

			types := f.events.types()
			assert.Equal(t, tt.wantLastEvent, types[len(types)-1])
		})
	}
}

func TestResolve_RejectsBeforeMutation(t *testing.T) {
	tests := []struct {
		name    string
		caller  string
		id      func(f *fixture) uuid.UUID
		action  string
		wantErr error
	}{
		{"unauthenticated", "", func(f *fixture) uuid.UUID { return f.sessionID }, "I wait.", ErrUnauthorized},
		{"missing session", owner, func(f *fixture) uuid.UUID { return uuid.New() }, "I wait.", ErrSessionNotFound},
		{"other owner", "user-2", func(f *fixture) uuid.UUID { return f.sessionID }, "I wait.", ErrForbidden},
		{"empty action", owner, func(f *fixture) uuid.UUID { return f.sessionID }, "   ", ErrEmptyAction},
		{"long action", owner, func(f *fixture) uuid.UUID { return f.sessionID }, strings.Repeat("a", 2001), ErrActionTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before := f.load(t)
			putsBefore := f.store.PutCalls

			_, err := f.processor.Resolve(context.Background(), tt.caller, tt.id(f), tt.action)
			assert.ErrorIs(t, err, tt.wantErr)

			intent, narrative, extraction := f.narrator.CallCounts()
			assert.Zero(t, intent+narrative+extraction)
			assert.Equal(t, putsBefore, f.store.PutCalls)
			assert.Equal(t, before.History, f.load(t).History)
			assert.Empty(t, f.events.types())
		})
	}
}

func TestResolve_UnknownScenario(t *testing.T) {
	store := storage.NewMockStorage()
	gs := state.NewGameState(owner, "Mara", harborScenario())
	id, err := store.Create(context.Background(), owner, "retired", gs)
	require.NoError(t, err)

	p := NewProcessor(store, scenario.NewCatalog(harborScenario()), services.NewMockNarrator(), discardLogger())
	_, err = p.Resolve(context.Background(), owner, id, "I wait.")
	assert.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestResolve_LoadError(t *testing.T) {
	f := newFixture(t)
	f.store.SetGetError(errors.New("connection refused"))

	_, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "I wait.")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestResolve_SaveFailure(t *testing.T) {
	f := newFixture(t)
	f.store.SetPutError(errors.New("disk full"))

	_, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "I wait.")
	assert.ErrorIs(t, err, ErrSaveFailed)

	f.store.SetPutError(nil)
	saved := f.load(t)
	assert.Len(t, saved.History, 1)
	assert.Equal(t, 0, saved.Turn)

	types := f.events.types()
	assert.Equal(t, events.EventTypeTurnFailed, types[len(types)-1])
}

func TestResolve_SavesAfterCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.narrator.GenerateNarrativeFunc = func(ctx context.Context, req services.NarrativeRequest) (string, error) {
		cancel()
		return "", ctx.Err()
	}

	res, err := f.processor.Resolve(ctx, owner, f.sessionID, "I wait.")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Len(t, f.load(t).History, 3)
}

func TestResolve_HistoryGrowsByTwo(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.narrator.GenerateNarrativeFunc = func(ctx context.Context, req services.NarrativeRequest) (string, error) {
		calls++
		if calls%2 == 0 {
			return "", errors.New("flaky")
		}
		return "Waves lap at the pier.", nil
	}

	for i := 1; i <= 4; i++ {
		_, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "I wait.")
		require.NoError(t, err)
		saved := f.load(t)
		assert.Len(t, saved.History, 1+2*i)
		assert.Equal(t, i, saved.Turn)
	}
}

func TestResolve_DeletedDuringTurn(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.SessionStore{
		"mock": func(t *testing.T) storage.SessionStore { return storage.NewMockStorage() },
		"redis": func(t *testing.T) storage.SessionStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return sessionstore.NewRedisStorageWithClient(client, discardLogger())
		},
		"sqlite": func(t *testing.T) storage.SessionStore {
			s, err := sessionstore.OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"), discardLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			scen := harborScenario()
			store := newStore(t)
			id, err := store.Create(ctx, owner, scen.ID, state.NewGameState(owner, "Mara", scen))
			require.NoError(t, err)

			narrator := services.NewMockNarrator()
			narrator.GenerateNarrativeFunc = func(ctx context.Context, req services.NarrativeRequest) (string, error) {
				require.NoError(t, store.Delete(ctx, id))
				return "The pier creaks.", nil
			}
			rec := &recorder{}
			p := NewProcessor(store, scenario.NewCatalog(scen), narrator, discardLogger(),
				WithPublisher(rec), WithRoller(state.FixedRoller(10)))

			_, err = p.Resolve(ctx, owner, id, "I wait.")
			assert.ErrorIs(t, err, ErrSessionNotFound)

			gs, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, gs, "deleted session must stay deleted")
			list, err := store.ListByOwner(ctx, owner)
			require.NoError(t, err)
			assert.Empty(t, list)

			types := rec.types()
			assert.Equal(t, events.EventTypeTurnFailed, types[len(types)-1])
		})
	}
}

func TestResolve_NonOwnerDoesNotWaitForLock(t *testing.T) {
	locker := sessionstore.NewMemoryLocker(time.Minute)
	f := newFixture(t, WithLocker(locker))

	unlock, err := locker.Lock(context.Background(), f.sessionID)
	require.NoError(t, err)
	defer unlock()

	start := time.Now()
	_, err = f.processor.Resolve(context.Background(), "intruder", f.sessionID, "I wait.")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.processor.Resolve(context.Background(), owner, uuid.New(), "I wait.")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_BusySession(t *testing.T) {
	locker := sessionstore.NewMemoryLocker(20 * time.Millisecond)
	f := newFixture(t, WithLocker(locker))

	unlock, err := locker.Lock(context.Background(), f.sessionID)
	require.NoError(t, err)
	defer unlock()

	_, err = f.processor.Resolve(context.Background(), owner, f.sessionID, "I wait.")
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.Zero(t, f.store.PutCalls)
}

func TestResolve_ConcurrentTurnsSerialize(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.processor.Resolve(context.Background(), owner, f.sessionID, "I wait.")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	saved := f.load(t)
	assert.Len(t, saved.History, 11)
	assert.Equal(t, 5, saved.Turn)
}
