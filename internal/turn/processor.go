// Package turn resolves a player's action against a persisted game session.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/roleplay-agent/internal/logger"
	"github.com/jwebster45206/roleplay-agent/internal/metrics"
	"github.com/jwebster45206/roleplay-agent/internal/middleware"
	"github.com/jwebster45206/roleplay-agent/internal/services"
	"github.com/jwebster45206/roleplay-agent/internal/services/events"
	sessionstore "github.com/jwebster45206/roleplay-agent/internal/storage"
	"github.com/jwebster45206/roleplay-agent/pkg/chat"
	"github.com/jwebster45206/roleplay-agent/pkg/prompts"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

// PlaceholderNarration replaces the narrative of a turn whose narration failed.
const PlaceholderNarration = "The narrator could not respond. Please try again."

const (
	defaultLockWait = 10 * time.Second
	saveTimeout     = 10 * time.Second
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrSessionNotFound  = errors.New("session not found")
	ErrForbidden        = errors.New("session belongs to another user")
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrEmptyAction      = errors.New("action cannot be empty")
	ErrActionTooLong    = fmt.Errorf("action exceeds %d characters", chat.MaxActionLength)
	ErrSessionBusy      = errors.New("another turn is in progress for this session")
	ErrSaveFailed       = errors.New("failed to save session")
)

// Outcome tags how a turn finished.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	outcomeFailed   Outcome = "failed"
)

// Result is the state after a turn and what the player should see.
type Result struct {
	State       *state.GameState        `json:"state"`
	Effective   map[string]int          `json:"effective_attributes"`
	Narrative   string                  `json:"narrative"`
	Mechanics   []string                `json:"mechanics"` // Intent and extraction summaries, non-empty only
	SkillCheck  *state.SkillCheckResult `json:"skill_check,omitempty"`
	Outcome     Outcome                 `json:"outcome"`
	FailedStage string                  `json:"failed_stage,omitempty"`
}

// Processor runs the turn pipeline. It is safe for concurrent use; turns on
// the same session are serialized by its Locker.
type Processor struct {
	store    storage.SessionStore
	catalog  *scenario.Catalog
	narrator services.Narrator
	locker   storage.Locker
	events   events.Publisher
	metrics  *metrics.Metrics
	roller   state.Roller
	logger   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLocker replaces the default in-process session locker.
func WithLocker(l storage.Locker) Option {
	return func(p *Processor) { p.locker = l }
}

// WithPublisher sends turn events to pub.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Processor) { p.events = pub }
}

// WithMetrics records turn outcomes and skill checks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithRoller replaces the d20 roller used by skill checks.
func WithRoller(r state.Roller) Option {
	return func(p *Processor) { p.roller = r }
}

// NewProcessor creates a processor.
func NewProcessor(store storage.SessionStore, catalog *scenario.Catalog, narrator services.Narrator, log *slog.Logger, opts ...Option) *Processor {
	if log == nil {
		log = slog.Default()
	}
	p := &Processor{
		store:    store,
		catalog:  catalog,
		narrator: narrator,
		roller:   state.NewRandomRoller(),
		logger:   log,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.locker == nil {
		p.locker = sessionstore.NewMemoryLocker(defaultLockWait)
	}
	return p
}

// turnRun carries the working data of one turn.
type turnRun struct {
	gs        *state.GameState
	scen      *scenario.Scenario
	action    string
	requestID string
	log       *slog.Logger
	result    *Result
}

// Resolve plays action on the caller's session. Authorization, lookup and
// validation errors return before anything is changed. A failed narration
// call degrades the turn but the state is still saved; a failed save is
// returned as ErrSaveFailed.
func (p *Processor) Resolve(ctx context.Context, callerID string, sessionID uuid.UUID, action string) (*Result, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, ErrUnauthorized
	}

	// Reject unknown sessions and non-owners before contending for the lock.
	if _, err := p.loadOwned(ctx, callerID, sessionID); err != nil {
		return nil, err
	}

	unlock, err := p.locker.Lock(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrLockTimeout) {
			return nil, ErrSessionBusy
		}
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	defer unlock()

	run, err := p.prepare(ctx, callerID, sessionID, action)
	if err != nil {
		return nil, err
	}

	p.play(ctx, run)

	if err := p.save(ctx, run); err != nil {
		p.metrics.TurnResolved(string(outcomeFailed))
		p.publish(ctx, sessionID, events.TurnFailed(sessionID, run.requestID, err.Error()))
		return nil, err
	}

	p.metrics.TurnResolved(string(run.result.Outcome))
	if run.result.Outcome == OutcomeDegraded {
		p.publish(ctx, sessionID, events.TurnDegraded(sessionID, run.requestID, run.gs.Turn, run.result.FailedStage))
	} else {
		p.publish(ctx, sessionID, events.TurnCompleted(sessionID, run.requestID, run.gs.Turn, run.gs.Location))
	}
	run.log.Info("Turn resolved",
		"turn", run.gs.Turn,
		"outcome", run.result.Outcome,
		"failed_stage", run.result.FailedStage)
	return run.result, nil
}

func (p *Processor) loadOwned(ctx context.Context, callerID string, sessionID uuid.UUID) (*state.GameState, error) {
	gs, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if gs == nil {
		return nil, ErrSessionNotFound
	}
	if gs.OwnerID != callerID {
		return nil, ErrForbidden
	}
	return gs, nil
}

// prepare loads and checks everything a turn needs without mutating anything.
// It runs under the session lock, so the session is loaded again.
func (p *Processor) prepare(ctx context.Context, callerID string, sessionID uuid.UUID, action string) (*turnRun, error) {
	gs, err := p.loadOwned(ctx, callerID, sessionID)
	if err != nil {
		return nil, err
	}

	scen, ok := p.catalog.Get(gs.ScenarioID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, gs.ScenarioID)
	}

	action = strings.TrimSpace(action)
	if action == "" {
		return nil, ErrEmptyAction
	}
	if len(action) > chat.MaxActionLength {
		return nil, ErrActionTooLong
	}

	requestID := middleware.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &turnRun{
		gs:        gs,
		scen:      scen,
		action:    action,
		requestID: requestID,
		log:       logger.WithRequestID(logger.WithSession(p.logger, sessionID.String(), callerID), requestID),
		result:    &Result{State: gs, Mechanics: make([]string, 0, 2), Outcome: OutcomeSuccess},
	}, nil
}

// play runs the three narration calls and applies their deltas. Every
// failure is recorded on the result; play itself never fails.
func (p *Processor) play(ctx context.Context, run *turnRun) {
	gs, scen := run.gs, run.scen

	history := slices.Clone(gs.History)
	effective := gs.EffectiveAttributes(scen)
	gs.AppendPlayer(run.action)
	p.publish(ctx, gs.ID, events.TurnStarted(gs.ID, run.requestID, run.action))

	// Intent
	intent, err := p.narrator.ParseIntent(ctx, services.IntentRequest{
		Action: run.action,
		State:  prompts.ToPromptState(gs, scen, effective),
	})
	if err != nil {
		p.degrade(run, metrics.StageIntent, err)
		p.finish(run, PlaceholderNarration)
		return
	}

	applier := state.NewApplier(gs, intent, effective, run.log).WithRoller(p.roller)
	intentSummary := applier.Apply()
	run.addMechanics(intentSummary)
	if check := applier.SkillCheck(); check != nil {
		run.result.SkillCheck = check
		p.metrics.SkillCheckResolved(check.Success, check.Critical)
	}
	p.publish(ctx, gs.ID, events.TurnIntentApplied(gs.ID, run.requestID, intentSummary))

	// Narrative
	effective = gs.EffectiveAttributes(scen)
	narrative, err := p.narrator.GenerateNarrative(ctx, services.NarrativeRequest{
		History:   history,
		Action:    run.action,
		Mechanics: intentSummary,
		Scenario:  scen,
	})
	if err != nil {
		p.degrade(run, metrics.StageNarrative, err)
		p.finish(run, PlaceholderNarration)
		return
	}
	p.publish(ctx, gs.ID, events.TurnNarrated(gs.ID, run.requestID, narrative))

	// Extraction
	extracted, err := p.narrator.ExtractDelta(ctx, services.ExtractionRequest{
		Narrative: narrative,
		State:     prompts.ToPromptState(gs, scen, effective),
	})
	if err != nil {
		p.degrade(run, metrics.StageExtraction, err)
	} else {
		run.addMechanics(state.NewApplier(gs, extracted, effective, run.log).WithoutSkillCheck().Apply())
	}
	p.finish(run, narrative)
}

func (p *Processor) degrade(run *turnRun, stage string, err error) {
	run.log.Warn("Narration failed, degrading turn", "stage", stage, "error", err)
	run.result.Outcome = OutcomeDegraded
	run.result.FailedStage = stage
}

func (p *Processor) finish(run *turnRun, narrative string) {
	run.gs.AppendNarrator(narrative)
	run.gs.Turn++
	run.result.Narrative = narrative
	run.result.Effective = run.gs.EffectiveAttributes(run.scen)
}

func (run *turnRun) addMechanics(summary string) {
	if summary != "" {
		run.result.Mechanics = append(run.result.Mechanics, summary)
	}
}

// save persists the turn even if the request was cancelled mid-turn.
func (p *Processor) save(ctx context.Context, run *turnRun) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := p.store.Put(saveCtx, run.gs.ID, run.gs); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			run.log.Warn("Session deleted during turn, discarding result")
			return fmt.Errorf("%w: deleted during the turn", ErrSessionNotFound)
		}
		run.log.Error("Failed to save turn", "error", err)
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

func (p *Processor) publish(ctx context.Context, sessionID uuid.UUID, event events.Event) {
	if p.events == nil {
		return
	}
	// Failures are logged by the publisher.
	_ = p.events.Publish(context.WithoutCancel(ctx), sessionID, event)
}
