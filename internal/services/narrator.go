package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/roleplay-agent/internal/metrics"
	"github.com/jwebster45206/roleplay-agent/pkg/prompts"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
	"github.com/jwebster45206/roleplay-agent/pkg/textfilter"
)

// DefaultNarrationTimeout bounds a single narration call.
const DefaultNarrationTimeout = 45 * time.Second

// ErrEmptyNarrative is returned when the model produced no usable prose.
var ErrEmptyNarrative = errors.New("empty narrative")

// IntentRequest is the input of the intent parsing call.
type IntentRequest struct {
	Action string
	State  *prompts.PromptState
}

// NarrativeRequest is the input of the narrative generation call.
type NarrativeRequest struct {
	History   []state.DialogueEntry // Entries before the current action
	Action    string
	Mechanics string // Summary of changes already applied this turn
	Scenario  *scenario.Scenario
}

// ExtractionRequest is the input of the delta extraction call.
type ExtractionRequest struct {
	Narrative string
	State     *prompts.PromptState
}

// Narrator performs the three language-model calls of a turn.
type Narrator interface {
	ParseIntent(ctx context.Context, req IntentRequest) (*state.Delta, error)
	GenerateNarrative(ctx context.Context, req NarrativeRequest) (string, error)
	ExtractDelta(ctx context.Context, req ExtractionRequest) (*state.Delta, error)
}

// LLMNarrator implements Narrator on top of an LLMService.
type LLMNarrator struct {
	llm          LLMService
	timeout      time.Duration
	historyLimit int
	filter       *textfilter.Filter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

var _ Narrator = (*LLMNarrator)(nil)

// NewLLMNarrator creates a narrator. A zero timeout uses DefaultNarrationTimeout;
// metrics may be nil.
func NewLLMNarrator(llm LLMService, timeout time.Duration, historyLimit int, m *metrics.Metrics, logger *slog.Logger) *LLMNarrator {
	if timeout <= 0 {
		timeout = DefaultNarrationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMNarrator{
		llm:          llm,
		timeout:      timeout,
		historyLimit: historyLimit,
		filter:       textfilter.New(),
		metrics:      m,
		logger:       logger,
	}
}

// ParseIntent asks the backend model for the mechanical effects of an action,
// including an optional skill check.
func (n *LLMNarrator) ParseIntent(ctx context.Context, req IntentRequest) (*state.Delta, error) {
	messages, err := prompts.New().
		WithPromptState(req.State).
		WithAction(req.Action).
		BuildIntent()
	if err != nil {
		return nil, fmt.Errorf("failed to build intent prompt: %w", err)
	}

	var delta *state.Delta
	err = n.timed(ctx, metrics.StageIntent, func(ctx context.Context) error {
		content, err := n.llm.Structured(ctx, messages, Schema{
			Name:   prompts.IntentSchemaName,
			Schema: prompts.DeltaSchema(true),
		})
		if err != nil {
			return err
		}
		delta, err = ParseDelta(content, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("intent parsing failed: %w", err)
	}
	return delta, nil
}

// GenerateNarrative asks the storytelling model for prose and cleans it for
// the scenario's content rating.
func (n *LLMNarrator) GenerateNarrative(ctx context.Context, req NarrativeRequest) (string, error) {
	messages, err := prompts.New().
		WithScenario(req.Scenario).
		WithHistory(req.History).
		WithHistoryLimit(n.historyLimit).
		WithAction(req.Action).
		WithMechanics(req.Mechanics).
		BuildNarrative()
	if err != nil {
		return "", fmt.Errorf("failed to build narrative prompt: %w", err)
	}

	var narrative string
	err = n.timed(ctx, metrics.StageNarrative, func(ctx context.Context) error {
		content, err := n.llm.Chat(ctx, messages)
		if err != nil {
			return err
		}
		narrative = strings.TrimSpace(n.filter.Clean(content, req.Scenario.GetRating()))
		if narrative == "" {
			return ErrEmptyNarrative
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("narrative generation failed: %w", err)
	}
	return narrative, nil
}

// ExtractDelta asks the backend model for the state changes a narrative
// implies. Skill checks are never extracted.
func (n *LLMNarrator) ExtractDelta(ctx context.Context, req ExtractionRequest) (*state.Delta, error) {
	messages, err := prompts.New().
		WithPromptState(req.State).
		BuildExtraction(req.Narrative)
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction prompt: %w", err)
	}

	var delta *state.Delta
	err = n.timed(ctx, metrics.StageExtraction, func(ctx context.Context) error {
		content, err := n.llm.Structured(ctx, messages, Schema{
			Name:   prompts.ExtractionSchemaName,
			Schema: prompts.DeltaSchema(false),
		})
		if err != nil {
			return err
		}
		delta, err = ParseDelta(content, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("delta extraction failed: %w", err)
	}
	return delta, nil
}

// timed runs one call under the narration timeout and records its latency.
func (n *LLMNarrator) timed(ctx context.Context, stage string, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	err := call(callCtx)
	took := time.Since(start)
	n.metrics.NarrationObserved(stage, took, err)

	if err != nil {
		n.logger.Warn("Narration call failed", "stage", stage, "duration", took, "error", err)
		return err
	}
	n.logger.Debug("Narration call completed", "stage", stage, "duration", took)
	return nil
}
