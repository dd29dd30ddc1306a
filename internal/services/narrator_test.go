package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/roleplay-agent/internal/metrics"
	"github.com/jwebster45206/roleplay-agent/pkg/chat"
	"github.com/jwebster45206/roleplay-agent/pkg/prompts"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:               "harbor",
		Name:             "Harbor Town",
		Rating:           scenario.RatingPG,
		Attributes:       map[string]string{"Agility": "Speed and balance"},
		StartingLocation: "The Docks",
		OpeningPrompt:    "Gulls cry over the harbor.",
	}
}

func testPromptState() *prompts.PromptState {
	scen := testScenario()
	gs := state.NewGameState("user-1", "Mara", scen)
	return prompts.ToPromptState(gs, scen, gs.EffectiveAttributes(scen))
}

func TestLLMNarrator_ParseIntent(t *testing.T) {
	llm := NewMockLLMService()
	llm.SetStructuredResponses(map[string]string{
		prompts.IntentSchemaName: `{"item_changes":[],"attribute_changes":[],"skill_changes":[],"location":null,"flag_updates":[],"skill_check":{"attribute":"Agility","difficulty":12,"requires_roll":true}}`,
	})
	n := NewLLMNarrator(llm, time.Second, 0, metrics.New(), discardLogger())

	delta, err := n.ParseIntent(context.Background(), IntentRequest{Action: "I leap the gap.", State: testPromptState()})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if delta.SkillCheck == nil || delta.SkillCheck.Difficulty != 12 {
		t.Errorf("Expected skill check with difficulty 12, got %+v", delta.SkillCheck)
	}

	_, calls := llm.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 structured call, got %d", len(calls))
	}
	if calls[0].Schema.Name != prompts.IntentSchemaName {
		t.Errorf("Expected schema %s, got %s", prompts.IntentSchemaName, calls[0].Schema.Name)
	}
	if _, ok := calls[0].Schema.Schema["properties"].(map[string]any)["skill_check"]; !ok {
		t.Error("Expected intent schema to include skill_check")
	}
}

func TestLLMNarrator_ParseIntentMalformed(t *testing.T) {
	llm := NewMockLLMService()
	llm.SetStructuredResponses(map[string]string{prompts.IntentSchemaName: "I cannot do that."})
	n := NewLLMNarrator(llm, time.Second, 0, nil, discardLogger())

	_, err := n.ParseIntent(context.Background(), IntentRequest{Action: "I wait.", State: testPromptState()})
	if !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("Expected ErrMalformedOutput, got %v", err)
	}
}

func TestLLMNarrator_GenerateNarrative(t *testing.T) {
	llm := NewMockLLMService()
	llm.SetChatResponse("You leap across the gap and land hard. Roll a d20 for damage. Damn, that stings.", nil)
	n := NewLLMNarrator(llm, time.Second, 2, nil, discardLogger())

	history := []state.DialogueEntry{
		{Speaker: state.SpeakerNarrator, Text: "Gulls cry over the harbor."},
		{Speaker: state.SpeakerPlayer, Text: "I walk to the pier."},
		{Speaker: state.SpeakerNarrator, Text: "The pier creaks."},
	}
	got, err := n.GenerateNarrative(context.Background(), NarrativeRequest{
		History:   history,
		Action:    "I leap the gap.",
		Mechanics: "Skill check (Agility vs 12): rolled 15 +0 = 15, success.",
		Scenario:  testScenario(),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Contains(got, "d20") {
		t.Errorf("Expected dice prompt to be stripped, got %q", got)
	}
	if strings.Contains(got, "Damn") {
		t.Errorf("Expected profanity to be softened for PG, got %q", got)
	}

	calls, _ := llm.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 chat call, got %d", len(calls))
	}
	msgs := calls[0].Messages
	// system, 2 history entries, action, mechanics, post prompt
	if len(msgs) != 6 {
		t.Fatalf("Expected 6 messages, got %d", len(msgs))
	}
	if msgs[1].Content != "I walk to the pier." || msgs[1].Role != chat.ChatRoleUser {
		t.Errorf("Expected windowed history to start at the player entry, got %+v", msgs[1])
	}
	if !strings.Contains(msgs[4].Content, "Skill check") {
		t.Errorf("Expected mechanics message, got %q", msgs[4].Content)
	}
}

func TestLLMNarrator_GenerateNarrativeEmpty(t *testing.T) {
	llm := NewMockLLMService()
	llm.SetChatResponse("   ", nil)
	n := NewLLMNarrator(llm, time.Second, 0, nil, discardLogger())

	_, err := n.GenerateNarrative(context.Background(), NarrativeRequest{Action: "I wait.", Scenario: testScenario()})
	if !errors.Is(err, ErrEmptyNarrative) {
		t.Errorf("Expected ErrEmptyNarrative, got %v", err)
	}
}

func TestLLMNarrator_Timeout(t *testing.T) {
	llm := NewMockLLMService()
	llm.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	n := NewLLMNarrator(llm, 20*time.Millisecond, 0, nil, discardLogger())

	_, err := n.GenerateNarrative(context.Background(), NarrativeRequest{Action: "I wait.", Scenario: testScenario()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestLLMNarrator_ExtractDelta(t *testing.T) {
	llm := NewMockLLMService()
	llm.SetStructuredResponses(map[string]string{
		prompts.ExtractionSchemaName: `{"item_changes":[{"item":"rope","quantity":1}],"location":"The Lighthouse","skill_check":{"attribute":"Agility","difficulty":5,"requires_roll":true}}`,
	})
	n := NewLLMNarrator(llm, time.Second, 0, nil, discardLogger())

	delta, err := n.ExtractDelta(context.Background(), ExtractionRequest{
		Narrative: "You find a rope and climb to the lighthouse.",
		State:     testPromptState(),
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if delta.SkillCheck != nil {
		t.Error("Expected extraction to drop skill checks")
	}
	if delta.Location == nil || *delta.Location != "The Lighthouse" {
		t.Errorf("Unexpected location %v", delta.Location)
	}

	_, calls := llm.GetCalls()
	if _, ok := calls[0].Schema.Schema["properties"].(map[string]any)["skill_check"]; ok {
		t.Error("Expected extraction schema without skill_check")
	}
}

func TestLLMNarrator_ExtractDeltaRequiresNarrative(t *testing.T) {
	llm := NewMockLLMService()
	n := NewLLMNarrator(llm, time.Second, 0, nil, discardLogger())

	if _, err := n.ExtractDelta(context.Background(), ExtractionRequest{State: testPromptState()}); err == nil {
		t.Error("Expected error for empty narrative")
	}
	if _, calls := llm.GetCalls(); len(calls) != 0 {
		t.Errorf("Expected no provider call, got %d", len(calls))
	}
}
