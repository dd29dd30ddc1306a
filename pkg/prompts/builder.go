package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/roleplay-agent/pkg/chat"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

// DefaultHistoryLimit is the number of dialogue entries sent with a narrative request.
const DefaultHistoryLimit = 20

// Builder constructs chat messages for the three narration calls of a turn
// using a fluent interface.
type Builder struct {
	scenario     *scenario.Scenario
	promptState  *PromptState
	history      []state.DialogueEntry
	action       string
	mechanics    string
	historyLimit int
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{historyLimit: DefaultHistoryLimit}
}

// WithScenario sets the scenario being played.
func (b *Builder) WithScenario(s *scenario.Scenario) *Builder {
	b.scenario = s
	return b
}

// WithPromptState sets the state summary for the structured calls.
func (b *Builder) WithPromptState(ps *PromptState) *Builder {
	b.promptState = ps
	return b
}

// WithHistory sets the dialogue history preceding the current action.
func (b *Builder) WithHistory(history []state.DialogueEntry) *Builder {
	b.history = history
	return b
}

// WithAction sets the player's action for this turn.
func (b *Builder) WithAction(action string) *Builder {
	b.action = action
	return b
}

// WithMechanics sets the summary of changes applied from the intent delta.
func (b *Builder) WithMechanics(summary string) *Builder {
	b.mechanics = summary
	return b
}

// WithHistoryLimit sets the chat history window size. Zero or less sends everything.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// BuildIntent returns the messages of the intent parsing call.
func (b *Builder) BuildIntent() ([]chat.ChatMessage, error) {
	if strings.TrimSpace(b.action) == "" {
		return nil, fmt.Errorf("action is required")
	}
	statePrompt, err := b.statePrompt()
	if err != nil {
		return nil, err
	}

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: IntentPrompt},
		{Role: chat.ChatRoleSystem, Content: statePrompt},
		{Role: chat.ChatRoleUser, Content: fmt.Sprintf(ActionInputTemplate, b.action)},
	}, nil
}

// BuildNarrative returns the messages of the narrative generation call:
// system prompt, windowed history, the action, the mechanics and a final reminder.
func (b *Builder) BuildNarrative() ([]chat.ChatMessage, error) {
	if b.scenario == nil {
		return nil, fmt.Errorf("scenario is required")
	}
	if strings.TrimSpace(b.action) == "" {
		return nil, fmt.Errorf("action is required")
	}

	history := b.windowedHistory()
	messages := make([]chat.ChatMessage, 0, len(history)+4)
	messages = append(messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: b.systemPrompt(),
	})

	for _, entry := range history {
		role := chat.ChatRoleAssistant
		if entry.Speaker == state.SpeakerPlayer {
			role = chat.ChatRoleUser
		}
		messages = append(messages, chat.ChatMessage{Role: role, Content: entry.Text})
	}

	messages = append(messages,
		chat.ChatMessage{Role: chat.ChatRoleUser, Content: b.action},
		chat.ChatMessage{Role: chat.ChatRoleSystem, Content: b.mechanicsPrompt()},
		chat.ChatMessage{Role: chat.ChatRoleSystem, Content: NarrativePostPrompt},
	)
	return messages, nil
}

// BuildExtraction returns the messages of the delta extraction call.
func (b *Builder) BuildExtraction(narrative string) ([]chat.ChatMessage, error) {
	if strings.TrimSpace(narrative) == "" {
		return nil, fmt.Errorf("narrative is required")
	}
	statePrompt, err := b.statePrompt()
	if err != nil {
		return nil, err
	}

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: ExtractionPrompt},
		{Role: chat.ChatRoleSystem, Content: statePrompt},
		{Role: chat.ChatRoleUser, Content: fmt.Sprintf(NarrativeInputTemplate, narrative)},
	}, nil
}

func (b *Builder) statePrompt() (string, error) {
	if b.promptState == nil {
		return "", fmt.Errorf("prompt state is required")
	}
	js, err := b.promptState.ToString()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(StatePromptTemplate, js), nil
}

func (b *Builder) systemPrompt() string {
	return fmt.Sprintf(NarratorSystemPrompt, b.scenario.Name, b.scenario.Description, ratingPrompt(b.scenario))
}

func (b *Builder) mechanicsPrompt() string {
	if strings.TrimSpace(b.mechanics) == "" {
		return NoMechanics
	}
	return fmt.Sprintf(MechanicsTemplate, b.mechanics)
}

func (b *Builder) windowedHistory() []state.DialogueEntry {
	if b.historyLimit <= 0 || len(b.history) <= b.historyLimit {
		return b.history
	}
	return b.history[len(b.history)-b.historyLimit:]
}
