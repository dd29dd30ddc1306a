package chat

import (
	"fmt"
	"strings"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleSystem    = "system"
)

// MaxActionLength bounds the free text a player can submit in one turn.
const MaxActionLength = 2000

// ChatMessage is a single message sent to an LLM provider.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// TurnRequest is the body of a turn submitted to the API.
type TurnRequest struct {
	Action string `json:"action"`
}

// Validate trims the action and checks that it can be played.
func (tr *TurnRequest) Validate() error {
	tr.Action = strings.TrimSpace(tr.Action)
	if tr.Action == "" {
		return fmt.Errorf("action cannot be empty")
	}
	if len(tr.Action) > MaxActionLength {
		return fmt.Errorf("action exceeds %d characters", MaxActionLength)
	}
	return nil
}

// WithSpeaker prefixes a line with the speaker's name unless it already
// starts with a short "Name:" prefix.
func WithSpeaker(text, speaker string) string {
	if speaker == "" {
		return text
	}
	if idx := strings.Index(text, ":"); idx > 0 && idx <= 30 {
		if len(strings.Fields(text[:idx])) <= 2 {
			return text
		}
	}
	return speaker + ": " + text
}
