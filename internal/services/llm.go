package services

import (
	"context"

	"github.com/jwebster45206/roleplay-agent/pkg/chat"
)

// Schema describes the structured output requested from a provider.
type Schema struct {
	Name   string
	Schema map[string]any
}

// LLMService defines the interface for interacting with an LLM provider.
type LLMService interface {
	// Chat returns free-form text from the storytelling model.
	Chat(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// Structured returns a JSON document matching schema from the backend
	// model, with the most deterministic settings the provider allows.
	Structured(ctx context.Context, messages []chat.ChatMessage, schema Schema) (string, error)
}

// backendModel picks the model for structured calls.
func backendModel(modelName, backendModelName string) string {
	if backendModelName != "" {
		return backendModelName
	}
	return modelName
}
