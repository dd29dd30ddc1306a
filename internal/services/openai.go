package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/jwebster45206/roleplay-agent/pkg/chat"
)

const (
	DefaultOpenAITemperature = 0.7
	DefaultOpenAIMaxTokens   = 1024
)

// OpenAIService implements LLMService for OpenAI and any API compatible
// with its chat completions endpoint, such as Ollama or OpenRouter.
type OpenAIService struct {
	client           *openai.Client
	modelName        string
	backendModelName string
	logger           *slog.Logger
}

// NewOpenAIService creates a client. An empty baseURL uses the OpenAI default.
func NewOpenAIService(apiKey, baseURL, modelName, backendModelName string, logger *slog.Logger) *OpenAIService {
	if logger == nil {
		logger = slog.Default()
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIService{
		client:           openai.NewClientWithConfig(config),
		modelName:        modelName,
		backendModelName: backendModelName,
		logger:           logger,
	}
}

func toOpenAIMessages(messages []chat.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case chat.ChatRoleSystem:
			role = openai.ChatMessageRoleSystem
		case chat.ChatRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func (o *OpenAIService) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from model %s", req.Model)
	}
	o.logger.Debug("OpenAI response",
		"model", req.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	return o.complete(ctx, openai.ChatCompletionRequest{
		Model:       o.modelName,
		Messages:    toOpenAIMessages(messages),
		Temperature: DefaultOpenAITemperature,
		MaxTokens:   DefaultOpenAIMaxTokens,
	})
}

func (o *OpenAIService) Structured(ctx context.Context, messages []chat.ChatMessage, schema Schema) (string, error) {
	js, err := json.Marshal(schema.Schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return o.complete(ctx, openai.ChatCompletionRequest{
		Model:     backendModel(o.modelName, o.backendModelName),
		Messages:  toOpenAIMessages(messages),
		MaxTokens: DefaultOpenAIMaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schema.Name,
				Schema: json.RawMessage(js),
				Strict: true,
			},
		},
	})
}
