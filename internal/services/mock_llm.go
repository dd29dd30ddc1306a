package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/roleplay-agent/pkg/chat"
)

// MockLLMService is a mock implementation of LLMService for testing.
type MockLLMService struct {
	ChatFunc       func(ctx context.Context, messages []chat.ChatMessage) (string, error)
	StructuredFunc func(ctx context.Context, messages []chat.ChatMessage, schema Schema) (string, error)

	// Track calls for testing
	ChatCalls       []ChatCall
	StructuredCalls []StructuredCall

	mu sync.Mutex // protects all fields above
}

type ChatCall struct {
	Messages []chat.ChatMessage
}

type StructuredCall struct {
	Messages []chat.ChatMessage
	Schema   Schema
}

var _ LLMService = (*MockLLMService)(nil)

// NewMockLLMService creates a new mock LLM service
func NewMockLLMService() *MockLLMService {
	return &MockLLMService{
		ChatCalls:       make([]ChatCall, 0),
		StructuredCalls: make([]StructuredCall, 0),
	}
}

// Chat mocks free-form generation
func (m *MockLLMService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, ChatCall{Messages: messages})
	fn := m.ChatFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	return "Mock narrative.", nil
}

// Structured mocks structured generation. The default is an empty delta.
func (m *MockLLMService) Structured(ctx context.Context, messages []chat.ChatMessage, schema Schema) (string, error) {
	m.mu.Lock()
	m.StructuredCalls = append(m.StructuredCalls, StructuredCall{Messages: messages, Schema: schema})
	fn := m.StructuredFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, schema)
	}
	return "{}", nil
}

// SetChatResponse makes Chat return a fixed response
func (m *MockLLMService) SetChatResponse(content string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return content, err
	}
}

// SetStructuredResponses makes Structured return the given documents keyed
// by schema name.
func (m *MockLLMService) SetStructuredResponses(bySchema map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StructuredFunc = func(ctx context.Context, messages []chat.ChatMessage, schema Schema) (string, error) {
		if content, ok := bySchema[schema.Name]; ok {
			return content, nil
		}
		return "{}", nil
	}
}

// Reset clears all call tracking
func (m *MockLLMService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatCalls = make([]ChatCall, 0)
	m.StructuredCalls = make([]StructuredCall, 0)
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockLLMService) GetCalls() ([]ChatCall, []StructuredCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chatCalls := make([]ChatCall, len(m.ChatCalls))
	copy(chatCalls, m.ChatCalls)

	structuredCalls := make([]StructuredCall, len(m.StructuredCalls))
	copy(structuredCalls, m.StructuredCalls)

	return chatCalls, structuredCalls
}
