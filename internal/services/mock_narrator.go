package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

// MockNarrator is a mock implementation of Narrator for testing.
// Unset funcs return an empty delta and a fixed narrative.
type MockNarrator struct {
	ParseIntentFunc       func(ctx context.Context, req IntentRequest) (*state.Delta, error)
	GenerateNarrativeFunc func(ctx context.Context, req NarrativeRequest) (string, error)
	ExtractDeltaFunc      func(ctx context.Context, req ExtractionRequest) (*state.Delta, error)

	IntentCalls     []IntentRequest
	NarrativeCalls  []NarrativeRequest
	ExtractionCalls []ExtractionRequest

	mu sync.Mutex
}

var _ Narrator = (*MockNarrator)(nil)

func NewMockNarrator() *MockNarrator {
	return &MockNarrator{}
}

func (m *MockNarrator) ParseIntent(ctx context.Context, req IntentRequest) (*state.Delta, error) {
	m.mu.Lock()
	m.IntentCalls = append(m.IntentCalls, req)
	fn := m.ParseIntentFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &state.Delta{}, nil
}

func (m *MockNarrator) GenerateNarrative(ctx context.Context, req NarrativeRequest) (string, error) {
	m.mu.Lock()
	m.NarrativeCalls = append(m.NarrativeCalls, req)
	fn := m.GenerateNarrativeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return "The narrator nods.", nil
}

func (m *MockNarrator) ExtractDelta(ctx context.Context, req ExtractionRequest) (*state.Delta, error) {
	m.mu.Lock()
	m.ExtractionCalls = append(m.ExtractionCalls, req)
	fn := m.ExtractDeltaFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &state.Delta{}, nil
}

// CallCounts returns the number of intent, narrative and extraction calls.
func (m *MockNarrator) CallCounts() (intent, narrative, extraction int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.IntentCalls), len(m.NarrativeCalls), len(m.ExtractionCalls)
}
