package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jwebster45206/roleplay-agent/pkg/chat"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testSchema = Schema{
	Name:   "extract_delta",
	Schema: map[string]any{"type": "object"},
}

func TestAnthropicService_SplitChatMessages(t *testing.T) {
	service := NewAnthropicService("test-key", "claude-test", "", discardLogger())

	tests := []struct {
		name          string
		messages      []chat.ChatMessage
		wantSystem    string
		wantFirstRole string
		wantCount     int
	}{
		{
			name: "multiple system messages",
			messages: []chat.ChatMessage{
				{Role: chat.ChatRoleSystem, Content: "You are the narrator."},
				{Role: chat.ChatRoleUser, Content: "Hello"},
				{Role: chat.ChatRoleSystem, Content: "Be brief."},
			},
			wantSystem:    "You are the narrator.\n\nBe brief.",
			wantFirstRole: chat.ChatRoleUser,
			wantCount:     1,
		},
		{
			name: "conversation opening with the narrator",
			messages: []chat.ChatMessage{
				{Role: chat.ChatRoleSystem, Content: "sys"},
				{Role: chat.ChatRoleAssistant, Content: "Gulls cry over the harbor."},
				{Role: chat.ChatRoleUser, Content: "I look around."},
			},
			wantSystem:    "sys",
			wantFirstRole: chat.ChatRoleUser,
			wantCount:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, conversation := service.splitChatMessages(tt.messages)
			if system != tt.wantSystem {
				t.Errorf("Expected system %q, got %q", tt.wantSystem, system)
			}
			if len(conversation) != tt.wantCount {
				t.Fatalf("Expected %d messages, got %d", tt.wantCount, len(conversation))
			}
			if conversation[0].Role != tt.wantFirstRole {
				t.Errorf("Expected first role %s, got %s", tt.wantFirstRole, conversation[0].Role)
			}
		})
	}
}

func TestAnthropicService_Structured(t *testing.T) {
	var got AnthropicChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("Expected path /messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected api key header, got %q", r.Header.Get("x-api-key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"location\":null}"}]}`))
	}))
	defer server.Close()

	service := NewAnthropicService("test-key", "story-model", "backend-model", discardLogger())
	service.baseURL = server.URL

	out, err := service.Structured(context.Background(), []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "reduce"},
		{Role: chat.ChatRoleUser, Content: "narrative"},
	}, testSchema)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != `{"location":null}` {
		t.Errorf("Unexpected output %q", out)
	}
	if got.Model != "backend-model" {
		t.Errorf("Expected backend model, got %s", got.Model)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("Expected temperature 0, got %v", got.Temperature)
	}
	if !strings.Contains(got.System, `"type":"object"`) {
		t.Errorf("Expected schema in system prompt, got %q", got.System)
	}
}

func TestAnthropicService_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":{"type":"rate_limit","message":"slow down"}}`},
		{"api error", http.StatusOK, `{"error":{"type":"overloaded","message":"busy"}}`},
		{"empty content", http.StatusOK, `{"content":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			service := NewAnthropicService("k", "m", "", discardLogger())
			service.baseURL = server.URL
			if _, err := service.Chat(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}}); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestVeniceService_ChatAndStructured(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []VeniceChatRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		var req VeniceChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"The fog lifts."}}]}`))
	}))
	defer server.Close()

	service := NewVeniceService("test-key", "story-model", "")
	service.baseURL = server.URL
	messages := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "I wait."}}

	out, err := service.Chat(context.Background(), messages)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != "The fog lifts." {
		t.Errorf("Unexpected output %q", out)
	}
	if _, err := service.Structured(context.Background(), messages, testSchema); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(requests))
	}
	if requests[0].ResponseFormat != nil {
		t.Error("Expected no response format for chat")
	}
	rf := requests[1].ResponseFormat
	if rf == nil || rf.Type != "json_schema" || !rf.JSONSchema.Strict || rf.JSONSchema.Name != "extract_delta" {
		t.Errorf("Unexpected response format %+v", rf)
	}
	if requests[1].Temperature != 0 {
		t.Errorf("Expected temperature 0, got %v", requests[1].Temperature)
	}
	if requests[1].Model != "story-model" {
		t.Errorf("Expected fallback to story model, got %s", requests[1].Model)
	}
}

func TestVeniceService_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	service := NewVeniceService("k", "m", "")
	service.baseURL = server.URL
	if _, err := service.Chat(context.Background(), nil); err == nil {
		t.Error("Expected error for empty choices")
	}
}

func TestOpenAIService_Structured(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer server.Close()

	service := NewOpenAIService("test-key", server.URL, "story-model", "backend-model", discardLogger())
	out, err := service.Structured(context.Background(), []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "reduce"},
		{Role: chat.ChatRoleUser, Content: "narrative"},
	}, testSchema)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out != "{}" {
		t.Errorf("Unexpected output %q", out)
	}
	if got["model"] != "backend-model" {
		t.Errorf("Expected backend model, got %v", got["model"])
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("Expected json_schema response format, got %v", rf)
	}
}

func TestOpenAIService_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	service := NewOpenAIService("k", server.URL, "m", "", discardLogger())
	if _, err := service.Chat(context.Background(), []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}}); err == nil {
		t.Error("Expected error for empty choices")
	}
}

func TestToOpenAIMessages(t *testing.T) {
	out := toOpenAIMessages([]chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "a"},
		{Role: chat.ChatRoleAssistant, Content: "b"},
		{Role: chat.ChatRoleUser, Content: "c"},
	})
	want := []string{"system", "assistant", "user"}
	for i, m := range out {
		if m.Role != want[i] {
			t.Errorf("message %d: expected role %s, got %s", i, want[i], m.Role)
		}
	}
}
