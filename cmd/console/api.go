package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwebster45206/roleplay-agent/internal/services/events"
	"github.com/jwebster45206/roleplay-agent/internal/turn"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// sessionView mirrors the API's session document with derived attributes.
type sessionView struct {
	state.GameState
	EffectiveAttributes map[string]int `json:"effective_attributes"`
}

// apiClient talks to the roleplay API on behalf of one user.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *apiClient) do(method, path string, body, out any, wantStatus int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		var errorResp ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *apiClient) testConnection() bool {
	return c.do(http.MethodGet, "/health", nil, nil, http.StatusOK) == nil
}

func (c *apiClient) listScenarios() ([]scenario.Summary, error) {
	var list []scenario.Summary
	if err := c.do(http.MethodGet, "/v1/scenarios", nil, &list, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	return list, nil
}

type createSessionRequest struct {
	ScenarioID    string `json:"scenario_id"`
	CharacterName string `json:"character_name"`
}

func (c *apiClient) createSession(scenarioID, characterName string) (*sessionView, error) {
	var view sessionView
	req := createSessionRequest{ScenarioID: scenarioID, CharacterName: characterName}
	if err := c.do(http.MethodPost, "/v1/sessions", req, &view, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &view, nil
}

func (c *apiClient) getSession(id uuid.UUID) (*sessionView, error) {
	var view sessionView
	if err := c.do(http.MethodGet, "/v1/sessions/"+id.String(), nil, &view, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &view, nil
}

func (c *apiClient) takeTurn(id uuid.UUID, action string) (*turn.Result, error) {
	var result turn.Result
	body := map[string]string{"action": action}
	if err := c.do(http.MethodPost, "/v1/sessions/"+id.String()+"/turns", body, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// streamEvents dials the session's websocket and forwards events until ctx
// is done or the connection drops. The returned channel is closed on exit.
func (c *apiClient) streamEvents(ctx context.Context, id uuid.UUID) (<-chan events.Event, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/sessions/" + id.String() + "/events"
	u.RawQuery = url.Values{"access_token": {c.token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to events: %w", err)
	}

	out := make(chan events.Event, 16)
	go func() {
		defer close(out)
		defer func() {
			_ = conn.Close()
		}()
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
