package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeTurnStarted       EventType = "turn.started"
	EventTypeTurnIntentApplied EventType = "turn.intent_applied"
	EventTypeTurnNarrated      EventType = "turn.narrated"
	EventTypeTurnCompleted     EventType = "turn.completed"
	EventTypeTurnDegraded      EventType = "turn.degraded"
	EventTypeTurnFailed        EventType = "turn.failed"
)

// subscriberBuffer is the number of undelivered events a subscriber may hold.
const subscriberBuffer = 32

// Event is a turn progress notification for one session.
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
	Time      time.Time      `json:"time"`
}

// Publisher sends session events. Implementations log failures; callers
// may ignore the returned error.
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, event Event) error
}

// Subscriber streams a session's events until ctx is done or the returned
// func is called.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan Event, func(), error)
}

func newEvent(t EventType, sessionID uuid.UUID, requestID string, data map[string]any) Event {
	return Event{
		Type:      t,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data:      data,
		Time:      time.Now().UTC(),
	}
}

// TurnStarted builds a turn.started event.
func TurnStarted(sessionID uuid.UUID, requestID, action string) Event {
	return newEvent(EventTypeTurnStarted, sessionID, requestID, map[string]any{
		"action": action,
	})
}

// TurnIntentApplied builds a turn.intent_applied event with the mechanics summary.
func TurnIntentApplied(sessionID uuid.UUID, requestID, mechanics string) Event {
	return newEvent(EventTypeTurnIntentApplied, sessionID, requestID, map[string]any{
		"mechanics": mechanics,
	})
}

// TurnNarrated builds a turn.narrated event.
func TurnNarrated(sessionID uuid.UUID, requestID, narrative string) Event {
	return newEvent(EventTypeTurnNarrated, sessionID, requestID, map[string]any{
		"narrative": narrative,
	})
}

// TurnCompleted builds a turn.completed event.
func TurnCompleted(sessionID uuid.UUID, requestID string, turn int, location string) Event {
	return newEvent(EventTypeTurnCompleted, sessionID, requestID, map[string]any{
		"turn":     turn,
		"location": location,
	})
}

// TurnDegraded builds a turn.degraded event naming the failed stage.
func TurnDegraded(sessionID uuid.UUID, requestID string, turn int, stage string) Event {
	return newEvent(EventTypeTurnDegraded, sessionID, requestID, map[string]any{
		"turn":  turn,
		"stage": stage,
	})
}

// TurnFailed builds a turn.failed event.
func TurnFailed(sessionID uuid.UUID, requestID, errorMsg string) Event {
	return newEvent(EventTypeTurnFailed, sessionID, requestID, map[string]any{
		"error": errorMsg,
	})
}

// Channel returns the pub/sub channel of a session.
func Channel(sessionID uuid.UUID) string {
	return "session-events:" + sessionID.String()
}

// Broadcaster publishes events to Redis Pub/Sub for websocket distribution
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var (
	_ Publisher  = (*Broadcaster)(nil)
	_ Subscriber = (*Broadcaster)(nil)
)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Publish sends an event to the session's channel.
func (b *Broadcaster) Publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)
	return nil
}

// Subscribe listens on the session's channel. Messages that do not decode
// as events are skipped.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan Event, func(), error) {
	pubsub := b.redisClient.Subscribe(ctx, Channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	messages := pubsub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Skipping malformed event", "error", err, "channel", msg.Channel)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }, nil
}
