package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// LocalBroadcaster fans events out to subscribers in the same process.
// Slow subscribers drop events rather than block publishers.
type LocalBroadcaster struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[chan Event]struct{}
	logger *slog.Logger
}

var (
	_ Publisher  = (*LocalBroadcaster)(nil)
	_ Subscriber = (*LocalBroadcaster)(nil)
)

func NewLocalBroadcaster(logger *slog.Logger) *LocalBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBroadcaster{
		subs:   make(map[uuid.UUID]map[chan Event]struct{}),
		logger: logger,
	}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[sessionID] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber", "session_id", sessionID, "event_type", event.Type)
		}
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan Event]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[sessionID], ch)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
			b.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}
