package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/roleplay-agent/pkg/state"
	"github.com/jwebster45206/roleplay-agent/pkg/storage"
)

const (
	sessionKeyPrefix = "session:"
	ownerKeyPrefix   = "owner-sessions:"
	activeKeyPrefix  = "owner-active:"
)

// compareAndDelete deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// updateIfExists overwrites session KEYS[1] and indexes ARGV[2] in owner set
// KEYS[2], but only while the session still exists.
var updateIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
return 1`)

// RedisStorage implements SessionStore on Redis. Each session is a JSON
// document without expiry; an owner set indexes sessions and a per-owner key
// names the active one.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

var _ storage.SessionStore = (*RedisStorage)(nil)

// NewRedisStorage creates a Redis storage instance. redisURL may be a
// redis:// URL or a bare host:port address.
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opts, err := redisOptions(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisStorageWithClient(redis.NewClient(opts), logger), nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client *redis.Client, logger *slog.Logger) *RedisStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStorage{client: client, logger: logger}
}

func redisOptions(redisURL string) (*redis.Options, error) {
	if strings.Contains(redisURL, "://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: redisURL}, nil
}

// Client exposes the underlying client for the locker and event broadcaster.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Session operations

func sessionKey(id uuid.UUID) string  { return sessionKeyPrefix + id.String() }
func ownerKey(ownerID string) string  { return ownerKeyPrefix + ownerID }
func activeKey(ownerID string) string { return activeKeyPrefix + ownerID }

func (r *RedisStorage) Get(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	gs, err := r.load(ctx, id)
	if err != nil || gs == nil {
		return gs, err
	}

	active, err := r.client.Get(ctx, activeKey(gs.OwnerID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	gs.IsActive = active == id.String()
	return gs, nil
}

func (r *RedisStorage) load(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Session not found", "session_id", id)
			return nil, nil
		}
		r.logger.Error("Failed to load session", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var gs state.GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		r.logger.Error("Failed to unmarshal session", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &gs, nil
}

func (r *RedisStorage) Put(ctx context.Context, id uuid.UUID, gs *state.GameState) error {
	if gs == nil {
		return errors.New("gamestate cannot be nil")
	}
	gs.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(gs)
	if err != nil {
		r.logger.Error("Failed to marshal session", "session_id", id, "error", err)
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	updated, err := updateIfExists.Run(ctx, r.client,
		[]string{sessionKey(id), ownerKey(gs.OwnerID)}, data, id.String()).Int()
	if err != nil {
		r.logger.Error("Failed to save session", "session_id", id, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	if updated == 0 {
		r.logger.Warn("Session deleted before save", "session_id", id)
		return storage.ErrSessionNotFound
	}
	return nil
}

func (r *RedisStorage) Create(ctx context.Context, ownerID, scenarioID string, gs *state.GameState) (uuid.UUID, error) {
	if gs == nil {
		return uuid.Nil, errors.New("gamestate cannot be nil")
	}
	if gs.ID == uuid.Nil {
		gs.ID = uuid.New()
	}
	gs.OwnerID = ownerID
	gs.ScenarioID = scenarioID
	gs.IsActive = false
	gs.UpdatedAt = time.Now().UTC()
	if gs.CreatedAt.IsZero() {
		gs.CreatedAt = gs.UpdatedAt
	}

	data, err := json.Marshal(gs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, sessionKey(gs.ID), data, 0).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return uuid.Nil, fmt.Errorf("session %s already exists", gs.ID)
	}
	if err := r.client.SAdd(ctx, ownerKey(ownerID), gs.ID.String()).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to index session: %w", err)
	}

	r.logger.Info("Session created", "session_id", gs.ID, "owner_id", ownerID, "scenario_id", scenarioID)
	return gs.ID, nil
}

func (r *RedisStorage) ListByOwner(ctx context.Context, ownerID string) ([]storage.SessionSummary, error) {
	ids, err := r.client.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]storage.SessionSummary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	active, err := r.client.Get(ctx, activeKey(ownerID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}

	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var gs state.GameState
		if err := json.Unmarshal([]byte(raw), &gs); err != nil {
			r.logger.Warn("Skipping unreadable session", "session_id", ids[i], "error", err)
			continue
		}
		gs.IsActive = active == gs.ID.String()
		out = append(out, storage.Summarize(&gs))
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, ownerKey(ownerID), stale...).Err(); err != nil {
			r.logger.Warn("Failed to prune session index", "owner_id", ownerID, "error", err)
		}
	}

	storage.SortSummaries(out)
	return out, nil
}

func (r *RedisStorage) Delete(ctx context.Context, id uuid.UUID) error {
	gs, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if gs == nil {
		return storage.ErrSessionNotFound
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, ownerKey(gs.OwnerID), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := compareAndDelete.Run(ctx, r.client, []string{activeKey(gs.OwnerID)}, id.String()).Err(); err != nil {
		r.logger.Warn("Failed to clear active session", "session_id", id, "error", err)
	}

	r.logger.Info("Session deleted", "session_id", id, "owner_id", gs.OwnerID)
	return nil
}

// SetActive points the owner's active key at this session, which deactivates
// any previously active one in the same write.
func (r *RedisStorage) SetActive(ctx context.Context, id uuid.UUID) error {
	gs, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	if gs == nil {
		return storage.ErrSessionNotFound
	}
	if err := r.client.Set(ctx, activeKey(gs.OwnerID), id.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to activate session: %w", err)
	}
	return nil
}
