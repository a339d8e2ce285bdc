package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

// RedisClient is the slice of the redis API the store needs (narrow for
// testing).
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Session tracks one user's search activity.
type Session struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessed   time.Time `json:"last_accessed"`
	SearchCount    int       `json:"search_count"`
	LastSearchID   string    `json:"last_search_id,omitempty"`
	LastSearchTime time.Time `json:"last_search_time,omitempty"`
}

// Store keeps sessions in redis hashes keyed by session id.
type Store struct {
	redis  RedisClient
	logger *slog.Logger
}

func NewStore(client RedisClient, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		redis:  client,
		logger: logger.With("component", "session_store"),
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Create registers a new session. An empty id gets a generated one.
func (s *Store) Create(ctx context.Context, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err := s.redis.HSet(ctx, sessionKey(id),
		"created_at", now,
		"last_accessed", now,
		"search_count", 0,
	).Err()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created", "session_id", id)
	return id, nil
}

// Get loads a session and touches its last_accessed timestamp.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := s.redis.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	session := &Session{ID: id}
	session.CreatedAt = parseTime(fields["created_at"])
	session.LastAccessed = parseTime(fields["last_accessed"])
	session.LastSearchID = fields["last_search_id"]
	session.LastSearchTime = parseTime(fields["last_search_time"])
	if count, err := strconv.Atoi(fields["search_count"]); err == nil {
		session.SearchCount = count
	}

	if err := s.touch(ctx, id); err != nil {
		s.logger.Warn("failed to touch session", "session_id", id, "error", err)
	}

	return session, nil
}

// RecordSearch bumps the session's search count and remembers the last
// search.
func (s *Store) RecordSearch(ctx context.Context, id string, searchID string) error {
	if err := s.redis.HIncrBy(ctx, sessionKey(id), "search_count", 1).Err(); err != nil {
		return fmt.Errorf("failed to increment search count: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	err := s.redis.HSet(ctx, sessionKey(id),
		"last_search_id", searchID,
		"last_search_time", now,
		"last_accessed", now,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.logger.Info("session deleted", "session_id", id)
	return nil
}

func (s *Store) touch(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.redis.HSet(ctx, sessionKey(id), "last_accessed", now).Err()
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
