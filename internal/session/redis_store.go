// Package session provides the Redis backend for session records.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"customerqueries/web/internal/store"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found or expired")

// recordData is the JSON stored under each session key.
type recordData struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedisStore keeps session records in Redis with a TTL matching the session
// expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

func (s *RedisStore) key(sessionHash string) string {
	return s.prefix + sessionHash
}

// SaveSession stores a session record until expiresAt.
func (s *RedisStore) SaveSession(ctx context.Context, sessionHash string, record store.SessionRecord, expiresAt time.Time) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	jsonData, err := json.Marshal(recordData{
		UserID:      record.UserID,
		DisplayName: record.DisplayName,
		CreatedAt:   createdAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("save session: expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}

	if err := s.client.Set(ctx, s.key(sessionHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LookupSession returns the record for sessionHash or ErrNotFound.
func (s *RedisStore) LookupSession(ctx context.Context, sessionHash string) (store.SessionRecord, error) {
	jsonData, err := s.client.Get(ctx, s.key(sessionHash)).Result()
	if errors.Is(err, redis.Nil) {
		return store.SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return store.SessionRecord{}, fmt.Errorf("lookup session: %w", err)
	}

	var data recordData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return store.SessionRecord{}, fmt.Errorf("unmarshal session record: %w", err)
	}

	return store.SessionRecord{
		UserID:      data.UserID,
		DisplayName: data.DisplayName,
		CreatedAt:   data.CreatedAt,
	}, nil
}

// DeleteSession removes a session record. Deleting a missing key is not an
// error.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionHash string) error {
	if err := s.client.Del(ctx, s.key(sessionHash)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
