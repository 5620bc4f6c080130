package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "auth_"

// RedisClient wraps Redis operations with tracing
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to the Redis instance at url (redis://host:port/db)
func NewRedisClient(ctx context.Context, url string) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Ping checks that Redis answers
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

// SetSession maps token to userID for ttl
func (rc *RedisClient) SetSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.set_session",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int64("ttl_seconds", int64(ttl.Seconds())),
		),
	)
	defer span.End()

	if err := rc.client.Set(ctx, sessionKey(token), userID, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// GetSession returns the user id of token, or apperr.ErrNoRecord when the
// session is unknown or expired
func (rc *RedisClient) GetSession(ctx context.Context, token string) (string, error) {
	ctx, span := tracer.Start(ctx, "redis.get_session")
	defer span.End()

	userID, err := rc.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("found", false))
		return "", apperr.ErrNoRecord
	} else if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to get session: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return userID, nil
}

// DeleteSession removes token; apperr.ErrNoRecord if it did not exist
func (rc *RedisClient) DeleteSession(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "redis.delete_session")
	defer span.End()

	n, err := rc.client.Del(ctx, sessionKey(token)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 {
		return apperr.ErrNoRecord
	}
	return nil
}
