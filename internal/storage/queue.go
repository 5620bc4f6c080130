package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/filesmanager/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// envelope is the queued form of a job
type envelope struct {
	ID       string              `json:"id"`
	Job      models.ThumbnailJob `json:"job"`
	Attempts int                 `json:"attempts"`
	Error    string              `json:"error,omitempty"`
}

// Delivery is a job taken from the queue and not yet acknowledged
type Delivery struct {
	ID       string
	Job      models.ThumbnailJob
	Attempts int

	raw string
}

// RedisQueue is an at-least-once job queue on Redis lists.
//
// Pending jobs wait in queue:<name>:wait, a dequeued job sits in
// queue:<name>:active until it is acknowledged or failed, and jobs that
// exhausted their attempts end in queue:<name>:failed.
type RedisQueue struct {
	client      *redis.Client
	waitKey     string
	activeKey   string
	failedKey   string
	maxAttempts int
}

// NewRedisQueue creates a queue named name sharing the connection of rc
func NewRedisQueue(rc *RedisClient, name string, maxAttempts int) *RedisQueue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	prefix := "queue:" + name
	return &RedisQueue{
		client:      rc.client,
		waitKey:     prefix + ":wait",
		activeKey:   prefix + ":active",
		failedKey:   prefix + ":failed",
		maxAttempts: maxAttempts,
	}
}

// Enqueue adds a thumbnail job
func (q *RedisQueue) Enqueue(ctx context.Context, job models.ThumbnailJob) error {
	ctx, span := tracer.Start(ctx, "queue.enqueue",
		trace.WithAttributes(
			attribute.String("file_id", job.FileID),
			attribute.String("user_id", job.UserID),
		),
	)
	defer span.End()

	data, err := json.Marshal(envelope{ID: uuid.New().String(), Job: job})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, q.waitKey, data).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. It returns a nil Delivery
// when no job arrived in time.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	for {
		raw, err := q.client.BRPopLPush(ctx, q.waitKey, q.activeKey, timeout).Result()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}

		var env envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			// Unreadable payloads cannot succeed on retry.
			if err := q.bury(ctx, raw, raw); err != nil {
				return nil, err
			}
			continue
		}

		return &Delivery{ID: env.ID, Job: env.Job, Attempts: env.Attempts, raw: raw}, nil
	}
}

// Ack removes a finished job
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.activeKey, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Fail records a failed attempt. The job goes back to the wait list while it
// has attempts left, otherwise to the failed list together with cause.
func (q *RedisQueue) Fail(ctx context.Context, d *Delivery, cause error) error {
	ctx, span := tracer.Start(ctx, "queue.fail",
		trace.WithAttributes(
			attribute.String("job_id", d.ID),
			attribute.Int("attempts", d.Attempts+1),
		),
	)
	defer span.End()

	env := envelope{ID: d.ID, Job: d.Job, Attempts: d.Attempts + 1}
	if cause != nil {
		env.Error = cause.Error()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if env.Attempts >= q.maxAttempts {
		span.SetAttributes(attribute.Bool("dead_letter", true))
		return q.bury(ctx, d.raw, string(data))
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.activeKey, 1, d.raw)
		pipe.LPush(ctx, q.waitKey, data)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) bury(ctx context.Context, raw, payload string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.activeKey, 1, raw)
		pipe.LPush(ctx, q.failedKey, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move job to failed list: %w", err)
	}
	return nil
}

// Recover moves jobs left active by a crashed worker back to the wait list.
// The active list is shared by every worker on the queue, so jobs still being
// processed by another instance are moved too and will run a second time.
// Call it only when no other worker is running, or accept duplicate runs.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.RPopLPush(ctx, q.activeKey, q.waitKey).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		} else if err != nil {
			return moved, fmt.Errorf("failed to recover active jobs: %w", err)
		}
		moved++
	}
}

// Pending returns the number of jobs waiting
func (q *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.waitKey).Result()
}

// Failed returns the number of dead-lettered jobs
func (q *RedisQueue) Failed(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.failedKey).Result()
}
