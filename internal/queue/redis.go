package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nutshimit/mashin-registry/internal/config"
	"github.com/nutshimit/mashin-registry/internal/db/models"
)

// NewRedisClient opens the client shared by the queue and the webhook limiter.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisQueue is a reliable list queue. Producers LPUSH onto the pending list;
// consumers atomically BLMOVE the oldest message onto a processing list and
// LREM it from there on Ack.
type RedisQueue struct {
	client       redis.UniversalClient
	pending      string
	processing   string
	blockTimeout time.Duration
}

// NewRedisQueue creates a queue over client using the configured list names.
func NewRedisQueue(client redis.UniversalClient, cfg config.QueueConfig) *RedisQueue {
	q := &RedisQueue{
		client:       client,
		pending:      cfg.Name,
		processing:   cfg.ProcessingName,
		blockTimeout: cfg.BlockTimeout,
	}
	if q.pending == "" {
		q.pending = "mashin:builds"
	}
	if q.processing == "" {
		q.processing = q.pending + ":processing"
	}
	if q.blockTimeout <= 0 {
		q.blockTimeout = 5 * time.Second
	}
	return q
}

// Enqueue pushes a build message.
func (q *RedisQueue) Enqueue(ctx context.Context, build *models.Build) error {
	payload, err := Encode(build)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.pending, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue build %s: %w", build.ID, err)
	}
	return nil
}

// Receive moves the oldest pending message onto the processing list. A
// message that cannot be decoded is dropped from the processing list and
// logged, since no retry can fix it.
func (q *RedisQueue) Receive(ctx context.Context) (*Delivery, error) {
	payload, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.blockTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoMessage
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to receive build message: %w", err)
	}

	d, err := Decode(payload)
	if err != nil {
		slog.Error("dropping undecodable build message", "error", err)
		if remErr := q.client.LRem(ctx, q.processing, 1, payload).Err(); remErr != nil {
			slog.Error("failed to drop build message", "error", remErr)
		}
		return nil, ErrNoMessage
	}
	return d, nil
}

// Ack removes a processed message from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.payload).Err(); err != nil {
		return fmt.Errorf("failed to ack build %s: %w", d.Build.ID, err)
	}
	return nil
}

// Nack returns a message to the consuming end of the pending list.
func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.payload)
		pipe.RPush(ctx, q.pending, d.payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to nack build %s: %w", d.Build.ID, err)
	}
	return nil
}

// RecoverInFlight moves every message left on the processing list back to
// the pending list. Run it once when a worker fleet starts; messages that
// were mid-build are processed again.
func (q *RedisQueue) RecoverInFlight(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover in-flight builds: %w", err)
		}
		moved++
	}
}

// Len returns the number of pending messages.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.pending).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// Close is a no-op; the client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }

// New builds the configured queue backend. client may be nil for the memory
// backend.
func New(cfg config.QueueConfig, client redis.UniversalClient) (Queue, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryQueue(cfg.MemoryCapacity, cfg.BlockTimeout), nil
	case "redis", "":
		if client == nil {
			return nil, fmt.Errorf("redis queue requires a redis client")
		}
		return NewRedisQueue(client, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported queue backend: %q", cfg.Backend)
	}
}
