package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/braid/internal/model"
)

// DefaultChannel is the Redis channel used when none is configured.
const DefaultChannel = "braid.invalidations"

// Event is the payload handed to a Publisher for an external_event action.
type Event struct {
	Name           string       `json:"event"`
	ActionID       string       `json:"action_id"`
	ActionName     string       `json:"action_name"`
	RecordID       int64        `json:"record_id"`
	RecordName     string       `json:"record_name"`
	InvalidationID string       `json:"invalidation_id,omitempty"`
	Params         model.Object `json:"params"`
}

// Publisher delivers external_event payloads. Delivery guarantees are the
// implementation's concern.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// LogPublisher writes events to a logger. Used when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish implements Publisher.
func (p LogPublisher) Publish(ctx context.Context, evt Event) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	logger.InfoContext(ctx, "external event",
		"event", evt.Name,
		"record_id", evt.RecordID,
		"action_id", evt.ActionID,
		"payload", string(payload),
	)
	return nil
}

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// RedisOptions configures NewRedisPublisher.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// DialTimeout bounds connection setup. Zero uses the client default.
	DialTimeout time.Duration
}

// NewRedisPublisher creates a publisher. No connection is made until the
// first Publish.
func NewRedisPublisher(opts RedisOptions) (*RedisPublisher, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	channel := opts.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
		MaxRetries:  -1,
	})
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Channel returns the channel events are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
