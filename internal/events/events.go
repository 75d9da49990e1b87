package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("events")

// Pub/Sub channel constants
const (
	EventsChannel = "channel:events"
)

// Event types
const (
	PostCreated = "post_created"
	PostUpdated = "post_updated"
	PostRemoved = "post_removed"
	UserRemoved = "user_removed"
)

// Event represents a global message published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// PostPayload is the payload for the "post_created" and "post_updated" events.
type PostPayload struct {
	PostID      int64  `json:"post_id"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	LastUpdated int64  `json:"lastUpdated"`
}

// PostRemovedPayload is the payload for the "post_removed" event.
type PostRemovedPayload struct {
	PostID int64  `json:"post_id"`
	Author string `json:"author"`
}

// UserRemovedPayload is the payload for the "user_removed" event.
type UserRemovedPayload struct {
	Username     string `json:"username"`
	RemovedPosts int    `json:"removed_posts"`
}

// New wraps payload into an Event of the given type.
func New(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, Payload: data}, nil
}

// Publisher delivers events to feed subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher publishes events on EventsChannel.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	ctx, span := tracer.Start(ctx, "RedisPublisher.Publish", trace.WithAttributes(
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
