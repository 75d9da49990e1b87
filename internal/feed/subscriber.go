package feed

import (
	"context"
	"ctchen222/blog-web-api/internal/events"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (h *Hub) runEventSubscriber(ctx context.Context) {
	slog.InfoContext(ctx, "Event subscriber started", "channel", events.EventsChannel)
	pubsub := h.rdb.Subscribe(ctx, events.EventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.relay(ctx, []byte(msg.Payload))
		}
	}
}

// relay checks that payload is an event envelope before handing it to the clients.
func (h *Hub) relay(ctx context.Context, payload []byte) {
	ctx, span := tracer.Start(ctx, "feed.relay", trace.WithAttributes(
		attribute.String("event.channel", events.EventsChannel),
	))
	defer span.End()

	var event events.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Type == "" {
		slog.ErrorContext(ctx, "Could not unmarshal feed event", "error", err)
		span.SetStatus(codes.Error, "Could not unmarshal feed event")
		return
	}
	span.SetAttributes(attribute.String("event.type", event.Type))

	if err := h.enqueue(ctx, payload); err != nil {
		span.RecordError(err)
	}
}
