package service

import (
	"context"
	"ctchen222/blog-web-api/internal/api/models"
	"ctchen222/blog-web-api/internal/events"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// recordFailure marks the span as failed. Caller errors are only recorded,
// everything else is logged as an internal failure.
func recordFailure(ctx context.Context, span trace.Span, err error) error {
	var callerErr *models.Error
	if errors.As(err, &callerErr) {
		span.SetStatus(codes.Error, callerErr.Message)
		return err
	}

	slog.ErrorContext(ctx, "Internal failure", "error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "internal failure")
	return err
}

// publish sends an event to the feed. Failures are logged and never
// propagated, the mutation has already been committed.
func publish(ctx context.Context, publisher events.Publisher, eventType string, payload any) {
	event, err := events.New(eventType, payload)
	if err != nil {
		slog.ErrorContext(ctx, "Could not build event", "event.type", eventType, "error", err)
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event", "event.type", eventType, "error", err)
	}
}
