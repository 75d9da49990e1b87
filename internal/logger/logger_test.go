package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink unavailable") }

func TestMultiHandler_FansOut(t *testing.T) {
	var first, second bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&first, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&second, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	log := slog.New(h).With("component", "test").WithGroup("req")

	log.Info("post created", "id", 1)
	assert.Contains(t, first.String(), "post created")
	assert.Contains(t, first.String(), "component=test")
	assert.Contains(t, first.String(), "req.id=1")
	assert.Empty(t, second.String())

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestMultiHandler_ReportsErrors(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(failingHandler{slog.NewTextHandler(&buf, nil)})

	err := h.Handle(context.Background(), slog.NewRecord(testTime, slog.LevelInfo, "msg", 0))
	assert.Error(t, err)
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelWarn)

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestMultiHandler_KeepsGoingAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(
		failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)},
		slog.NewTextHandler(&buf, nil),
	)

	err := h.Handle(context.Background(), slog.NewRecord(testTime, slog.LevelInfo, "still delivered", 0))
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "still delivered")
}

func TestNew_TagsService(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo).Info("hello")
	assert.Contains(t, buf.String(), "service="+serviceName)
}
