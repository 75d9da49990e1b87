package feed

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const clientBufferSize = 16

// Connection is an interface that abstracts the websocket connection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Client is a feed subscriber.
type Client struct {
	ID   string
	conn Connection
	send chan []byte
}

func NewClient(id string, conn Connection) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}
}

// writePump forwards queued events to the connection until send is closed.
func (c *Client) writePump(ctx context.Context) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.WarnContext(ctx, "Error writing event to feed client", "client.id", c.ID, "error", err)
			c.conn.Close()
			// Keep draining until the hub drops the client.
			for range c.send {
			}
			return
		}
	}
	c.conn.Close()
}

// readPump blocks until the client goes away. Incoming messages are ignored.
func (c *Client) readPump(ctx context.Context) {
	_, span := tracer.Start(ctx, "feed.readPump", trace.WithAttributes(
		attribute.String("client.id", c.ID),
	))
	defer span.End()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "Feed connection error")
			}
			return
		}
	}
}
