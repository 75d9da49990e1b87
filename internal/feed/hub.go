package feed

import (
	"context"
	"ctchen222/blog-web-api/internal/events"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("feed")

const broadcastBufferSize = 256

var errHubStopped = errors.New("feed hub stopped")

// Hub fans post events out to every connected feed client. With a Redis
// client it relays events published on events.EventsChannel by any instance;
// without one it only relays events handed to Publish.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stats      chan chan int
	done       chan struct{}
	rdb        *redis.Client
}

// NewHub creates a new hub. rdb may be nil.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBufferSize),
		stats:      make(chan chan int),
		done:       make(chan struct{}),
		rdb:        rdb,
	}
}

// Run starts the hub and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.runEventSubscriber(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			slog.InfoContext(ctx, "Feed hub stopped")
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			slog.DebugContext(ctx, "Feed client registered", "client.id", c.ID, "clients.count", len(h.clients))
		case c := <-h.unregister:
			h.drop(c)
		case reply := <-h.stats:
			reply <- len(h.clients)
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slog.WarnContext(ctx, "Dropping slow feed client", "client.id", c.ID)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Serve registers conn as a feed client and blocks until it disconnects.
func (h *Hub) Serve(ctx context.Context, conn Connection) {
	c := NewClient(uuid.NewString(), conn)
	ctx, span := tracer.Start(ctx, "feed.Serve", trace.WithAttributes(
		attribute.String("client.id", c.ID),
	))
	defer span.End()

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump(ctx)
	c.readPump(ctx)

	select {
	case h.unregister <- c:
	case <-h.done:
	}
	slog.DebugContext(ctx, "Feed client disconnected", "client.id", c.ID)
}

// Publish hands event to the local clients. It implements events.Publisher
// for deployments without Redis.
func (h *Hub) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return h.enqueue(ctx, data)
}

func (h *Hub) enqueue(ctx context.Context, data []byte) error {
	select {
	case <-h.done:
		return errHubStopped
	default:
	}

	select {
	case h.broadcast <- data:
		return nil
	default:
		slog.WarnContext(ctx, "Feed broadcast queue full, dropping event")
		return nil
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}
