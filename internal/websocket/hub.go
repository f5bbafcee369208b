package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/notify"
	"github.com/clipgen/api/internal/registry"
)

// Client represents one WebSocket subscriber connection
type Client struct {
	ConnectionID string
	OwnerID      string
	JobID        string
	Conn         *websocket.Conn
	Send         chan []byte

	// done signals teardown. Send is never closed, so concurrent senders
	// cannot hit a closed channel; they observe done instead.
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, ownerID, jobID string) *Client {
	return &Client{
		ConnectionID: uuid.New().String(),
		OwnerID:      ownerID,
		JobID:        jobID,
		Conn:         conn,
		Send:         make(chan []byte, 256),
		done:         make(chan struct{}),
	}
}

// shutdown marks the client dead. Safe to call from any goroutine, any
// number of times.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub owns the live WebSocket connections of this process and mirrors their
// lifecycle into the Connection Registry. It is the Transport the dispatcher
// delivers through.
type Hub struct {
	registry registry.Registry
	ttl      time.Duration

	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(reg registry.Registry, connectionTTL time.Duration) *Hub {
	if connectionTTL <= 0 {
		connectionTTL = 2 * time.Hour
	}
	return &Hub{
		registry:   reg,
		ttl:        connectionTTL,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ConnectionID] = client
			h.mu.Unlock()
			log.Printf("Connection %s subscribed to job %s", client.ConnectionID, client.JobID)

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client.ConnectionID)
			h.mu.Unlock()
			client.shutdown()
			log.Printf("Connection %s closed (job %s)", client.ConnectionID, client.JobID)
		}
	}
}

// Send implements notify.Transport. Unknown and closed connections are
// reported unreachable; a connection whose send buffer is full is torn down
// so registry and transport state converge on it being gone.
func (h *Hub) Send(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return notify.ErrUnreachable
	}

	select {
	case <-client.done:
		return notify.ErrUnreachable
	default:
	}

	select {
	case client.Send <- payload:
		return nil
	case <-client.done:
		return notify.ErrUnreachable
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Full buffer means the reader cannot keep up. Closing it beats
		// leaving a subscriber that silently receives nothing.
		client.shutdown()
		return notify.ErrUnreachable
	}
}

// HandleConnection drives one WebSocket connection until it closes. It
// registers the connection for fan-out, pumps outgoing messages, and answers
// client pings.
func (h *Hub) HandleConnection(c *websocket.Conn, ownerID, jobID string) {
	client := newClient(c, ownerID, jobID)

	ctx := context.Background()
	now := time.Now().UTC()
	err := h.registry.Register(ctx, model.Connection{
		ConnectionID:  client.ConnectionID,
		OwnerID:       ownerID,
		JobID:         jobID,
		EstablishedAt: now,
		ExpiresAt:     now.Add(h.ttl),
	})
	if err != nil {
		log.Printf("Failed to register connection for job %s: %v", jobID, err)
		c.WriteMessage(websocket.CloseMessage, []byte{})
		return
	}

	h.register <- client
	defer func() {
		h.unregister <- client
		if err := h.registry.Unregister(ctx, client.ConnectionID); err != nil {
			log.Printf("Failed to unregister connection %s: %v", client.ConnectionID, err)
		}
	}()

	// Writer goroutine. Closing the socket on exit unblocks the reader loop,
	// so a teardown triggered from the send path also ends the connection.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer func() {
			ticker.Stop()
			client.shutdown()
			c.Close()
		}()

		for {
			select {
			case <-client.done:
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return

			case message := <-client.Send:
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.MessageTypePing {
			pong := model.WSMessage{Type: model.MessageTypePong}
			data, _ := json.Marshal(pong)
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
