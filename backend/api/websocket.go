package api

import (
	"log"
	"sync"
	"time"

	"github.com/andi/stepline/backend/bridge"
	"github.com/andi/stepline/backend/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Action  string `json:"action"` // "subscribe", "unsubscribe", "ping"
	OrderID string `json:"order_id"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      string `json:"type"` // "stale", "subscribed", "pong", "close"
	OrderID   string `json:"order_id,omitempty"`
	Event     string `json:"event,omitempty"`
	MachineID string `json:"machine_id,omitempty"`
	Time      string `json:"time"`
}

// Client represents a connected table-view WebSocket client
type Client struct {
	conn            *websocket.Conn
	subscribedOrder string
	subscription    *bridge.Subscription
	lastActivity    time.Time
	send            chan ServerMessage
	mu              sync.Mutex
	closed          bool
}

// deliver pushes a message to the client unless it is closed or slow.
// Bridge handlers can fire concurrently with teardown, so the closed flag
// and the channel close are serialized under the client mutex.
func (c *Client) deliver(msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- msg:
		c.lastActivity = time.Now()
	default:
		// Channel full, client is slow, skip
		log.Printf("Warning: Client send channel full for order %s", c.subscribedOrder)
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WebSocketHub manages WebSocket connections for table views. Each client
// subscribes to one order; push events for that order become "stale"
// signals telling the view to refetch its table data. The signals are
// advisory only; a client that never connects still has the manual refresh
// path.
type WebSocketHub struct {
	bridge *bridge.Bridge

	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	stopCh chan struct{}
}

// NewWebSocketHub creates a new WebSocket hub fed by the live-update bridge
func NewWebSocketHub(b *bridge.Bridge) *WebSocketHub {
	hub := &WebSocketHub{
		bridge:     b,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		stopCh:     make(chan struct{}),
	}

	go hub.run()
	go hub.cleanupIdleClients()

	return hub
}

// run handles the main event loop
func (h *WebSocketHub) run() {
	for {
		select {
		case <-h.stopCh:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client registered")

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// removeClient drops a client and releases its order subscription
func (h *WebSocketHub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)

	if client.subscription != nil {
		client.subscription.Unsubscribe()
		client.subscription = nil
		log.Printf("Client unsubscribed from order %s", client.subscribedOrder)
	}

	client.close()
}

// subscribeClient points a client at an order's push events
func (h *WebSocketHub) subscribeClient(client *Client, orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Release the previous subscription if switching orders
	if client.subscription != nil && client.subscribedOrder != orderID {
		client.subscription.Unsubscribe()
		client.subscription = nil
	}

	client.mu.Lock()
	client.subscribedOrder = orderID
	client.lastActivity = time.Now()
	client.mu.Unlock()

	if client.subscription == nil {
		client.subscription = h.bridge.Subscribe(orderID, func(evt models.PushEvent) {
			client.deliver(ServerMessage{
				Type:      "stale",
				OrderID:   evt.OrderID,
				Event:     string(evt.Type),
				MachineID: evt.MachineID,
				Time:      evt.ReceivedAt.Format(time.RFC3339),
			})
		})
	}

	log.Printf("Client subscribed to order %s, total subscribers: %d",
		orderID, h.bridge.SubscriberCount(orderID))
}

// cleanupIdleClients periodically checks for idle clients and closes them
func (h *WebSocketHub) cleanupIdleClients() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkIdleClients()
		}
	}
}

// checkIdleClients removes clients that have been idle for too long
func (h *WebSocketHub) checkIdleClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	idleTimeout := 5 * time.Minute
	now := time.Now()

	for client := range h.clients {
		client.mu.Lock()
		lastActivity := client.lastActivity
		order := client.subscribedOrder
		client.mu.Unlock()

		if now.Sub(lastActivity) > idleTimeout {
			log.Printf("Closing idle client for order %s (last activity: %v ago)",
				order, now.Sub(lastActivity))
			if client.subscription != nil {
				client.subscription.Unsubscribe()
				client.subscription = nil
			}
			client.close()
			delete(h.clients, client)
		}
	}
}

// Stop stops the WebSocket hub
func (h *WebSocketHub) Stop() {
	close(h.stopCh)
}

// HandleWebSocket handles WebSocket connections
func (s *Server) HandleWebSocket(c *fiber.Ctx) error {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		client := &Client{
			conn:         conn,
			lastActivity: time.Now(),
			send:         make(chan ServerMessage, 16),
		}

		s.wsHub.register <- client

		go client.writePump()

		// Read pump (blocking)
		client.readPump(s.wsHub)

		s.wsHub.unregister <- client
	})(c)
}

// readPump reads messages from the WebSocket connection
func (c *Client) readPump(hub *WebSocketHub) {
	for {
		var msg ClientMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()

		switch msg.Action {
		case "subscribe":
			if msg.OrderID != "" {
				hub.subscribeClient(c, msg.OrderID)

				c.deliver(ServerMessage{
					Type:    "subscribed",
					OrderID: msg.OrderID,
					Time:    time.Now().Format(time.RFC3339),
				})
			}

		case "unsubscribe":
			hub.unregister <- c

		case "ping":
			c.deliver(ServerMessage{
				Type: "pong",
				Time: time.Now().Format(time.RFC3339),
			})
		}
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Channel closed
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if msg.Type == "close" {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			err := c.conn.WriteJSON(msg)
			if err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
