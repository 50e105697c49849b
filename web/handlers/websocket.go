package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

// TelemetryHub manages WebSocket connections and streams telemetry records
// from prompt builds to connected analytics clients.
type TelemetryHub struct {
	clients    map[clientInterface]bool
	broadcast  chan interface{}
	register   chan clientInterface
	unregister chan clientInterface
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	// allowedHosts are the hosts accepted in the Origin header.
	allowedHosts []string
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *TelemetryHub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewTelemetryHub creates a hub accepting websocket upgrades from the given
// host:port origins.
func NewTelemetryHub(allowedHosts []string) *TelemetryHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &TelemetryHub{
		clients:      make(map[clientInterface]bool),
		broadcast:    make(chan interface{}, 256),
		register:     make(chan clientInterface),
		unregister:   make(chan clientInterface),
		ctx:          ctx,
		cancel:       cancel,
		allowedHosts: allowedHosts,
	}
}

// Run starts the hub's message processing loop.
func (h *TelemetryHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("telemetry: client connected (total: %d)", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("telemetry: client disconnected (total: %d)", count)

		case message := <-h.broadcast:
			// Full lock because slow clients are evicted below.
			h.mu.Lock()
			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("telemetry: ERROR failed to marshal message: %v", err)
				h.mu.Unlock()
				continue
			}

			for client := range h.clients {
				sendChan := client.getSendChannel()
				select {
				case sendChan <- data:
				default:
					// Client's send channel is full, disconnect them.
					close(sendChan)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			log.Println("telemetry: hub stopping...")
			return
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *TelemetryHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. Non-blocking: if the
// broadcast buffer is full the message is dropped.
func (h *TelemetryHub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		log.Println("telemetry: WARNING broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub. No-op after Stop.
func (h *TelemetryHub) Register(client clientInterface) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub. No-op after Stop, so pump
// goroutines draining at shutdown don't block on the stopped loop.
func (h *TelemetryHub) Unregister(client clientInterface) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *TelemetryHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && !h.originAllowed(origin) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.allowedHosts,
	})
	if err != nil {
		log.Printf("telemetry: ERROR websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

func (h *TelemetryHub) originAllowed(origin string) bool {
	for _, host := range h.allowedHosts {
		if origin == fmt.Sprintf("http://%s", host) || origin == fmt.Sprintf("https://%s", host) {
			return true
		}
	}
	return false
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()

		if err != nil {
			log.Printf("telemetry: ERROR websocket write failed: %v", err)
			return
		}
	}
}

// readPump drains messages to detect disconnections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) close() {}
