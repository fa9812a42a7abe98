package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SimplyPrint/nfc-reader/internal/events"
	"github.com/SimplyPrint/nfc-reader/internal/logging"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second
	wsMaxMessageSize = 64 * 1024
	wsSendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local use
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string          `json:"type"`              // Message type
	ID      string          `json:"id,omitempty"`      // Request ID for request/response matching
	Payload json.RawMessage `json:"payload,omitempty"` // Message payload
	Error   string          `json:"error,omitempty"`   // Error message if any
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	server *Server

	ctx    context.Context
	cancel context.CancelFunc
}

// WSHub tracks connected clients and broadcasts card reads to them.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan []byte, wsSendBuffer),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *WSHub) Run() {
	// Re-panic after logging since hub crash is fatal
	defer logging.RecoverAndLog("WebSocket hub", true)

	for {
		// Stop wins over pending work
		select {
		case <-h.done:
			return
		default:
		}

		select {
		case <-h.done:
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(message)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends Run. Connected clients are left to their pumps.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishCardRead broadcasts ev to every connected client as a card_read
// message. Events are dropped when the hub is backed up.
func (h *WSHub) PublishCardRead(ev events.CardRead) error {
	msg, err := encodeMessage("card_read", "", ev, "")
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- msg:
	default:
		logging.Warn(logging.CatWebSocket, "Broadcast queue full, dropping card read", map[string]any{
			"requestId": ev.RequestID,
		})
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error(logging.CatWebSocket, "WebSocket upgrade failed", map[string]any{
			"error":      err.Error(),
			"remoteAddr": r.RemoteAddr,
		})
		return
	}

	logging.Info(logging.CatWebSocket, "Client connected", map[string]any{
		"remoteAddr": r.RemoteAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	client := &WSClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
		server: s,
		ctx:    ctx,
		cancel: cancel,
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	// Recover from panics (runs last due to LIFO)
	defer logging.RecoverAndLog("WebSocket readPump", false)
	// Cleanup (runs first)
	defer func() {
		select {
		case c.server.hub.unregister <- c:
		case <-c.server.hub.done:
		}
		c.cancel()
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(logging.CatWebSocket, "WebSocket unexpected close", map[string]any{
					"error": err.Error(),
				})
			} else {
				logging.Debug(logging.CatWebSocket, "Client disconnected", nil)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("", "invalid message format")
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	// Recover from panics (runs last due to LIFO)
	defer logging.RecoverAndLog("WebSocket writePump", false)
	// Cleanup (runs first)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a message without blocking. Messages for a disconnected or
// backed-up client are dropped.
func (c *WSClient) enqueue(message []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- message:
	default:
		logging.Warn(logging.CatWebSocket, "Client send buffer full, dropping message", nil)
	}
}

func (c *WSClient) handleMessage(msg WSMessage) {
	logging.Debug(logging.CatWebSocket, "Received message", map[string]any{
		"type": msg.Type,
		"id":   msg.ID,
	})

	switch msg.Type {
	case "read_card_id":
		go c.handleReadCardID(msg.ID)
	case "version":
		c.sendResponse(msg.ID, "version", map[string]string{
			"version":   Version,
			"buildTime": BuildTime,
			"gitCommit": GitCommit,
		})
	case "health":
		c.handleHealth(msg.ID)
	default:
		logging.Warn(logging.CatWebSocket, "Unknown message type", map[string]any{
			"type": msg.Type,
		})
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleReadCardID runs a blocking card read and answers with card_id.
func (c *WSClient) handleReadCardID(id string) {
	defer logging.RecoverAndLog("WebSocket read_card_id", false)

	ctx := context.Background()
	if c.server.cancelOnDisconnect {
		ctx = c.ctx
	}

	card, err := c.server.reader.ReadCardID(ctx)
	if err != nil {
		reportReadError(err, id, "websocket")
		c.sendError(id, err.Error())
		return
	}

	logging.Info(logging.CatCard, "Card read", map[string]any{
		"reader":    card.Reader,
		"serial":    card.Serial,
		"requestId": id,
	})
	c.sendResponse(id, "card_id", card)

	c.server.publishAsync(events.CardRead{
		RequestID: id,
		Reader:    card.Reader,
		Serial:    card.Serial,
		Timestamp: time.Now().UTC(),
	})
}

func (c *WSClient) handleHealth(id string) {
	payload := map[string]any{
		"status":      "ok",
		"readerCount": 0,
	}
	if c.server.lister != nil {
		if readers, err := c.server.lister.ListReaders(); err == nil {
			payload["readerCount"] = len(readers)
		} else {
			payload["readerError"] = err.Error()
		}
	}
	c.sendResponse(id, "health", payload)
}

func encodeMessage(msgType, id string, payload any, errMsg string) ([]byte, error) {
	msg := WSMessage{
		Type:  msgType,
		ID:    id,
		Error: errMsg,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

func (c *WSClient) sendResponse(id string, msgType string, payload any) {
	b, err := encodeMessage(msgType, id, payload, "")
	if err != nil {
		logging.Error(logging.CatWebSocket, "Encoding response failed", map[string]any{
			"type":  msgType,
			"error": err.Error(),
		})
		return
	}
	c.enqueue(b)
}

func (c *WSClient) sendError(id string, errMsg string) {
	b, _ := encodeMessage("error", id, nil, errMsg)
	c.enqueue(b)
}
