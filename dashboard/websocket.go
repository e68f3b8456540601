package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vadiminshakov/carteira/internal/domain"
)

const (
	channelLedger  = "ledger"
	channelAccount = "account:"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Hub pushes live ledger events to websocket clients. Only the Run goroutine
// sends on or closes client channels.
type Hub struct {
	feed   eventFeed
	logger *zap.Logger

	register   chan *Client
	unregister chan *Client
	requests   chan subscription
	done       chan struct{}
	once       sync.Once

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

type subscription struct {
	client *Client
	req    WSSubscribeRequest
}

// NewHub creates a hub reading from feed. feed may be nil.
func NewHub(feed eventFeed, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		feed:       feed,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		requests:   make(chan subscription),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run delivers events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	var events <-chan domain.LedgerEvent
	if h.feed != nil {
		events = h.feed.Subscribe()
		defer h.feed.Unsubscribe(events)
	}
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", zap.String("client", c.id), zap.Int("total", n))
		case c := <-h.unregister:
			h.drop(c)
		case s := <-h.requests:
			h.apply(s)
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.broadcast(e)
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) stop() {
	h.once.Do(func() { close(h.done) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Debug("ws client disconnected", zap.String("client", c.id), zap.Int("total", len(h.clients)))
	}
}

func (h *Hub) apply(s subscription) {
	c := s.client
	var accepted []string
	for _, ch := range s.req.Channels {
		if !validChannel(ch) {
			continue
		}
		switch s.req.Op {
		case "subscribe":
			c.subscriptions[ch] = struct{}{}
		case "unsubscribe":
			delete(c.subscriptions, ch)
		default:
			continue
		}
		accepted = append(accepted, ch)
	}
	if accepted == nil {
		accepted = []string{}
	}
	h.deliver(c, WSMessage{Type: s.req.Op + "d", Data: accepted})
}

func (h *Hub) broadcast(e domain.LedgerEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.follows(e) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	msg := WSMessage{Type: "ledger_event", Data: e}
	for _, c := range targets {
		h.deliver(c, msg)
	}
}

// deliver queues msg for c and disconnects clients whose buffer is full.
func (h *Hub) deliver(c *Client, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("ws marshal", zap.Error(err))
		return
	}

	h.mu.RLock()
	_, ok := h.clients[c]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c.send <- payload:
	default:
		h.drop(c)
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) request(c *Client, req WSSubscribeRequest) {
	select {
	case h.requests <- subscription{client: c, req: req}:
	case <-h.done:
	}
}

func validChannel(ch string) bool {
	if ch == channelLedger {
		return true
	}
	identity, ok := strings.CutPrefix(ch, channelAccount)
	return ok && identity != ""
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	// owned by the hub goroutine
	subscriptions map[string]struct{}
}

func (c *Client) follows(e domain.LedgerEvent) bool {
	if _, ok := c.subscriptions[channelLedger]; ok {
		return true
	}
	if _, ok := c.subscriptions[channelAccount+e.Identity]; ok {
		return true
	}
	if e.Counterparty != "" {
		_, ok := c.subscriptions[channelAccount+e.Counterparty]
		return ok
	}
	return false
}

// readPump forwards subscription requests from the connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("ws read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Debug("ws invalid message", zap.String("client", c.id), zap.Error(err))
			continue
		}
		if req.Op != "subscribe" && req.Op != "unsubscribe" {
			c.hub.logger.Debug("ws unknown op", zap.String("client", c.id), zap.String("op", req.Op))
			continue
		}
		c.hub.request(c, req)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]struct{}),
	}
	if !s.hub.join(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
