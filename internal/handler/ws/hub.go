package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"QuantWatch/internal/domain/models"
	domrepo "QuantWatch/internal/domain/repository"
	xlogger "QuantWatch/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 4096
)

// Message types sent to clients.
const (
	TypeStockUpdate   = "stock_update"
	TypeAlert         = "alert"
	TypeMarketSummary = "market_summary"
	TypeSubscribed    = "subscribed"
	TypeUnsubscribed  = "unsubscribed"
	TypeError         = "error"
)

// Message is the envelope of every frame sent to a client.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Command is what a client may send: subscribe or unsubscribe to a symbol.
// A client without subscriptions receives every symbol.
type Command struct {
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// Hub fans engine events out to WebSocket clients. It is a bus subscriber,
// so a slow client never blocks the engine; a client whose buffer is full
// is disconnected.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int
	summary    func() models.MarketSummary
	interval   time.Duration
	log        *xlogger.Logger
	now        func() time.Time

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type HubOption func(*Hub)

// WithSummary broadcasts fn() as market_summary every interval while Run is active.
func WithSummary(fn func() models.MarketSummary, interval time.Duration) HubOption {
	return func(h *Hub) {
		h.summary = fn
		h.interval = interval
	}
}

func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithHubLogger(l *xlogger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithAllowedOrigins restricts upgrades to the given origins; empty allows all.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer: 64,
		interval:   30 * time.Second,
		log:        xlogger.Nop(),
		now:        time.Now,
		clients:    make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve)
}

// Serve upgrades the request and runs the client until it disconnects.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		done:    make(chan struct{}),
		symbols: make(map[models.Symbol]struct{}),
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("websocket client connected", xlogger.String("remote", c.RealIP()), xlogger.Int("clients", n))

	go cl.writePump()
	cl.readPump()
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run broadcasts the market summary on the configured interval and closes
// every client when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	var tick <-chan time.Time
	if h.summary != nil && h.interval > 0 {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-tick:
			h.broadcast(TypeMarketSummary, "", h.summary())
		}
	}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) OnInstrumentUpdate(_ context.Context, u models.InstrumentUpdate) error {
	h.broadcast(TypeStockUpdate, u.Symbol, u)
	return nil
}

func (h *Hub) OnAlert(_ context.Context, a models.AlertEvent) error {
	h.broadcast(TypeAlert, a.Symbol, a)
	return nil
}

// broadcast sends to every client following symbol; an empty symbol goes to all.
func (h *Hub) broadcast(kind string, symbol models.Symbol, data interface{}) {
	frame, err := json.Marshal(Message{Type: kind, Data: data, Timestamp: h.now().UTC()})
	if err != nil {
		h.log.Error("websocket encode failed", xlogger.String("type", kind), xlogger.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		if symbol == "" || cl.follows(symbol) {
			targets = append(targets, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if !cl.enqueue(frame) {
			h.log.Warn("websocket client too slow, disconnecting")
			h.drop(cl)
		}
	}
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	delete(h.clients, cl)
	h.mu.Unlock()
	if ok {
		cl.close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for cl := range all {
		cl.close()
	}
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	symbols map[models.Symbol]struct{}
}

func (c *client) follows(symbol models.Symbol) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) reply(kind string, data interface{}) {
	frame, err := json.Marshal(Message{Type: kind, Data: data, Timestamp: c.hub.now().UTC()})
	if err == nil {
		c.enqueue(frame)
	}
}

func (c *client) readPump() {
	defer c.hub.drop(c)
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket read error", xlogger.Error(err))
			}
			return
		}
		c.handle(cmd)
	}
}

func (c *client) handle(cmd Command) {
	sym, err := models.ParseSymbol(cmd.Symbol)
	if err != nil {
		c.reply(TypeError, map[string]string{"error": err.Error()})
		return
	}
	switch cmd.Action {
	case "subscribe":
		c.mu.Lock()
		c.symbols[sym] = struct{}{}
		c.mu.Unlock()
		c.reply(TypeSubscribed, map[string]string{"symbol": sym.String()})
	case "unsubscribe":
		c.mu.Lock()
		delete(c.symbols, sym)
		c.mu.Unlock()
		c.reply(TypeUnsubscribed, map[string]string{"symbol": sym.String()})
	default:
		c.reply(TypeError, map[string]string{"error": "unknown action " + cmd.Action})
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

var _ domrepo.Subscriber = (*Hub)(nil)
