package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"shopfloor_backend/platform/apperr"
	"shopfloor_backend/platform/httpkit"
	"shopfloor_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxMessageBytes = 4 << 20
	writeWait       = 10 * time.Second
)

// HubConfig tunes the transports.
type HubConfig struct {
	SendBuffer      int
	PingInterval    time.Duration
	AllowedOrigins  []string
	AllowAllOrigins bool
}

// Hub accepts websocket and SSE connections, registers them and feeds
// inbound websocket messages to the dispatcher.
type Hub struct {
	registry   *Registry
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	cfg        HubConfig
	log        *logger.Logger
}

// NewHub creates a hub on top of registry.
func NewHub(registry *Registry, cfg HubConfig, log *logger.Logger) *Hub {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	h := &Hub{registry: registry, cfg: cfg, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetDispatcher wires the inbound message handler.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Registry returns the connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowAllOrigins {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request and runs the connection until it closes.
// GET /api/v1/ws
func (h *Hub) ServeWS(c *gin.Context) {
	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(sock, h.cfg.SendBuffer)
	ctx := context.WithValue(context.WithoutCancel(c.Request.Context()), logger.ConnIDKey, conn.ID())
	h.registry.Register(conn)
	if id := httpkit.GetIdentity(c); id.IsKnown() {
		_ = h.registry.Bind(conn.ID(), id.UserID())
	}

	go conn.writePump(h.cfg.PingInterval)
	if h.dispatcher != nil {
		h.dispatcher.Connected(ctx, conn)
	}
	h.readPump(ctx, conn)

	h.registry.Unregister(conn.ID())
	conn.Close()
}

func (h *Hub) readPump(ctx context.Context, conn *wsConn) {
	pongWait := h.cfg.PingInterval * 2
	conn.sock.SetReadLimit(maxMessageBytes)
	_ = conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	conn.sock.SetPongHandler(func(string) error {
		return conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read ended", "connId", conn.ID(), "error", err)
			}
			return
		}
		_ = conn.sock.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			h.reject(conn, msg.Event, apperr.Coded(apperr.KindBadRequest, "MALFORMED_MESSAGE", "message must be {event, data}"))
			continue
		}
		if h.dispatcher == nil {
			continue
		}
		if err := h.dispatcher.Dispatch(ctx, conn, msg); err != nil {
			h.reject(conn, msg.Event, err)
		}
	}
}

// reject tells the sender its message was refused. The connection stays
// open; one bad message never takes down a session.
func (h *Hub) reject(conn Conn, event string, err error) {
	msg, encErr := NewMessage(EventError, ErrorPayload{
		Event: event,
		Error: err.Error(),
		Code:  apperr.GetCode(err),
	})
	if encErr != nil {
		return
	}
	_ = h.registry.SendToConn(conn.ID(), msg)
}

// ServeSSE streams broadcasts to a read-only observer.
// GET /api/v1/events
func (h *Hub) ServeSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	conn := newSSEConn(h.cfg.SendBuffer)
	h.registry.Register(conn)
	defer func() {
		h.registry.Unregister(conn.ID())
		conn.Close()
	}()
	userID := ""
	if id := httpkit.GetIdentity(c); id.IsKnown() {
		userID = id.UserID()
		_ = h.registry.Bind(conn.ID(), userID)
	}

	c.SSEvent(EventConnected, gin.H{"connId": conn.ID(), "userId": userID})
	c.Writer.Flush()

	ctx := context.WithValue(c.Request.Context(), logger.ConnIDKey, conn.ID())
	if h.dispatcher != nil {
		h.dispatcher.Connected(ctx, conn)
	}

	keepAlive := time.NewTicker(h.cfg.PingInterval)
	defer keepAlive.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-conn.done:
			return
		case <-keepAlive.C:
			_, _ = c.Writer.Write([]byte(": keep-alive\n\n"))
			c.Writer.Flush()
		case msg := <-conn.events:
			c.SSEvent(msg.Event, string(msg.Data))
			c.Writer.Flush()
		}
	}
}

// wsConn is a websocket connection with a bounded outbound queue.
type wsConn struct {
	id   string
	sock *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
}

func newWSConn(sock *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string   { return c.id }
func (c *wsConn) Kind() string { return "ws" }

func (c *wsConn) Send(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *wsConn) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// sseConn is a read-only observer fed from the registry.
type sseConn struct {
	id     string
	events chan Message
	done   chan struct{}
	once   sync.Once
}

func newSSEConn(buffer int) *sseConn {
	return &sseConn{
		id:     uuid.NewString(),
		events: make(chan Message, buffer),
		done:   make(chan struct{}),
	}
}

func (c *sseConn) ID() string   { return c.id }
func (c *sseConn) Kind() string { return "sse" }

func (c *sseConn) Send(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- msg:
		return true
	default:
		return false
	}
}

func (c *sseConn) Close() {
	c.once.Do(func() { close(c.done) })
}

var (
	_ Conn = (*wsConn)(nil)
	_ Conn = (*sseConn)(nil)
)
