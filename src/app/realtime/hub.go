// Package realtime is the websocket transport: connection lifecycle, room
// membership, outbound fan-out and inbound command dispatch.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trackrater/src/core/domain"
	"trackrater/src/core/ports"
	"trackrater/src/infra/config"
	"trackrater/src/infra/logger"
)

const writeWait = 10 * time.Second

var (
	// ErrUnknownConn is returned by EmitTo for a connection that is gone.
	ErrUnknownConn = errors.New("unknown connection")

	// ErrSlowConsumer is reported when a connection's send buffer overflowed.
	ErrSlowConsumer = errors.New("send buffer full")
)

// Session is what a command handler knows about its caller.
type Session struct {
	ConnID string
	Who    domain.Identity
}

// Handler reacts to connection events.
type Handler interface {
	Connected(ctx context.Context, s Session)
	Handle(ctx context.Context, s Session, event string, data json.RawMessage)
}

// Observer is notified of connection churn.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type conn struct {
	id   string
	who  domain.Identity
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// enqueue never blocks. It reports false when the buffer is full or closed.
func (c *conn) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub implements ports.Broadcaster over gorilla/websocket.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*conn
	rooms map[ports.Room]map[string]*conn

	upgrader websocket.Upgrader
	cfg      config.RealtimeConfig
	handler  Handler
	observer Observer
	log      *slog.Logger
}

var _ ports.Broadcaster = (*Hub)(nil)

// NewHub creates a hub. SetHandler must be called before serving.
func NewHub(cfg config.RealtimeConfig, log *slog.Logger, observer Observer) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 << 10
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	h := &Hub{
		conns:    make(map[string]*conn),
		rooms:    make(map[ports.Room]map[string]*conn),
		cfg:      cfg,
		observer: observer,
		log:      log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetHandler wires the command dispatcher.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(h.cfg.AllowedOrigins, func(allowed string) bool {
		allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
		return allowed == "*" || strings.EqualFold(allowed, u.Scheme+"://"+u.Host)
	})
}

// Serve upgrades the request and blocks until the connection ends. Every
// connection starts in the public room.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, who domain.Identity) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	c := &conn{
		id:   uuid.NewString(),
		who:  who,
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	h.register(c)
	defer h.unregister(c)

	log := logger.WithConn(h.log, c.id)
	log.Debug("websocket connected", "user_id", who.ID, "role", who.Role.String())

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c, log)
	}()

	ctx := context.WithoutCancel(r.Context())
	sess := Session{ConnID: c.id, Who: who}
	if h.handler != nil {
		h.handler.Connected(ctx, sess)
	}
	h.readPump(ctx, c, sess, log)

	c.close()
	<-done
	log.Debug("websocket disconnected")
	return nil
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.joinLocked(c, ports.RoomPublic)
	h.mu.Unlock()
	if h.observer != nil {
		h.observer.ConnectionOpened()
	}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; ok {
		delete(h.conns, c.id)
		for _, members := range h.rooms {
			delete(members, c.id)
		}
		if h.observer != nil {
			h.observer.ConnectionClosed()
		}
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(ctx context.Context, c *conn, sess Session, log *slog.Logger) {
	deadline := 2 * h.cfg.PingInterval
	c.ws.SetReadLimit(h.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug("websocket read failed", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(deadline))

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			log.Debug("dropping malformed frame", "bytes", len(raw))
			continue
		}
		if h.handler != nil {
			h.handler.Handle(ctx, sess, env.Event, env.Data)
		}
	}
}

func (h *Hub) writePump(c *conn, log *slog.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Emit delivers to every member of room. Slow consumers are disconnected
// and reported; the remaining members still receive the event.
func (h *Hub) Emit(ctx context.Context, room ports.Room, event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var targets []*conn
	if room == ports.RoomAll {
		targets = make([]*conn, 0, len(h.conns))
		for _, c := range h.conns {
			targets = append(targets, c)
		}
	} else {
		members := h.rooms[room]
		targets = make([]*conn, 0, len(members))
		for _, c := range members {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var errs []error
	for _, c := range targets {
		if !c.enqueue(msg) {
			errs = append(errs, fmt.Errorf("%w: conn %s", ErrSlowConsumer, c.id))
			go h.unregister(c)
		}
	}
	return errors.Join(errs...)
}

// EmitTo delivers to a single connection.
func (h *Hub) EmitTo(ctx context.Context, connID string, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConn, connID)
	}
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}
	if !c.enqueue(msg) {
		go h.unregister(c)
		return fmt.Errorf("%w: conn %s", ErrSlowConsumer, c.id)
	}
	return nil
}

// JoinRoom adds a live connection to room.
func (h *Hub) JoinRoom(connID string, room ports.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[connID]; ok {
		h.joinLocked(c, room)
	}
}

// LeaveRoom removes a connection from room.
func (h *Hub) LeaveRoom(connID string, room ports.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], connID)
}

func (h *Hub) joinLocked(c *conn, room ports.Room) {
	if room == ports.RoomAll {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*conn)
		h.rooms[room] = members
	}
	members[c.id] = c
}

// RoomSize reports how many connections are in room.
func (h *Hub) RoomSize(room ports.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room == ports.RoomAll {
		return len(h.conns)
	}
	return len(h.rooms[room])
}

// Close disconnects every client. Used on server shutdown, since hijacked
// connections are not tracked by http.Server.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.close()
	}
}
