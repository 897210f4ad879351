// Package realtime serves the bidirectional event endpoint. Clients connect
// over WebSocket, identify with their session token, and then receive events
// addressed to them by user ID.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrUserNotConnected = errors.New("user not connected")
	ErrHubClosed        = errors.New("realtime hub closed")
	ErrUnknownEvent     = errors.New("unknown event")
)

const (
	// EventIdentity is the first message of a client that did not present a
	// token on the upgrade request.
	EventIdentity   = "identity"
	EventIdentified = "identified"
	EventError      = "error"

	maxMessageSize = 64 * 1024
	handlerTimeout = 10 * time.Second
)

// Envelope is the wire format for every message in either direction
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EventHandler handles a client event sent by an identified user
type EventHandler func(ctx context.Context, userID string, data json.RawMessage) error

// TokenValidator resolves a session token to a user ID
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Options configures a Hub
type Options struct {
	// CookieName is the session cookie checked on the upgrade request
	CookieName   string
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	// CheckOrigin decides whether an upgrade request is accepted
	CheckOrigin func(r *http.Request) bool
}

// client is one WebSocket connection
type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	closed bool // guarded by Hub.mu
}

// Hub owns all realtime connections of this instance
type Hub struct {
	opts     Options
	tokens   TokenValidator
	presence PresenceStore
	logger   *zap.Logger
	upgrader websocket.Upgrader

	handlersMu sync.RWMutex
	handlers   map[string]EventHandler

	mu      sync.RWMutex
	conns   map[*client]struct{}
	clients map[string]map[*client]struct{} // userID -> identified connections
	closed  bool
}

// NewHub creates a new realtime hub
func NewHub(opts Options, tokens TokenValidator, presence PresenceStore, logger *zap.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.CookieName == "" {
		opts.CookieName = "token"
	}
	if presence == nil {
		presence = NewMemoryPresenceStore()
	}

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == "" }
	}

	return &Hub{
		opts:     opts,
		tokens:   tokens,
		presence: presence,
		logger:   logger.Named("realtime-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		handlers: make(map[string]EventHandler),
		conns:    make(map[*client]struct{}),
		clients:  make(map[string]map[*client]struct{}),
	}
}

// On registers the handler for a client event. Registering the same event
// twice replaces the earlier handler.
func (h *Hub) On(event string, handler EventHandler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[event] = handler
}

func (h *Hub) handler(event string) (EventHandler, bool) {
	h.handlersMu.RLock()
	defer h.handlersMu.RUnlock()
	fn, ok := h.handlers[event]
	return fn, ok
}

// ServeHTTP upgrades GET requests and accepts single events over POST
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleUpgrade(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "realtime unavailable"})
		return
	}

	// A token on the upgrade request identifies the client immediately
	var userID string
	if token := h.requestToken(r); token != "" {
		id, err := h.tokens.ValidateToken(token)
		if err == nil {
			userID = id
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response
		h.logger.Debug("Failed to upgrade connection",
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.opts.SendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Realtime client connected", zap.String("conn_id", c.id))

	if userID != "" {
		h.identify(c, userID)
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) handlePost(w http.ResponseWriter, r *http.Request) {
	token := h.requestToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing token"})
		return
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Event == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event envelope"})
		return
	}

	if err := h.dispatch(r.Context(), userID, env); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownEvent) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// requestToken extracts the session token from the cookie or bearer header
func (h *Hub) requestToken(r *http.Request) string {
	if cookie, err := r.Cookie(h.opts.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if parts := strings.SplitN(auth, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (h *Hub) dispatch(ctx context.Context, userID string, env Envelope) error {
	fn, ok := h.handler(env.Event)
	if !ok {
		return ErrUnknownEvent
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	return fn(ctx, userID, env.Data)
}

// identify binds a connection to a user. A connection is identified at most
// once; later identity events are answered but do not rebind.
func (h *Hub) identify(c *client, userID string) {
	h.mu.Lock()
	if c.closed || c.userID != "" {
		h.mu.Unlock()
		return
	}
	c.userID = userID
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.SetOnline(ctx, userID, c.id); err != nil {
		h.logger.Warn("Failed to record presence", zap.String("user_id", userID), zap.Error(err))
	}

	h.logger.Info("Realtime client identified", zap.String("user_id", userID), zap.String("conn_id", c.id))
	h.reply(c, EventIdentified, map[string]string{"userId": userID})
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	readWait := 2 * h.opts.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		h.refreshPresence(c)
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("Realtime read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			h.reply(c, EventError, map[string]string{"message": "invalid event envelope"})
			continue
		}

		h.mu.RLock()
		userID := c.userID
		h.mu.RUnlock()

		if env.Event == EventIdentity {
			h.handleIdentity(c, env.Data)
			continue
		}

		if userID == "" {
			h.reply(c, EventError, map[string]string{"message": "identify first"})
			continue
		}

		if err := h.dispatch(context.Background(), userID, env); err != nil {
			h.logger.Debug("Realtime event failed",
				zap.String("event", env.Event),
				zap.String("user_id", userID),
				zap.Error(err))
			h.reply(c, EventError, map[string]string{"message": err.Error()})
		}
	}
}

// refreshPresence re-records an identified connection so presence entries
// with a TTL outlive long sessions
func (h *Hub) refreshPresence(c *client) {
	h.mu.RLock()
	userID := c.userID
	h.mu.RUnlock()
	if userID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.SetOnline(ctx, userID, c.id); err != nil {
		h.logger.Debug("Failed to refresh presence", zap.String("user_id", userID), zap.Error(err))
	}
}

func (h *Hub) handleIdentity(c *client, data json.RawMessage) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		h.reply(c, EventError, map[string]string{"message": "token required"})
		return
	}

	userID, err := h.tokens.ValidateToken(payload.Token)
	if err != nil {
		h.logger.Debug("Realtime identity rejected", zap.String("conn_id", c.id), zap.Error(err))
		h.reply(c, EventError, map[string]string{"message": "invalid token"})
		return
	}

	h.mu.RLock()
	current := c.userID
	h.mu.RUnlock()
	if current != "" {
		h.reply(c, EventIdentified, map[string]string{"userId": current})
		return
	}
	h.identify(c, userID)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// unregister closes the client's queue and clears its presence
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	delete(h.conns, c)
	userID := c.userID
	if set, ok := h.clients[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
	h.mu.Unlock()

	if userID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.presence.SetOffline(ctx, userID, c.id); err != nil {
			h.logger.Warn("Failed to clear presence", zap.String("user_id", userID), zap.Error(err))
		}
		h.logger.Info("Realtime client disconnected", zap.String("user_id", userID), zap.String("conn_id", c.id))
	}
}

func encode(event string, payload interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// enqueue queues a message without blocking; false means the queue is full.
// Callers must hold h.mu (read or write).
func enqueue(c *client, message []byte) bool {
	if c.closed {
		return true
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (h *Hub) reply(c *client, event string, payload interface{}) {
	message, err := encode(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	ok := enqueue(c, message)
	h.mu.RUnlock()
	if !ok {
		h.dropSlow([]*client{c})
	}
}

func (h *Hub) dropSlow(slow []*client) {
	for _, c := range slow {
		h.logger.Warn("Dropping slow realtime client", zap.String("conn_id", c.id))
		h.unregister(c)
	}
}

// EmitToUser sends an event to every connection of userID on this instance
func (h *Hub) EmitToUser(userID, event string, payload interface{}) error {
	message, err := encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	set := h.clients[userID]
	if len(set) == 0 {
		h.mu.RUnlock()
		return ErrUserNotConnected
	}
	var slow []*client
	for c := range set {
		if !enqueue(c, message) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
	return nil
}

// Broadcast sends an event to every identified connection
func (h *Hub) Broadcast(event string, payload interface{}) error {
	message, err := encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*client
	for _, set := range h.clients {
		for c := range set {
			if !enqueue(c, message) {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
	return nil
}

// IsOnline reports whether the user is connected to any instance
func (h *Hub) IsOnline(ctx context.Context, userID string) (bool, error) {
	return h.presence.IsOnline(ctx, userID)
}

// OnlineCount returns the number of distinct users connected to this instance
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Ping checks the presence store
func (h *Hub) Ping(ctx context.Context) error {
	return h.presence.Ping(ctx)
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.unregister(c)
	}
	return h.presence.Close()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
