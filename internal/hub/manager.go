/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hub

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
	"github.com/Seednode/warroom/internal/timer"
)

// StateSource supplies what a client needs on connect.
type StateSource interface {
	GetSession(ctx context.Context, id string) (model.Session, error)
	GameState(ctx context.Context, session string) (model.GameState, error)
	Timer(ctx context.Context, session string) (timer.Timer, error)
}

// Manager holds a set of hubs keyed by session id, so each session is its
// own isolated broadcast group.
type Manager struct {
	source StateSource
	logger *zap.Logger

	idleTimeout time.Duration
	roleGrace   time.Duration

	mu   sync.Mutex
	hubs map[string]*Hub

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Manager)

// WithIdleTimeout reaps hubs without clients after d. Zero disables reaping.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

// WithRoleGrace keeps the roles of a disconnected client for d.
func WithRoleGrace(d time.Duration) Option {
	return func(m *Manager) { m.roleGrace = d }
}

func NewManager(source StateSource, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		source:    source,
		logger:    logger,
		roleGrace: 2 * time.Minute,
		hubs:      make(map[string]*Hub),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the reaper. It stops when ctx is cancelled or Close is
// called.
func (m *Manager) Start(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reaperLoop(ctx)
	}()
}

// Hub returns the hub of session, creating it on first use.
func (m *Manager) Hub(session string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.hubs[session]; ok {
		return h
	}

	h := newHub(session, m.roleGrace, m.logger)
	m.hubs[session] = h
	go h.run()
	return h
}

func (m *Manager) existing(session string) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hubs[session]
}

// Publish forwards a change to the hub of its session. Changes for sessions
// nobody is watching are dropped.
func (m *Manager) Publish(c store.Change) {
	if c.Session == "" {
		return
	}
	if h := m.existing(c.Session); h != nil {
		h.publish(c)
	}
}

// Len reports the number of live hubs.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hubs)
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout.
func (m *Manager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(m.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.reap(now.Add(-m.idleTimeout))
		}
	}
}

// reap stops hubs without clients that have been idle since before cutoff.
func (m *Manager) reap(cutoff time.Time) int {
	var idle []*Hub

	m.mu.Lock()
	for id, h := range m.hubs {
		last, clients := h.idleSince()
		if clients == 0 && last.Before(cutoff) {
			delete(m.hubs, id)
			idle = append(idle, h)
		}
	}
	m.mu.Unlock()

	for _, h := range idle {
		m.logger.Debug("reaping idle hub", zap.String("session", h.id))
		h.stop()
	}
	return len(idle)
}

// Close stops the reaper and every hub, disconnecting all clients.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	hubs := m.hubs
	m.hubs = make(map[string]*Hub)
	m.mu.Unlock()

	for _, h := range hubs {
		h.stop()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const ClientCookieName = "warroom_id"

// ClientID returns the id stored in the client cookie, setting a new one
// when the request carries none.
func ClientID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(ClientCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id, nil
}

// greeting loads the state a new client is sent on connect. Failures are
// logged and leave zero values.
func (m *Manager) greeting(ctx context.Context, session string) greeting {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var g greeting
	if state, err := m.source.GameState(ctx, session); err == nil {
		g.state = state
	} else {
		m.logger.Debug("loading game state for session_info failed", zap.String("session", session), zap.Error(err))
	}
	if t, err := m.source.Timer(ctx, session); err == nil {
		g.timer = t
	} else {
		m.logger.Debug("loading timer for session_info failed", zap.String("session", session), zap.Error(err))
	}
	return g
}

// ServeWS upgrades the request and attaches it to the hub of session. Errors
// are returned only before the upgrade, while a response can still be
// written.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request, session string) error {
	if _, err := m.source.GetSession(r.Context(), session); err != nil {
		return err
	}

	clientID, err := ClientID(w, r)
	if err != nil {
		return err
	}

	hello := m.greeting(r.Context(), session)

	h := m.Hub(session)

	conn, err := upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		m.logger.Debug("websocket upgrade failed", zap.String("session", session), zap.Error(err))
		return nil
	}

	client := &Client{
		conn:     conn,
		send:     make(chan any, sendBuffer),
		clientID: clientID,
		greeting: hello,
	}

	if !enqueue(h, h.register, client) {
		_ = conn.Close()
		return nil
	}

	go client.writePump()
	client.readPump(h)
	return nil
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		enqueue(h, h.unreg, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "claim_role", "takeover", "release_role":
			if !enqueue(h, h.commands, command{client: c, msg: msg}) {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
