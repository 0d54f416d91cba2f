/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package hub fans storage changes and role claims out to the browsers
// connected to a session.
//
// Features:
// - One websocket hub per session: /api/sessions/:session/ws
// - Clients identified by cookie (client id), so a reload keeps held roles
// - Each role is held by at most one client; takeover revokes the holder
// - Roles of disconnected clients are released after a grace period
// - Every change written to the session is pushed as a "change" message
// - Slow clients are dropped rather than blocking the hub
// - Idle hubs reaped after a configurable timeout
package hub

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Seednode/warroom/internal/model"
	"github.com/Seednode/warroom/internal/store"
	"github.com/Seednode/warroom/internal/timer"
)

const sendBuffer = 32

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	clientID string

	// greeting is loaded before the client registers so the run loop does
	// no storage reads.
	greeting greeting
}

type greeting struct {
	state model.GameState
	timer timer.Timer
}

type command struct {
	client *Client
	msg    ClientMessage
}

type Hub struct {
	id     string
	logger *zap.Logger
	grace  time.Duration

	clients map[*Client]bool
	holders map[model.Role]string // role -> client id
	names   map[string]string     // client id -> display name

	register chan *Client
	unreg    chan *Client
	commands chan command
	changes  chan store.Change
	expire   chan string
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	lastActive time.Time
}

func newHub(id string, grace time.Duration, logger *zap.Logger) *Hub {
	return &Hub{
		id:         id,
		logger:     logger,
		grace:      grace,
		clients:    make(map[*Client]bool),
		holders:    make(map[model.Role]string),
		names:      make(map[string]string),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		changes:    make(chan store.Change, 64),
		expire:     make(chan string),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (h *Hub) run() {
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.clients[c] = true
			info := h.sessionInfoLocked(c)
			h.sendLocked(c, info)
			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			holding := h.connectedLocked(c.clientID) == 0 && len(h.rolesOfLocked(c.clientID)) > 0
			h.mu.Unlock()

			if holding {
				h.scheduleRelease(c.clientID)
			}

		case cmd := <-h.commands:
			h.handleCommand(cmd)

		case ch := <-h.changes:
			h.mu.Lock()
			h.lastActive = time.Now()
			h.broadcastLocked(ChangeMessage{Type: "change", Change: ch})
			h.mu.Unlock()

		case clientID := <-h.expire:
			h.releaseIfGone(clientID)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// sessionInfoLocked builds the greeting for a newly registered client. The
// client uses it to decide whether to prompt for a role.
func (h *Hub) sessionInfoLocked(c *Client) SessionInfoMessage {
	return SessionInfoMessage{
		Type:      "session_info",
		Session:   h.id,
		Roles:     h.rolesOfLocked(c.clientID),
		Holders:   h.holderNamesLocked(),
		GameState: c.greeting.state,
		Timer:     c.greeting.timer,
	}
}

func (h *Hub) rolesOfLocked(clientID string) []model.Role {
	roles := []model.Role{}
	for _, role := range model.Roles {
		if h.holders[role] == clientID {
			roles = append(roles, role)
		}
	}
	return roles
}

func (h *Hub) holderNamesLocked() map[model.Role]string {
	out := make(map[model.Role]string, len(h.holders))
	for role, id := range h.holders {
		out[role] = h.displayNameLocked(id)
	}
	return out
}

func (h *Hub) displayNameLocked(clientID string) string {
	if name := h.names[clientID]; name != "" {
		return name
	}
	return "anonymous"
}

func (h *Hub) connectedLocked(clientID string) int {
	n := 0
	for c := range h.clients {
		if c.clientID == clientID {
			n++
		}
	}
	return n
}

// sendLocked queues msg for c, dropping the client when its buffer is full.
func (h *Hub) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		h.logger.Debug("dropping slow client", zap.String("session", h.id), zap.String("client", c.clientID))
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for c := range h.clients {
		h.sendLocked(c, msg)
	}
}

func (h *Hub) sendToLocked(clientID string, msg any) {
	for c := range h.clients {
		if c.clientID == clientID {
			h.sendLocked(c, msg)
		}
	}
}

func (h *Hub) broadcastRolesLocked() {
	h.broadcastLocked(RolesMessage{Type: "roles", Holders: h.holderNamesLocked()})
}

// handleCommand processes role messages.
func (h *Hub) handleCommand(cmd command) {
	c, msg := cmd.client, cmd.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	if _, ok := h.clients[c]; !ok {
		return
	}

	// A release without a role gives up everything the client holds.
	if msg.Type == "release_role" && msg.Role == "" {
		if h.releaseAllLocked(c.clientID) {
			h.broadcastRolesLocked()
		}
		return
	}

	if !msg.Role.Valid() {
		h.sendLocked(c, ErrorMessage{Type: "error", Message: "unknown role " + string(msg.Role)})
		return
	}

	if msg.Name != "" {
		h.names[c.clientID] = msg.Name
	}

	holder, held := h.holders[msg.Role]

	switch msg.Type {
	case "claim_role":
		if held && holder != c.clientID {
			h.sendLocked(c, RoleMessage{Type: "role_taken", Role: msg.Role, Holder: h.displayNameLocked(holder)})
			return
		}
		h.grantLocked(c.clientID, msg.Role)

	case "takeover":
		if held && holder != c.clientID {
			h.sendToLocked(holder, RoleMessage{Type: "role_revoked", Role: msg.Role, Holder: h.displayNameLocked(c.clientID)})
			h.logger.Info("role taken over",
				zap.String("session", h.id),
				zap.String("role", string(msg.Role)))
		}
		h.grantLocked(c.clientID, msg.Role)

	case "release_role":
		if holder != c.clientID {
			return
		}
		delete(h.holders, msg.Role)
		h.broadcastRolesLocked()
	}
}

func (h *Hub) grantLocked(clientID string, role model.Role) {
	h.holders[role] = clientID
	h.sendToLocked(clientID, RoleMessage{Type: "role_granted", Role: role, Holder: h.displayNameLocked(clientID)})
	h.broadcastRolesLocked()
}

// scheduleRelease frees the roles of clientID after the grace period unless
// it reconnects first.
func (h *Hub) scheduleRelease(clientID string) {
	if h.grace <= 0 {
		h.releaseIfGone(clientID)
		return
	}

	time.AfterFunc(h.grace, func() {
		enqueue(h, h.expire, clientID)
	})
}

func (h *Hub) releaseIfGone(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connectedLocked(clientID) > 0 {
		return
	}

	released := h.releaseAllLocked(clientID)
	delete(h.names, clientID)

	if released {
		h.lastActive = time.Now()
		h.broadcastRolesLocked()
	}
}

func (h *Hub) releaseAllLocked(clientID string) bool {
	released := false
	for role, id := range maps.Clone(h.holders) {
		if id == clientID {
			delete(h.holders, role)
			released = true
		}
	}
	return released
}

// publish queues a change for broadcast.
func (h *Hub) publish(c store.Change) {
	enqueue(h, h.changes, c)
}

// Holders returns the current role holders by display name.
func (h *Hub) Holders() map[model.Role]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.holderNamesLocked()
}

// Clients reports how many connections the hub has.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) idleSince() (time.Time, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastActive, len(h.clients)
}

// stop ends the run loop and waits for it.
func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
	<-h.stopped
}

// enqueue hands v to the run loop unless the hub has stopped.
func enqueue[T any](h *Hub, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}

// closeAll disconnects all clients of this hub.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range slices.Collect(maps.Keys(h.clients)) {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}
