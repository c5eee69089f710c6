package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veil-waf/veil-detect/internal/db"
)

const (
	writeTimeout = 5 * time.Second
	hydrateCount = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client serializes writes; gorilla allows one concurrent writer per conn.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) sendJSON(data any) error {
	msg, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Manager tracks active WebSocket connections and broadcasts attack records.
type Manager struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger
	store   db.Store
}

// NewManager creates a new WebSocket manager.
func NewManager(store db.Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger, clients: make(map[*client]struct{})}
}

// HandleWS upgrades an HTTP connection to WebSocket and registers it.
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	c := &client{conn: conn}

	// Hydrate before registering so replayed records precede live ones.
	m.hydrate(r.Context(), c)

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	defer m.remove(c)

	// Keep connection alive, read messages (we ignore them)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) hydrate(ctx context.Context, c *client) {
	stats, err := m.store.AttackStats(ctx)
	if err == nil {
		c.sendJSON(statsMessage(stats))
	} else {
		m.logger.Warn("ws: load stats failed", "err", err)
	}

	logs, err := m.store.RecentAttackLogs(ctx, hydrateCount, "")
	if err != nil {
		m.logger.Warn("ws: load recent attacks failed", "err", err)
		return
	}
	// oldest first so the feed reads in order
	for i := len(logs) - 1; i >= 0; i-- {
		c.sendJSON(attackMessage(logs[i]))
	}
}

// PublishAttack broadcasts a stored record to every connected client.
func (m *Manager) PublishAttack(l db.AttackLog) {
	m.Broadcast(attackMessage(l))
}

// Broadcast sends a message to all connected WebSocket clients.
func (m *Manager) Broadcast(data any) {
	m.mu.RLock()
	clients := make([]*client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if err := c.sendJSON(data); err != nil {
			m.remove(c)
		}
	}
}

func (m *Manager) remove(c *client) {
	m.mu.Lock()
	_, ok := m.clients[c]
	delete(m.clients, c)
	m.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

type attackEnvelope struct {
	Type string `json:"type"`
	db.AttackLog
}

type statsEnvelope struct {
	Type string `json:"type"`
	*db.AttackStats
}

func attackMessage(l db.AttackLog) attackEnvelope {
	return attackEnvelope{Type: "attack", AttackLog: l}
}

func statsMessage(s *db.AttackStats) statsEnvelope {
	return statsEnvelope{Type: "stats", AttackStats: s}
}
