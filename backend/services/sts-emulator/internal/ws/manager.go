package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/events"
)

// Manager tracks feed connections and broadcasts request events to them.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      *zap.Logger
}

// NewManager builds a connection manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// Add registers a connection.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove drops a connection.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Broadcast queues msg on every connection and returns how many accepted it.
func (m *Manager) Broadcast(msg []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sent := 0
	for _, conn := range m.connections {
		if conn.Send(msg) {
			sent++
		}
	}
	return sent
}

// Start forwards every event from feed as JSON until ctx is done or feed is closed.
func (m *Manager) Start(ctx context.Context, feed <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				m.logger.Warn("failed to encode event", zap.String("event_id", ev.ID), zap.Error(err))
				continue
			}
			m.Broadcast(payload)
		}
	}
}
