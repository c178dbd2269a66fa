package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP requests to live feed WebSockets.
type Server struct {
	ctx          context.Context
	manager      *Manager
	logger       *zap.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds a feed server. Connections close when ctx is done.
func NewServer(ctx context.Context, manager *Manager, writeTimeout, pingInterval time.Duration, logger *zap.Logger) *Server {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Server{
		ctx:          ctx,
		manager:      manager,
		logger:       logger,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for the /api/events endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(s.ctx)
	connection := NewConnection(id, conn, s.writeTimeout, s.pingInterval, s.logger, func(id string) {
		s.manager.Remove(id)
		cancel()
	})
	s.manager.Add(connection)

	go connection.Start(ctx)
	s.logger.Info("feed client connected", zap.String("conn_id", id), zap.String("remote", r.RemoteAddr))
}
