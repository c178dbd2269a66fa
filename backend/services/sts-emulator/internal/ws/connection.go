package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readLimit = 512
	pongWait  = 60 * time.Second
	sendQueue = 64
)

// Connection is one live feed subscriber. Only the write pump writes to the socket.
type Connection struct {
	id           string
	ws           *websocket.Conn
	send         chan []byte
	logger       *zap.Logger
	writeTimeout time.Duration
	pingInterval time.Duration
	onClose      func(id string)

	mu     sync.Mutex
	closed bool
}

// NewConnection builds a connection wrapper.
func NewConnection(id string, ws *websocket.Conn, writeTimeout, pingInterval time.Duration, logger *zap.Logger, onClose func(string)) *Connection {
	return &Connection{
		id:           id,
		ws:           ws,
		send:         make(chan []byte, sendQueue),
		logger:       logger,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		onClose:      onClose,
	}
}

// ID returns the connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Start launches the write pump and blocks in the read pump until the peer goes away.
func (c *Connection) Start(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump()
}

// readPump only watches for close and pong frames; feed clients send nothing useful.
func (c *Connection) readPump() {
	defer c.cleanup()
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.logger.Debug("feed connection read closed", zap.String("conn_id", c.id), zap.Error(err))
			return
		}
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			_ = c.ws.Close()
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("feed write failed", zap.String("conn_id", c.id), zap.Error(err))
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}
		}
	}
}

// Send enqueues a message. It never blocks; a full queue drops the message.
func (c *Connection) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("dropping feed message, buffer full", zap.String("conn_id", c.id))
		return false
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *Connection) cleanup() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.ws.Close()
	if c.onClose != nil {
		c.onClose(c.id)
	}
}
