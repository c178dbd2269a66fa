package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// AcceptTimeout bounds each accept wait so a stop is observed within a second.
	AcceptTimeout = time.Second

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// acceptListener is the part of *net.TCPListener the accept loop uses.
type acceptListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// ConnHandler serves one accepted connection. It owns conn and must close it.
type ConnHandler interface {
	Handle(ctx context.Context, conn net.Conn)
}

// Server accepts tally connections and hands each one to its own goroutine.
type Server struct {
	listener acceptListener
	handler  ConnHandler
	logger   *zap.Logger
	running  atomic.Bool
	wg       sync.WaitGroup
}

// Listen binds address. A bind failure is returned as is.
func Listen(address string, handler ConnHandler, logger *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", address, err)
	}
	return newServer(ln.(*net.TCPListener), handler, logger), nil
}

func newServer(ln acceptListener, handler ConnHandler, logger *zap.Logger) *Server {
	s := &Server{
		listener: ln,
		handler:  handler,
		logger:   logger,
	}
	s.running.Store(true)
	return s
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until ctx is cancelled or Close is called. Other accept
// errors, such as running out of file descriptors, are logged and retried with a backoff
// capped at one second. Serve does not wait for in-flight connections; use Wait for that.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("tally listener started", zap.String("addr", s.Addr().String()))
	defer s.logger.Info("tally listener stopped")

	var backoff time.Duration
	for s.running.Load() {
		if ctx.Err() != nil {
			return nil
		}

		_ = s.listener.SetDeadline(time.Now().Add(AcceptTimeout))
		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || !s.running.Load() {
				return nil
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.logger.Warn("accept failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
	return nil
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panicked",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Any("panic", r))
			_ = conn.Close()
		}
	}()
	s.handler.Handle(ctx, conn)
}

// Close stops accepting and closes the listening socket. In-flight connections finish on
// their own.
func (s *Server) Close() error {
	if !s.running.Swap(false) {
		return nil
	}
	return s.listener.Close()
}

// Wait blocks until every in-flight connection has been handled.
func (s *Server) Wait() {
	s.wg.Wait()
}
