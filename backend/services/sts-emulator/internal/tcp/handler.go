package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/events"
	"stsemulator/backend/services/sts-emulator/internal/injection"
	"stsemulator/backend/services/sts-emulator/internal/protocol"
	"stsemulator/backend/services/sts-emulator/internal/stats"
	"stsemulator/backend/services/sts-emulator/internal/tally"
)

const (
	// ReadTimeout bounds how long a client may take to send its request.
	ReadTimeout = 5 * time.Second
	// MaxRequestSize caps the bytes read from one connection.
	MaxRequestSize = 8 << 10
	writeTimeout   = 5 * time.Second
)

// Settings is the live configuration a handler consults per request.
type Settings interface {
	Model() tally.Model
	ClientRandom() bool
}

// Injector decides whether a response is dropped, corrupted or delayed.
type Injector interface {
	Decide(ctx context.Context, client, requestLine string) injection.Verdict
}

// Publisher receives one event per handled connection.
type Publisher interface {
	Publish(ev events.Event) int
}

// Handler answers one tally request per connection.
type Handler struct {
	settings    Settings
	store       *tally.Store
	injector    Injector
	stats       *stats.Aggregator
	events      Publisher
	logger      *zap.Logger
	readTimeout time.Duration
}

// NewHandler wires a handler.
func NewHandler(settings Settings, store *tally.Store, injector Injector, agg *stats.Aggregator, publisher Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		settings:    settings,
		store:       store,
		injector:    injector,
		stats:       agg,
		events:      publisher,
		logger:      logger,
		readTimeout: ReadTimeout,
	}
}

// Handle reads the request, applies injection, answers at most once and closes conn.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	client := clientAddress(conn.RemoteAddr())
	logger := h.logger.With(zap.String("client", client))

	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	line, ok, err := readRequest(conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			logger.Warn("request read timed out")
			h.stats.Increment(client, stats.CounterTimeout)
			h.events.Publish(events.NewEvent(client, line, events.OutcomeTimeout))
			return
		}
		logger.Debug("request read failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	logger.Debug("request received", zap.String("request", line))
	h.stats.RecordRequest(client)

	verdict := h.injector.Decide(ctx, client, line)
	switch verdict.Action {
	case injection.ActionIgnore:
		h.stats.Increment(client, stats.CounterIgnored)
		h.events.Publish(events.NewEvent(client, line, events.OutcomeIgnored))
		return
	case injection.ActionJunk:
		n, werr := h.write(conn, logger, protocol.Frame(h.settings.Model(), verdict.Junk))
		h.stats.Increment(client, stats.CounterJunk)
		ev := events.NewEvent(client, line, events.OutcomeJunk)
		ev.Response = n
		h.publishWrite(client, ev, werr)
		return
	case injection.ActionAbort:
		h.stats.Increment(client, stats.CounterDelayed)
		h.events.Publish(events.NewEvent(client, line, events.OutcomeAborted))
		logger.Info("delayed response abandoned, server stopping")
		return
	}
	if verdict.Delayed {
		h.stats.Increment(client, stats.CounterDelayed)
	}

	req, err := protocol.ParseRequestLine(line)
	if err != nil {
		logger.Warn("malformed request", zap.String("request", line), zap.Error(err))
		n, werr := h.write(conn, logger, protocol.BadRequest())
		h.stats.Increment(client, stats.CounterMalformed)
		ev := events.NewEvent(client, line, events.OutcomeMalformed)
		ev.Response = n
		h.publishWrite(client, ev, werr)
		return
	}

	var state tally.State
	if h.settings.ClientRandom() {
		state = h.store.ClientState(client)
	} else {
		state = h.store.ChannelState(req.Channel)
	}

	n, werr := h.write(conn, logger, protocol.Status(h.settings.Model(), state))
	outcome := events.OutcomeNormal
	switch {
	case werr != nil:
		outcome = events.OutcomeFailed
	case verdict.Delayed:
		outcome = events.OutcomeDelayed
	}
	if werr == nil {
		h.stats.Increment(client, stats.CounterNormal)
	}

	ev := events.NewEvent(client, line, outcome)
	ev.Channel = req.Channel
	ev.State = state.String()
	ev.Response = n
	h.publishWrite(client, ev, werr)
}

func (h *Handler) write(conn net.Conn, logger *zap.Logger, payload []byte) (int, error) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := conn.Write(payload)
	if err != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
	return n, err
}

// publishWrite records a failed write on the client's stats and on ev before publishing.
func (h *Handler) publishWrite(client string, ev events.Event, werr error) {
	if werr != nil {
		h.stats.Increment(client, stats.CounterWriteFailed)
		ev.Error = werr.Error()
	}
	h.events.Publish(ev)
}

// readRequest reads lines until a blank line, EOF or the size cap and returns the first
// line without its terminator. ok is false when the peer sent nothing.
func readRequest(r io.Reader) (first string, ok bool, err error) {
	br := bufio.NewReader(io.LimitReader(r, MaxRequestSize))
	for {
		line, readErr := br.ReadString('\n')
		if line != "" {
			if !ok {
				first = strings.TrimRight(line, "\r\n")
				ok = true
			}
			if line == "\n" || line == "\r\n" {
				return first, ok, nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return first, ok, nil
			}
			return first, ok, readErr
		}
	}
}

func clientAddress(addr net.Addr) string {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
