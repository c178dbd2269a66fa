package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/service"
	"stsemulator/backend/services/sts-emulator/internal/stats"
)

// ServerHandlers serves the tally listener lifecycle and statistics.
type ServerHandlers struct {
	// ctx outlives requests; a listener started over HTTP runs until it or ctx is stopped.
	ctx      context.Context
	emulator *service.Emulator
	logger   *zap.Logger
}

// NewServerHandlers returns handler struct.
func NewServerHandlers(ctx context.Context, emulator *service.Emulator, logger *zap.Logger) *ServerHandlers {
	return &ServerHandlers{ctx: ctx, emulator: emulator, logger: logger}
}

type serverStatus struct {
	Running bool   `json:"running"`
	Addr    string `json:"addr,omitempty"`
}

type statsResponse struct {
	serverStatus
	Clients []stats.Record `json:"clients"`
}

// Start handles POST /api/server/start.
func (h *ServerHandlers) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.emulator.Start(h.ctx); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, serverStatus{Running: true, Addr: h.emulator.Addr()})
}

// Stop handles POST /api/server/stop.
func (h *ServerHandlers) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.emulator.Stop(); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, serverStatus{Running: false})
}

// Stats handles GET /api/stats.
func (h *ServerHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		serverStatus: serverStatus{Running: h.emulator.Running(), Addr: h.emulator.Addr()},
		Clients:      h.emulator.Stats(),
	})
}

// State handles GET /api/state.
func (h *ServerHandlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.emulator.Snapshot())
}
