package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/service"
	"stsemulator/backend/services/sts-emulator/internal/tally"
)

// TallyHandlers serves channel states, client states and cycling.
type TallyHandlers struct {
	emulator *service.Emulator
	logger   *zap.Logger
}

// NewTallyHandlers returns handler struct.
func NewTallyHandlers(emulator *service.Emulator, logger *zap.Logger) *TallyHandlers {
	return &TallyHandlers{emulator: emulator, logger: logger}
}

type stateRequest struct {
	State *tally.State `json:"state"`
}

func decodeState(w http.ResponseWriter, r *http.Request) (tally.State, bool) {
	var req stateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if req.State == nil {
		writeError(w, http.StatusBadRequest, "state is required")
		return 0, false
	}
	return *req.State, true
}

// Channels handles GET /api/channels.
func (h *TallyHandlers) Channels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.emulator.ChannelStates())
}

// SetChannel handles PUT /api/channels/{channel}.
func (h *TallyHandlers) SetChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := strconv.Atoi(r.PathValue("channel"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "channel must be an integer")
		return
	}
	state, ok := decodeState(w, r)
	if !ok {
		return
	}
	if err := h.emulator.SetChannelState(channel, state); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("channel state set", zap.Int("channel", channel), zap.Stringer("state", state))
	writeJSON(w, http.StatusOK, h.emulator.ChannelStates())
}

// ResetChannels handles POST /api/channels/reset.
func (h *TallyHandlers) ResetChannels(w http.ResponseWriter, r *http.Request) {
	h.emulator.ResetChannels()
	writeJSON(w, http.StatusOK, h.emulator.ChannelStates())
}

type cycleRequest struct {
	AutoCycle       *bool    `json:"autoCycle"`
	IntervalSeconds *float64 `json:"intervalSeconds"`
}

// SetCycle handles PUT /api/cycle.
func (h *TallyHandlers) SetCycle(w http.ResponseWriter, r *http.Request) {
	var req cycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.IntervalSeconds != nil {
		interval := time.Duration(*req.IntervalSeconds * float64(time.Second))
		if err := h.emulator.SetCycleInterval(interval); err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
	}
	if req.AutoCycle != nil {
		h.emulator.SetAutoCycle(*req.AutoCycle)
	}
	writeJSON(w, http.StatusOK, h.emulator.Config())
}

// Clients handles GET /api/clients.
func (h *TallyHandlers) Clients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.emulator.ClientStates())
}

type clientModeRequest struct {
	ClientRandom *bool `json:"clientRandom"`
	ClientCycle  *bool `json:"clientCycle"`
}

// SetClientMode handles PUT /api/clients/mode.
func (h *TallyHandlers) SetClientMode(w http.ResponseWriter, r *http.Request) {
	var req clientModeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ClientRandom != nil {
		h.emulator.SetClientRandom(*req.ClientRandom)
	}
	if req.ClientCycle != nil {
		h.emulator.SetClientCycle(*req.ClientCycle)
	}
	writeJSON(w, http.StatusOK, h.emulator.Config())
}

// SetClient handles PUT /api/clients/{address}.
func (h *TallyHandlers) SetClient(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	state, ok := decodeState(w, r)
	if !ok {
		return
	}
	if err := h.emulator.SetClientState(address, state); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.emulator.ClientStates())
}

// ClearClients handles DELETE /api/clients.
func (h *TallyHandlers) ClearClients(w http.ResponseWriter, r *http.Request) {
	h.emulator.ClearClientStates()
	w.WriteHeader(http.StatusNoContent)
}
