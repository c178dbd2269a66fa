package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/service"
	"stsemulator/backend/services/sts-emulator/internal/tally"
)

// ConfigHandlers serves listener, model and device credential settings.
type ConfigHandlers struct {
	emulator *service.Emulator
	logger   *zap.Logger
}

// NewConfigHandlers returns handler struct.
func NewConfigHandlers(emulator *service.Emulator, logger *zap.Logger) *ConfigHandlers {
	return &ConfigHandlers{emulator: emulator, logger: logger}
}

// Get handles GET /api/config.
func (h *ConfigHandlers) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.emulator.Config())
}

type portRequest struct {
	Port *int `json:"port"`
}

// SetPort handles PUT /api/config/port. The port applies on the next start.
func (h *ConfigHandlers) SetPort(w http.ResponseWriter, r *http.Request) {
	var req portRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Port == nil {
		writeError(w, http.StatusBadRequest, "port is required")
		return
	}
	if err := h.emulator.SetPort(*req.Port); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.emulator.Config())
}

type modelRequest struct {
	Model *tally.Model `json:"model"`
}

// SetModel handles PUT /api/config/model.
func (h *ConfigHandlers) SetModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Model == nil {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	if err := h.emulator.SetModel(*req.Model); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("switcher model changed", zap.Stringer("model", *req.Model))
	writeJSON(w, http.StatusOK, h.emulator.Config())
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SetCredentials handles PUT /api/config/credentials. Empty fields keep their value.
func (h *ConfigHandlers) SetCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.emulator.SetCredentials(req.Username, req.Password)
	writeJSON(w, http.StatusOK, h.emulator.Config())
}
