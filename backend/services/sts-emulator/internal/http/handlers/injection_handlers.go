package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/injection"
	"stsemulator/backend/services/sts-emulator/internal/service"
)

// InjectionHandlers serves error injection controls.
type InjectionHandlers struct {
	emulator *service.Emulator
	logger   *zap.Logger
}

// NewInjectionHandlers returns handler struct.
func NewInjectionHandlers(emulator *service.Emulator, logger *zap.Logger) *InjectionHandlers {
	return &InjectionHandlers{emulator: emulator, logger: logger}
}

type injectionResponse struct {
	Params    injection.Params        `json:"params"`
	IgnoreLog []injection.IgnoreEntry `json:"ignoreLog"`
}

func (h *InjectionHandlers) state() injectionResponse {
	return injectionResponse{Params: h.emulator.InjectionParams(), IgnoreLog: h.emulator.IgnoreLog()}
}

// Get handles GET /api/injection.
func (h *InjectionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state())
}

type injectionRequest struct {
	ResponseDelaySeconds *float64 `json:"responseDelaySeconds"`
	JunkProbability      *float64 `json:"junkProbability"`
	IgnoreCount          *int     `json:"ignoreCount"`
}

// Set handles PUT /api/injection. Nothing is applied unless every field is valid.
func (h *InjectionHandlers) Set(w http.ResponseWriter, r *http.Request) {
	var req injectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	update := service.InjectionUpdate{
		JunkProbability: req.JunkProbability,
		IgnoreCount:     req.IgnoreCount,
	}
	if req.ResponseDelaySeconds != nil {
		delay := time.Duration(*req.ResponseDelaySeconds * float64(time.Second))
		update.ResponseDelay = &delay
	}
	if err := h.emulator.UpdateInjection(update); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	params := h.emulator.InjectionParams()
	h.logger.Info("injection updated",
		zap.Duration("delay", params.ResponseDelay),
		zap.Float64("junk_probability", params.JunkProbability),
		zap.Int("ignore_count", params.IgnoreCount))
	writeJSON(w, http.StatusOK, h.state())
}

// Arm handles POST /api/injection/ignore/arm.
func (h *InjectionHandlers) Arm(w http.ResponseWriter, r *http.Request) {
	if err := h.emulator.ArmIgnore(); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.logger.Info("ignore mode armed", zap.Int("count", h.emulator.InjectionParams().IgnoreCount))
	writeJSON(w, http.StatusOK, h.state())
}

// Disarm handles POST /api/injection/ignore/disarm.
func (h *InjectionHandlers) Disarm(w http.ResponseWriter, r *http.Request) {
	h.emulator.DisarmIgnore()
	writeJSON(w, http.StatusOK, h.state())
}

// Reset handles POST /api/injection/reset.
func (h *InjectionHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	h.emulator.ResetInjection()
	writeJSON(w, http.StatusOK, h.state())
}
