package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/auth"
)

// AuthHandlers serves the control API login.
type AuthHandlers struct {
	authn  *auth.Authenticator
	logger *zap.Logger
}

// NewAuthHandlers returns handler struct.
func NewAuthHandlers(authn *auth.Authenticator, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{authn: authn, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.authn.Login(req.Username, req.Password)
	if err != nil {
		h.logger.Warn("control login rejected", zap.String("username", req.Username))
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
