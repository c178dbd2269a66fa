package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"stsemulator/backend/services/sts-emulator/internal/auth"
	"stsemulator/backend/services/sts-emulator/internal/injection"
	"stsemulator/backend/services/sts-emulator/internal/service"
	"stsemulator/backend/services/sts-emulator/internal/settings"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps control errors onto status codes.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, settings.ErrInvalidSetting):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAlreadyRunning),
		errors.Is(err, service.ErrNotRunning),
		errors.Is(err, injection.ErrIgnoreCountUnset):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		logger.Error("control operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON reads a single JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, target interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}
