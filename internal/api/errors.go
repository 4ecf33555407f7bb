package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/tydom2mqtt/internal/bridge"
	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/tydom"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeValidation     = "validation_error"
	ErrCodeHub            = "hub_error"
	ErrCodeHubTimeout     = "hub_timeout"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeInternal       = "internal_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeCoverError maps a cover operation error onto an HTTP reply.
func writeCoverError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cover.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.Is(err, bridge.ErrPositionUnavailable):
		writeError(w, http.StatusBadGateway, ErrCodeHub, err.Error())
	case errors.Is(err, tydom.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "hub not connected")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeHubTimeout, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeHub, err.Error())
	}
}
