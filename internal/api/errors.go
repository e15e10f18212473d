package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/womgr-core/internal/dashboard"
	"github.com/nerrad567/womgr-core/internal/device"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeCommandNotFound = "command_not_found"
	ErrCodeUnavailable     = "service_unavailable"
	ErrCodeBadGateway      = "bad_gateway"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
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

// writeDeviceError maps registry and capability errors to a response.
// Anything unrecognised becomes a 500 carrying fallback instead of the
// error text.
func writeDeviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrNotFound), errors.Is(err, device.ErrRemoved):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDuplicateName),
		errors.Is(err, device.ErrDuplicateMAC),
		errors.Is(err, device.ErrDuplicateIP):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrCommandNotFound):
		writeError(w, http.StatusFailedDependency, ErrCodeCommandNotFound, err.Error())
	case errors.Is(err, device.ErrInvalidAddress),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrUnsupportedOS),
		errors.Is(err, device.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, dashboard.ErrInvalidDocument):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	default:
		writeInternalError(w, fallback)
	}
}
