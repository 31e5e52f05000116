package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/ataa/internal/model"
)

// maxBody bounds request bodies. Push batches from a field device that was
// offline for days are the largest.
const maxBody = 32 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return model.Validationf("request body is required")
		}
		return model.Validationf("malformed request body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// statusFor maps an error code to an HTTP status.
func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeConflict, model.ErrCodeStale:
		return http.StatusConflict
	case model.ErrCodeAuthExpired, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeConnectivity, model.ErrCodeNoConnectivity:
		return http.StatusServiceUnavailable
	case model.ErrCodeAlreadyInProgress:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError writes the error envelope. Errors without a code are logged
// and reported as INTERNAL without their text.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var e *model.Error
	if !errors.As(err, &e) {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{errorDetail{Code: "INTERNAL", Message: "internal error"}})
		return
	}
	status := statusFor(e.Code)
	if status >= 500 {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	msg := e.Message
	if e.EntityType != "" && e.EntityID != "" {
		msg = fmt.Sprintf("%s: %s %s", msg, e.EntityType, e.EntityID)
	}
	writeJSON(w, status, errorBody{errorDetail{Code: string(e.Code), Message: msg}})
}
