package httpserver

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/internal/scheduler"
	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrInsufficientPosition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrUnknownMarket),
		errors.Is(err, types.ErrSubscriptionNotFound),
		errors.Is(err, scheduler.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, types.ErrStalePriceUnavailable),
		errors.Is(err, types.ErrDuplicateTrade):
		return http.StatusConflict
	case errors.Is(err, types.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response. Internal errors are logged and
// their detail withheld from the client.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("api-request-failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		message = "internal error"
	}
	RequestErrorsTotal.WithLabelValues(http.StatusText(status)).Inc()
	a.writeJSON(w, status, ErrorResponse{Error: message})
}

func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return types.InvalidInputf("request body is required")
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		return types.InvalidInputf("decode request body: %v", err)
	}
	return nil
}
