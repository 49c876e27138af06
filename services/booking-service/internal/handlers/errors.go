package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/booking"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to a status and a stable error code.
// Anything unrecognised is logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, booking.ErrNotAuthenticated):
		status, code = http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, booking.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, booking.ErrInvalidBooking):
		status, code = http.StatusBadRequest, "invalid_booking"
	case errors.Is(err, booking.ErrNoPendingBooking):
		status, code = http.StatusBadRequest, "no_pending_booking"
	case errors.Is(err, booking.ErrSlotConflict):
		status, code = http.StatusConflict, "slot_conflict"
	case errors.Is(err, model.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrPaymentIncomplete):
		status, code = http.StatusConflict, "payment_incomplete"
	case errors.Is(err, booking.ErrInvalidSession), errors.Is(err, booking.ErrInvalidMetadata):
		status, code = http.StatusBadRequest, "invalid_session"
	case errors.Is(err, booking.ErrGatewayUnavailable):
		status, code = http.StatusBadGateway, "payment_gateway_unavailable"
	}

	resp := errorResponse{Error: code}
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "err", err)
	} else if errors.Is(err, booking.ErrInvalidBooking) {
		resp.Message = detail(err, booking.ErrInvalidBooking)
	}
	writeJSON(w, status, resp)
}

// detail strips the sentinel prefix from a wrapped validation error.
func detail(err, sentinel error) string {
	msg := err.Error()
	return strings.TrimPrefix(strings.TrimPrefix(msg, sentinel.Error()), ": ")
}

// redirectCode is the code appended to the error redirect after a failed
// return from checkout.
func redirectCode(err error) string {
	switch {
	case errors.Is(err, booking.ErrPaymentIncomplete):
		return "payment_incomplete"
	case errors.Is(err, booking.ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, booking.ErrInvalidSession), errors.Is(err, booking.ErrInvalidMetadata):
		return "invalid_session"
	default:
		return "settlement_failed"
	}
}
