package handlers

import (
	"net/http"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/principal"
)

// Register mounts the booking API on mux. Checkout returns and provider
// webhooks stay public; everything else needs a verified principal.
func (h *Handler) Register(mux *http.ServeMux, v principal.Verifier) {
	authed := func(fn http.HandlerFunc) http.Handler {
		return principal.RequireAuth(fn, v)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return principal.RequireAuth(principal.RequireRole(fn, "admin"), v)
	}

	mux.Handle("/api/v1/bookings", authed(h.SubmitBooking))
	mux.Handle("/api/v1/payments/checkout", authed(h.StartCheckout))
	mux.HandleFunc("/api/v1/payments/complete", h.CompletePayment)
	mux.HandleFunc("/api/v1/payments/webhooks/stripe", h.StripeWebhook)
	mux.Handle("/api/v1/appointments", authed(h.ListAppointments))
	mux.Handle("/api/v1/appointments/cancel", authed(h.CancelAppointment))
	mux.HandleFunc("/api/v1/slots", h.Slots)

	mux.Handle("/api/v1/admin/appointments", admin(h.AdminListAppointments))
	mux.Handle("/api/v1/admin/appointments/complete", admin(h.AdminCompleteAppointment))
	mux.Handle("/api/v1/admin/stats", admin(h.AdminStats))
}
