package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/booking"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/principal"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/storage"
)

// BookingService is the part of booking.Service the HTTP layer drives.
type BookingService interface {
	SubmitBooking(ctx context.Context, p model.Principal, req booking.BookingRequest) (booking.SubmitResult, error)
	StartPayment(ctx context.Context, p model.Principal) (payments.Session, error)
	CompletePayment(ctx context.Context, sessionID string) (booking.Settlement, error)
	SettleSession(ctx context.Context, sess payments.Session) (booking.Settlement, error)
	ListMyAppointments(ctx context.Context, p model.Principal, statuses []model.Status) ([]model.Appointment, error)
	CancelAppointment(ctx context.Context, p model.Principal, id string) (model.Appointment, error)
	MarkCompleted(ctx context.Context, p model.Principal, id string) (model.Appointment, error)
	ListAll(ctx context.Context, p model.Principal, limit int) ([]model.Appointment, error)
	Stats(ctx context.Context, p model.Principal) (model.Stats, error)
	FreeSlots(ctx context.Context, date string) ([]string, error)
}

// ProviderEvents dedups webhook deliveries.
type ProviderEvents interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Insert(ctx context.Context, tx pgx.Tx, evt storage.ProviderEvent) error
}

type Handler struct {
	svc                    BookingService
	events                 ProviderEvents
	logger                 *slog.Logger
	successRedirectURL     string
	errorRedirectURL       string
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
}

type Config struct {
	SuccessRedirectURL     string
	ErrorRedirectURL       string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
}

func New(svc BookingService, events ProviderEvents, logger *slog.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StripeWebhookTolerance <= 0 {
		cfg.StripeWebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		svc:                    svc,
		events:                 events,
		logger:                 logger,
		successRedirectURL:     cfg.SuccessRedirectURL,
		errorRedirectURL:       cfg.ErrorRedirectURL,
		stripeWebhookSecret:    cfg.StripeWebhookSecret,
		stripeWebhookTolerance: cfg.StripeWebhookTolerance,
	}
}

type submitBookingRequest struct {
	Date             string `json:"date"`
	TimeSlot         string `json:"time_slot"`
	Notes            string `json:"notes"`
	ConsultationType string `json:"consultation_type"`
}

type pendingResponse struct {
	Status           string `json:"status"`
	Date             string `json:"date"`
	TimeSlot         string `json:"time_slot"`
	ConsultationType string `json:"consultation_type"`
	Next             string `json:"next"`
}

type appointmentItem struct {
	ID               string `json:"id"`
	Date             string `json:"date"`
	TimeSlot         string `json:"time_slot"`
	ConsultationType string `json:"consultation_type"`
	Notes            string `json:"notes"`
	Status           string `json:"status"`
	PaymentStatus    string `json:"payment_status"`
	CallLink         string `json:"call_link,omitempty"`
	ContactEmail     string `json:"contact_email,omitempty"`
	CancelledAt      string `json:"cancelled_at,omitempty"`
	CreatedAt        string `json:"created_at"`
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:               a.ID,
		Date:             a.Date,
		TimeSlot:         a.TimeSlot,
		ConsultationType: a.ConsultationType,
		Notes:            a.Notes,
		Status:           string(a.Status),
		PaymentStatus:    string(a.PaymentStatus),
		CallLink:         a.CallLink,
		ContactEmail:     a.ContactEmail,
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		item.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toItems(appts []model.Appointment) []appointmentItem {
	out := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		out = append(out, toItem(a))
	}
	return out
}

// SubmitBooking stores the booking intent. With payments disabled the
// appointment is created directly and returned with 201.
func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := principal.FromContext(r.Context())

	var req submitBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	res, err := h.svc.SubmitBooking(r.Context(), p, booking.BookingRequest{
		Date:             req.Date,
		TimeSlot:         req.TimeSlot,
		Notes:            req.Notes,
		ConsultationType: req.ConsultationType,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if res.Appointment != nil {
		writeJSON(w, http.StatusCreated, toItem(*res.Appointment))
		return
	}
	writeJSON(w, http.StatusAccepted, pendingResponse{
		Status:           "pending",
		Date:             res.Pending.Date,
		TimeSlot:         res.Pending.TimeSlot,
		ConsultationType: res.Pending.ConsultationType,
		Next:             "/api/v1/payments/checkout",
	})
}

// ListAppointments returns the caller's appointments, optionally filtered by
// a comma separated status list.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := principal.FromContext(r.Context())

	var statuses []model.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, ok := model.ParseStatus(part)
			if !ok {
				http.Error(w, "invalid status", http.StatusBadRequest)
				return
			}
			statuses = append(statuses, st)
		}
	}

	appts, err := h.svc.ListMyAppointments(r.Context(), p, statuses)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItems(appts))
}

type appointmentIDRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func decodeAppointmentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req appointmentIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", false
	}
	id := strings.TrimSpace(req.AppointmentID)
	if id == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := principal.FromContext(r.Context())
	id, ok := decodeAppointmentID(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.CancelAppointment(r.Context(), p, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Slots lists the free slot labels for ?date=YYYY-MM-DD.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	slots, err := h.svc.FreeSlots(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, slots)
}
