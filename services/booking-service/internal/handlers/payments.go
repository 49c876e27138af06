package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/booking"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/principal"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/storage"
)

type checkoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

func (h *Handler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, _ := principal.FromContext(r.Context())

	sess, err := h.svc.StartPayment(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{SessionID: sess.ID, URL: sess.URL})
}

// CompletePayment is the browser return from checkout. It is not behind
// bearer auth: the session id is the credential and the principal comes from
// the session metadata.
func (h *Handler) CompletePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))

	res, err := h.svc.CompletePayment(r.Context(), sessionID)
	if err != nil {
		code := redirectCode(err)
		if code == "settlement_failed" {
			h.logger.Error("payment completion failed", "session_id", sessionID, "err", err)
		}
		http.Redirect(w, r, withQuery(h.errorRedirectURL, "code", code), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, withQuery(h.successRedirectURL, "appointment_id", res.Appointment.ID), http.StatusSeeOther)
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// StripeWebhook settles paid checkout sessions for clients that never came
// back through CompletePayment. The signature is the auth.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	h.logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	ctx := r.Context()
	tx, err := h.events.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.events.Insert(ctx, tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
			_ = tx.Commit(ctx)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		res, err := h.svc.SettleSession(ctx, payments.SessionFromEvent(&cs))
		switch {
		case err == nil:
			h.logger.Info("checkout session settled by webhook", "session_id", cs.ID, "appointment_id", res.Appointment.ID, "duplicate", res.Duplicate)
		case errors.Is(err, booking.ErrPaymentIncomplete):
			h.logger.Info("checkout session not yet paid", "session_id", cs.ID)
		case errors.Is(err, booking.ErrSlotConflict), errors.Is(err, booking.ErrInvalidMetadata), errors.Is(err, booking.ErrInvalidSession):
			// Recorded by the reconciler; a retry would not change the outcome.
			h.logger.Warn("checkout session not settled", "session_id", cs.ID, "err", err)
		default:
			http.Error(w, "failed to settle checkout session", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
