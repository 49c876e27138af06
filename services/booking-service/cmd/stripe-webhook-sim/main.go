// Command stripe-webhook-sim posts a signed checkout event to a running
// booking service, standing in for Stripe during local development.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/brilliant-consulting/consultbook/libs/config"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/model"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments"
)

func main() {
	var (
		baseURL       = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking service base url")
		evtType       = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		sessionID     = flag.String("session-id", config.String("SESSION_ID", ""), "checkout session id (random when empty)")
		paymentStatus = flag.String("payment-status", config.String("PAYMENT_STATUS", "paid"), "paid, unpaid or no_payment_required")
		principalID   = flag.String("principal-id", config.String("PRINCIPAL_ID", ""), "principal_id metadata")
		email         = flag.String("email", config.String("CONTACT_EMAIL", ""), "contact_email metadata")
		date          = flag.String("date", config.String("BOOKING_DATE", ""), "booking date, YYYY-MM-DD")
		slot          = flag.String("slot", config.String("TIME_SLOT", "10:00-10:30"), "time slot label")
		consultType   = flag.String("consultation-type", config.String("CONSULTATION_TYPE", model.DefaultConsultationType), "consultation type")
		secret        = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*principalID) == "" || strings.TrimSpace(*email) == "" {
		fatal("PRINCIPAL_ID and CONTACT_EMAIL are required")
	}
	if _, err := time.Parse(model.DateLayout, *date); err != nil {
		fatal("BOOKING_DATE must be YYYY-MM-DD")
	}
	if *sessionID == "" {
		*sessionID = "cs_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	now := time.Now().UTC()
	eventID := fmt.Sprintf("evt_test_%d", now.UnixNano())
	payload, err := buildEventJSON(eventID, *evtType, now, *sessionID, *paymentStatus, model.PendingBooking{
		PrincipalID:      *principalID,
		Date:             *date,
		TimeSlot:         *slot,
		ConsultationType: *consultType,
		ContactEmail:     *email,
	})
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/payments/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("session_id=%s status=%d body=%s\n", *sessionID, resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, sessionID, paymentStatus string, intent model.PendingBooking) ([]byte, error) {
	switch eventType {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":             sessionID,
				"object":         "checkout.session",
				"payment_status": paymentStatus,
				"customer_email": intent.ContactEmail,
				"metadata":       payments.EncodeIntent(intent),
			},
		},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
