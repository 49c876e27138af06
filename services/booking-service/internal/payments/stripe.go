package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments")

type StripeConfig struct {
	SecretKey string
	// BaseURL is the public origin used to build the success and cancel URLs.
	BaseURL string
	// APIURL overrides the Stripe API origin. Empty means api.stripe.com.
	APIURL  string
	Timeout time.Duration
}

type StripeGateway struct {
	sessions   checkoutsession.Client
	successURL string
	cancelURL  string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		// Retries are the caller's decision; a retried create could double the session.
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &StripeGateway{
		sessions: checkoutsession.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		successURL: base + "/api/v1/payments/complete?session_id={CHECKOUT_SESSION_ID}",
		cancelURL:  base + "/home",
	}, nil
}

func (g *StripeGateway) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	ctx, span := tracer.Start(ctx, "stripe.checkout.create")
	defer span.End()

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(g.successURL),
		CancelURL:     stripe.String(g.cancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := g.sessions.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return Session{}, fmt.Errorf("stripe checkout create: %w", err)
	}
	span.SetAttributes(attribute.String("stripe.session_id", sess.ID))
	return fromStripe(sess), nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, id string) (Session, error) {
	ctx, span := tracer.Start(ctx, "stripe.checkout.retrieve",
		trace.WithAttributes(attribute.String("stripe.session_id", id)))
	defer span.End()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.sessions.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return Session{}, ErrSessionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve failed")
		return Session{}, fmt.Errorf("stripe checkout retrieve: %w", err)
	}
	return fromStripe(sess), nil
}

func fromStripe(sess *stripe.CheckoutSession) Session {
	return Session{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: PaymentStatus(sess.PaymentStatus),
		Metadata:      sess.Metadata,
		CustomerEmail: sess.CustomerEmail,
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
	}
}

// SessionFromEvent converts a checkout session embedded in a webhook payload.
func SessionFromEvent(sess *stripe.CheckoutSession) Session {
	return fromStripe(sess)
}

var _ Gateway = (*StripeGateway)(nil)
