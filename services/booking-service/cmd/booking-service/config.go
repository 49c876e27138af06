package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brilliant-consulting/consultbook/libs/config"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/availability"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/booking"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/handlers"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/notify"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments"
)

type appConfig struct {
	Port           string
	DatabaseURL    string
	MigrateOnStart bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KafkaBrokers  []string

	JWTSecret string
	JWKSURL   string

	PaymentProvider string
	Stripe          payments.StripeConfig
	Booking         booking.Config
	HTTP            handlers.Config

	OperatorEmail string
	EmailProvider string
	SMTPHost      string
	SMTPPort      string
	SMTPFrom      string
	SendGrid      notify.SendGridConfig
	SES           notify.SESConfig
	AWSRegion     string

	PendingTTL         time.Duration
	RateLimitPerMinute int
}

func loadConfig() (appConfig, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := appConfig{
		RedisAddr:       config.String("REDIS_ADDR", ""),
		RedisPassword:   config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:    config.List("KAFKA_BROKERS", ""),
		MigrateOnStart:  config.Bool("MIGRATE_ON_START", false),
		JWTSecret:       config.String("JWT_SECRET", ""),
		JWKSURL:         config.String("JWKS_URL", ""),
		PaymentProvider: strings.ToLower(config.String("PAYMENT_PROVIDER", "stripe")),
		OperatorEmail:   config.String("OPERATOR_EMAIL", ""),
		EmailProvider:   strings.ToLower(config.String("EMAIL_PROVIDER", "log")),
		SMTPHost:        config.String("SMTP_HOST", "localhost"),
		SMTPPort:        config.String("SMTP_PORT", "1025"),
		SMTPFrom:        config.String("SMTP_FROM", ""),
		AWSRegion:       config.String("AWS_REGION", "us-east-1"),
	}

	var err error
	cfg.Port, err = config.Port("PORT", "8083")
	collect(err)
	cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	collect(err)
	cfg.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)
	cfg.PendingTTL, err = config.Duration("PENDING_BOOKING_TTL", 30*time.Minute)
	collect(err)
	cfg.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)

	baseURL := strings.TrimRight(config.String("BASE_URL", "http://localhost:8083"), "/")
	gatewayTimeout, err := config.Duration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second)
	collect(err)
	price, err := config.Int("CONSULTATION_PRICE_CENTS", 5000)
	collect(err)
	schedule, err := loadSchedule()
	collect(err)

	cfg.Stripe = payments.StripeConfig{
		SecretKey: config.String("STRIPE_SECRET_KEY", ""),
		BaseURL:   baseURL,
		APIURL:    config.String("STRIPE_API_URL", ""),
		Timeout:   gatewayTimeout,
	}
	cfg.Booking = booking.Config{
		PaymentsEnabled: config.Bool("PAYMENTS_ENABLED", true),
		PriceCents:      int64(price),
		Currency:        strings.ToLower(config.String("CONSULTATION_CURRENCY", "usd")),
		CallLinkBase:    config.String("CALL_LINK_BASE", "https://meet.jit.si/consultbook"),
		GatewayTimeout:  gatewayTimeout,
		Schedule:        schedule,
	}
	cfg.HTTP = handlers.Config{
		SuccessRedirectURL:  config.String("SUCCESS_REDIRECT_URL", baseURL+"/appointments"),
		ErrorRedirectURL:    config.String("ERROR_REDIRECT_URL", baseURL+"/home"),
		StripeWebhookSecret: config.String("STRIPE_WEBHOOK_SECRET", ""),
	}
	cfg.HTTP.StripeWebhookTolerance, err = config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute)
	collect(err)
	cfg.SendGrid = notify.SendGridConfig{
		APIKey:    config.String("SENDGRID_API_KEY", ""),
		FromEmail: config.String("SENDGRID_FROM_EMAIL", cfg.SMTPFrom),
		FromName:  config.String("SENDGRID_FROM_NAME", ""),
	}

	cfg.SES = notify.SESConfig{
		FromEmail: config.String("SES_FROM_EMAIL", cfg.SMTPFrom),
		FromName:  cfg.SendGrid.FromName,
	}

	switch cfg.PaymentProvider {
	case "stripe":
		if cfg.Booking.PaymentsEnabled && cfg.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe"))
		}
	case "fake":
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider))
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		errs = append(errs, errors.New("one of JWT_SECRET or JWKS_URL is required"))
	}
	return cfg, errors.Join(errs...)
}

func loadSchedule() (availability.Schedule, error) {
	s := availability.DefaultSchedule()
	s.DayStart = config.String("SLOT_DAY_START", s.DayStart)
	s.DayEnd = config.String("SLOT_DAY_END", s.DayEnd)
	mins, err := config.Int("SLOT_DURATION_MINUTES", int(s.Duration/time.Minute))
	if err != nil {
		return s, err
	}
	s.Duration = time.Duration(mins) * time.Minute
	if tz := config.String("SLOT_TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return s, fmt.Errorf("SLOT_TIMEZONE: %w", err)
		}
		s.Location = loc
	}
	return s, s.Validate()
}
