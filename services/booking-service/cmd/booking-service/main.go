package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brilliant-consulting/consultbook/libs/auth"
	"github.com/brilliant-consulting/consultbook/libs/config"
	"github.com/brilliant-consulting/consultbook/libs/db"
	"github.com/brilliant-consulting/consultbook/libs/httpx"
	"github.com/brilliant-consulting/consultbook/libs/kafkax"
	otelx "github.com/brilliant-consulting/consultbook/libs/otel"
	"github.com/brilliant-consulting/consultbook/libs/runtime"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/booking"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/handlers"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/metrics"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/notify"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/outbox"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/payments"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/pending"
	"github.com/brilliant-consulting/consultbook/services/booking-service/internal/storage"
	"github.com/brilliant-consulting/consultbook/services/booking-service/migrations"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL, migrations.FS); err != nil {
			logger.Error("db migration failed", "err", err)
			os.Exit(1)
		}
		logger.Info("db migrations applied")
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	outboxRepo := outbox.NewRepository(pool)
	ledger := storage.NewAppointmentRepository(pool, outboxRepo)
	providerEvents := storage.NewProviderEventRepository(pool)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if len(cfg.KafkaBrokers) > 0 {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	var (
		pendingStore pending.Store
		rateLimit    httpx.Middleware
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		pendingStore = pending.NewRedisStore(rdb, cfg.PendingTTL)
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, service, httpx.ClientIP).Middleware(logger, true)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		logger.Warn("REDIS_ADDR not set; pending bookings and rate limits are kept in process memory")
		pendingStore = pending.NewMemoryStore(cfg.PendingTTL)
		rateLimit = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, httpx.ClientIP).Middleware()
	}

	gateway, err := newGateway(cfg)
	if err != nil {
		logger.Error("payment gateway init failed", "err", err)
		os.Exit(1)
	}
	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		logger.Error("email sender init failed", "err", err)
		os.Exit(1)
	}
	fanout := notify.NewFanout(sender, cfg.OperatorEmail, logger, bookingMetrics)

	svc := booking.NewService(booking.Deps{
		Ledger:   ledger,
		Pending:  pendingStore,
		Gateway:  gateway,
		Notifier: fanout,
		Events:   outboxRepo,
		Metrics:  bookingMetrics,
		Logger:   logger,
	}, cfg.Booking)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	var keys auth.KeySource
	if cfg.JWKSURL != "" {
		keys = auth.NewJWKSClient(cfg.JWKSURL, 10*time.Minute)
	}
	verifier := auth.NewVerifier(cfg.JWTSecret, keys)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	handlers.New(svc, providerEvents, logger, cfg.HTTP).Register(mux, verifier)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "payments_enabled", svc.PaymentsEnabled(), "payment_provider", cfg.PaymentProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func newGateway(cfg appConfig) (payments.Gateway, error) {
	if cfg.PaymentProvider == "fake" {
		g := payments.NewFakeGateway(cfg.Stripe.BaseURL)
		g.AutoPay = true
		return g, nil
	}
	if !cfg.Booking.PaymentsEnabled {
		return payments.NewFakeGateway(cfg.Stripe.BaseURL), nil
	}
	return payments.NewStripeGateway(cfg.Stripe)
}

func newSender(ctx context.Context, cfg appConfig, logger *slog.Logger) (notify.Sender, error) {
	switch cfg.EmailProvider {
	case "smtp":
		return notify.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom), nil
	case "sendgrid":
		if s := notify.NewSendGridSender(cfg.SendGrid); s != nil {
			return s, nil
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid without SENDGRID_API_KEY; logging emails instead")
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.SES), nil
	}
	return notify.NewLogSender(logger), nil
}
