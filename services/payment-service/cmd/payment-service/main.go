package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/clinicaflow/clinica/libs/config"
	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/libs/kafkax"
	otelx "github.com/clinicaflow/clinica/libs/otel"
	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/libs/runtime"
	"github.com/clinicaflow/clinica/libs/signature"
	"github.com/clinicaflow/clinica/services/payment-service/internal/checkout"
	"github.com/clinicaflow/clinica/services/payment-service/internal/handlers"
	"github.com/clinicaflow/clinica/services/payment-service/internal/mercadopago"
	"github.com/clinicaflow/clinica/services/payment-service/internal/payments"
	"github.com/clinicaflow/clinica/services/payment-service/internal/reconcile"
	"github.com/clinicaflow/clinica/services/payment-service/internal/storage"
	"github.com/clinicaflow/clinica/services/payment-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type serviceConfig struct {
	Port        string
	DatabaseURL string
	PublicURL   string
	Currency    string

	StripeSecretKey        string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	StripeSuccessURL       string
	StripeCancelURL        string
	ReconcileInterval      time.Duration

	MPAccessToken      string
	MPWebhookSecret    string
	MPWebhookTolerance time.Duration
	MPSandbox          bool
}

func loadConfig() (serviceConfig, error) {
	var (
		cfg serviceConfig
		err error
	)
	if cfg.Port, err = config.Port("PORT", "8082"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	cfg.PublicURL = strings.TrimRight(config.String("PUBLIC_BASE_URL", "http://localhost:8082"), "/")
	cfg.Currency = strings.ToUpper(config.String("PAYMENT_CURRENCY", "BRL"))

	cfg.StripeSecretKey = config.String("STRIPE_SECRET_KEY", "")
	cfg.StripeWebhookSecret = config.String("STRIPE_WEBHOOK_SECRET", "")
	if cfg.StripeWebhookTolerance, err = config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute); err != nil {
		return cfg, err
	}
	cfg.StripeSuccessURL = config.String("CHECKOUT_SUCCESS_URL", "http://localhost:3000/pagamento/sucesso")
	cfg.StripeCancelURL = config.String("CHECKOUT_CANCEL_URL", "http://localhost:3000/pagamento/cancelado")
	if cfg.ReconcileInterval, err = config.Duration("STRIPE_RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return cfg, err
	}

	cfg.MPAccessToken = config.String("MERCADOPAGO_ACCESS_TOKEN", "")
	cfg.MPWebhookSecret = config.String("MERCADOPAGO_WEBHOOK_SECRET", "")
	if cfg.MPWebhookTolerance, err = config.Duration("MERCADOPAGO_WEBHOOK_TOLERANCE", 0); err != nil {
		return cfg, err
	}
	cfg.MPSandbox = config.Bool("MERCADOPAGO_SANDBOX", false)
	return cfg, nil
}

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "payment-service")
	logger := runtime.NewLogger(service)
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Fatal("payment-service stopped", zap.Error(err))
	}
}

func run(logger *zap.Logger, service string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if config.Bool("DB_MIGRATE", false) {
		if err := db.Migrate(ctx, pool, migrations.FS, ".", logger); err != nil {
			return err
		}
	}

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository()
	mpClient := mercadopago.NewClient(cfg.MPAccessToken)

	providers := map[string]checkout.Provider{}
	var stripeCheckout *checkout.Stripe
	if cfg.StripeSecretKey != "" {
		stripeCheckout = checkout.NewStripe(checkout.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			SuccessURL: cfg.StripeSuccessURL,
			CancelURL:  cfg.StripeCancelURL,
		})
		providers[storage.ProviderStripe] = stripeCheckout
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; stripe checkouts are stubbed")
		providers[storage.ProviderStripe] = checkout.Stub{BaseURL: cfg.PublicURL, Provider: storage.ProviderStripe}
	}
	if mpClient.Enabled() {
		providers[storage.ProviderMercadoPago] = checkout.NewMercadoPago(mpClient, checkout.MercadoPagoConfig{
			NotificationURL: cfg.PublicURL + "/api/payments/webhooks/mercadopago",
			SuccessURL:      cfg.StripeSuccessURL,
			FailureURL:      cfg.StripeCancelURL,
			Sandbox:         cfg.MPSandbox,
		})
	} else {
		logger.Warn("MERCADOPAGO_ACCESS_TOKEN not set; mercadopago checkouts are stubbed")
		providers[storage.ProviderMercadoPago] = checkout.Stub{BaseURL: cfg.PublicURL, Provider: storage.ProviderMercadoPago}
	}

	svc := payments.NewService(repo, outboxRepo, providers, mpClient, logger, payments.Config{Currency: cfg.Currency})

	if stripeCheckout != nil {
		reconciler := reconcile.NewStripeReconciler(pool, repo, stripeCheckout, svc, logger, reconcile.Config{
			Interval: cfg.ReconcileInterval,
		})
		go reconciler.Run(ctx)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay queued in the database")
	}

	limit, err := runtime.RateLimitFromEnv(logger, service)
	if err != nil {
		return err
	}
	defer func() { _ = limit.Close() }()
	if limit.Ready != nil {
		checks = append(checks, *limit.Ready)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(svc, logger, handlers.Config{
		MercadoPago: signature.Verifier{
			Secret:    cfg.MPWebhookSecret,
			Tolerance: cfg.MPWebhookTolerance,
		},
		StripeWebhookSecret:    cfg.StripeWebhookSecret,
		StripeWebhookTolerance: cfg.StripeWebhookTolerance,
	}).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS")}),
		limit.Middleware,
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "payment")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.Serve(ctx, srv, logger)
}
