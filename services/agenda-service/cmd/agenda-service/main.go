package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/clinicaflow/clinica/libs/config"
	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/libs/inbox"
	"github.com/clinicaflow/clinica/libs/kafkax"
	otelx "github.com/clinicaflow/clinica/libs/otel"
	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/libs/runtime"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/agenda"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/events"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/handlers"
	"github.com/clinicaflow/clinica/services/agenda-service/internal/storage"
	"github.com/clinicaflow/clinica/services/agenda-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func parseReminderOffsets(raw string, logger *zap.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", zap.String("value", part))
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets
}

type serviceConfig struct {
	Port        string
	DatabaseURL string
	Brokers     []string
	GroupID     string
	Agenda      agenda.Config
}

func loadConfig(logger *zap.Logger) (serviceConfig, error) {
	var (
		cfg serviceConfig
		err error
	)
	if cfg.Port, err = config.Port("PORT", "8081"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	cfg.Brokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	cfg.GroupID = config.String("KAFKA_GROUP_ID", "agenda-service")

	if cfg.Agenda.Location, err = config.Location("CLINIC_TIMEZONE", "America/Sao_Paulo"); err != nil {
		return cfg, err
	}
	if cfg.Agenda.HorizonDays, err = config.Int("SLOT_HORIZON_DAYS", 30); err != nil {
		return cfg, err
	}
	cfg.Agenda.Reminders = events.ReminderPolicy{
		Offsets:      parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger),
		PhoneChannel: config.String("REMINDER_PHONE_CHANNEL", "whatsapp"),
	}
	cfg.Agenda.EnforceSchedule = config.Bool("ENFORCE_SCHEDULE", true)
	return cfg, nil
}

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "agenda-service")
	logger := runtime.NewLogger(service)
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Fatal("agenda-service stopped", zap.Error(err))
	}
}

func run(logger *zap.Logger, service string) error {
	cfg, err := loadConfig(logger)
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
	svc := agenda.NewService(repo, outboxRepo, logger, cfg.Agenda)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	if brokers := cfg.Brokers; len(brokers) > 0 {
		writer := kafkax.NewWriter(brokers)
		defer func() { _ = writer.Close() }()
		publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)

		inboxRepo := inbox.NewRepository(pool, logger)
		paymentConsumer := kafkax.NewConsumer(logger, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: cfg.GroupID,
			Topics:  []string{config.String("KAFKA_PAYMENT_TOPIC", events.PaymentConfirmed)},
		}, inboxRepo.Handle(svc.HandlePaymentConfirmed))
		go paymentConsumer.Run(ctx)

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
	handlers.New(svc, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS")}),
		limit.Middleware,
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "agenda")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("agenda configured",
		zap.String("timezone", cfg.Agenda.Location.String()),
		zap.Int("horizon_days", cfg.Agenda.HorizonDays),
	)
	return runtime.Serve(ctx, srv, logger)
}
