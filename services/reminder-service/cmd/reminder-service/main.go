package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clinicaflow/clinica/libs/config"
	"github.com/clinicaflow/clinica/libs/db"
	"github.com/clinicaflow/clinica/libs/httpx"
	"github.com/clinicaflow/clinica/libs/inbox"
	"github.com/clinicaflow/clinica/libs/kafkax"
	otelx "github.com/clinicaflow/clinica/libs/otel"
	"github.com/clinicaflow/clinica/libs/outbox"
	"github.com/clinicaflow/clinica/libs/runtime"
	"github.com/clinicaflow/clinica/services/reminder-service/internal/jobs"
	"github.com/clinicaflow/clinica/services/reminder-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type serviceConfig struct {
	Port         string
	DatabaseURL  string
	Brokers      []string
	GroupID      string
	PollInterval time.Duration
	BatchSize    int
	Backoff      time.Duration
	MaxBackoff   time.Duration
}

func loadConfig() (serviceConfig, error) {
	var (
		cfg serviceConfig
		err error
	)
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	cfg.Brokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(cfg.Brokers) == 0 {
		return cfg, errors.New("KAFKA_BROKERS is required")
	}
	cfg.GroupID = config.String("KAFKA_GROUP_ID", "reminder-service")
	if cfg.PollInterval, err = config.Duration("REMINDER_POLL_INTERVAL", 2*time.Second); err != nil {
		return cfg, err
	}
	if cfg.BatchSize, err = config.Int("REMINDER_BATCH_SIZE", 50); err != nil {
		return cfg, err
	}
	if cfg.Backoff, err = config.Duration("REMINDER_RETRY_BACKOFF", time.Minute); err != nil {
		return cfg, err
	}
	if cfg.MaxBackoff, err = config.Duration("REMINDER_RETRY_MAX_BACKOFF", 30*time.Minute); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "reminder-service")
	logger := runtime.NewLogger(service)
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Fatal("reminder-service stopped", zap.Error(err))
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

	repo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository()
	inboxRepo := inbox.NewRepository(pool, logger)

	consumer := kafkax.NewConsumer(logger, kafkax.ConsumerConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topics:  []string{jobs.TopicReminderRequested, jobs.TopicAppointmentCanceled},
	}, inboxRepo.Handle(jobs.NewHandlers(repo, logger).Route()))
	go consumer.Run(ctx)

	worker := jobs.NewWorker(pool, repo, outboxRepo, logger, jobs.WorkerConfig{
		Interval:   cfg.PollInterval,
		BatchSize:  cfg.BatchSize,
		Backoff:    cfg.Backoff,
		MaxBackoff: cfg.MaxBackoff,
	})
	go worker.Run(ctx)

	writer := kafkax.NewWriter(cfg.Brokers)
	defer func() { _ = writer.Close() }()
	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Brokers)},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpHandler, "reminder"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.Serve(ctx, srv, logger)
}
