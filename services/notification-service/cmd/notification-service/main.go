package main

import (
	"context"
	"errors"
	"net/http"
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
	"github.com/clinicaflow/clinica/services/notification-service/internal/delivery"
	"github.com/clinicaflow/clinica/services/notification-service/internal/email"
	"github.com/clinicaflow/clinica/services/notification-service/internal/handlers"
	"github.com/clinicaflow/clinica/services/notification-service/internal/sms"
	"github.com/clinicaflow/clinica/services/notification-service/internal/storage"
	"github.com/clinicaflow/clinica/services/notification-service/internal/whatsapp"
	"github.com/clinicaflow/clinica/services/notification-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type serviceConfig struct {
	Port        string
	DatabaseURL string
	Brokers     []string
	GroupID     string
	Topic       string
	Location    *time.Location
	FailSuffix  string

	SMTP email.SMTPConfig

	SMSProvider     string
	SMSWebhookURL   string
	SMSWebhookToken string

	Twilio whatsapp.Config
}

func loadConfig() (serviceConfig, error) {
	var (
		cfg serviceConfig
		err error
	)
	if cfg.Port, err = config.Port("PORT", "8084"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	cfg.Brokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(cfg.Brokers) == 0 {
		return cfg, errors.New("KAFKA_BROKERS is required")
	}
	cfg.GroupID = config.String("KAFKA_GROUP_ID", "notification-service")
	cfg.Topic = config.String("KAFKA_CONSUME_TOPIC", delivery.TopicReminderDue)
	if cfg.Location, err = config.Location("CLINIC_TIMEZONE", "America/Sao_Paulo"); err != nil {
		return cfg, err
	}
	cfg.FailSuffix = config.String("NOTIFICATION_FAIL_SUFFIX", "")

	cfg.SMTP = email.SMTPConfig{
		Host:     config.String("SMTP_HOST", ""),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "no-reply@clinica.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
	}

	cfg.SMSProvider = strings.ToLower(config.String("SMS_PROVIDER", "noop"))
	cfg.SMSWebhookURL = config.String("SMS_WEBHOOK_URL", "")
	cfg.SMSWebhookToken = config.String("SMS_WEBHOOK_TOKEN", "")

	cfg.Twilio = whatsapp.Config{
		AccountSid: config.String("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  config.String("TWILIO_AUTH_TOKEN", ""),
		From:       config.String("TWILIO_WHATSAPP_FROM", ""),
		BaseURL:    config.String("TWILIO_BASE_URL", whatsapp.DefaultBaseURL),
	}
	return cfg, nil
}

func buildSenders(cfg serviceConfig, logger *zap.Logger) delivery.Senders {
	var s delivery.Senders
	if cfg.SMTP.Host != "" {
		s.Email = email.NewSMTPSender(cfg.SMTP)
	} else {
		logger.Warn("SMTP_HOST not set; email reminders are discarded")
		s.Email = delivery.NoopEmail{}
	}

	gateway := sms.GatewayConfig{URL: cfg.SMSWebhookURL, Token: cfg.SMSWebhookToken}
	switch cfg.SMSProvider {
	case "webhook":
		s.SMS = sms.NewGateway(gateway)
	case "noop":
		s.SMS = delivery.NoopText{ID: "sms-noop"}
	default:
		logger.Warn("unknown SMS_PROVIDER; using webhook", zap.String("provider", cfg.SMSProvider))
		s.SMS = sms.NewGateway(gateway)
	}

	if wa := whatsapp.NewClient(cfg.Twilio); wa.Configured() {
		s.WhatsApp = wa
	} else {
		logger.Warn("twilio credentials not set; whatsapp reminders are discarded")
		s.WhatsApp = delivery.NoopText{ID: "whatsapp-noop"}
	}
	return s
}

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service)
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Fatal("notification-service stopped", zap.Error(err))
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

	outboxRepo := outbox.NewRepository()
	deliveries := storage.NewDeliveries(pool)
	svc := delivery.NewService(buildSenders(cfg, logger), deliveries, outboxRepo, logger, delivery.Config{
		Location:   cfg.Location,
		FailSuffix: cfg.FailSuffix,
	})

	inboxRepo := inbox.NewRepository(pool, logger)
	consumer := kafkax.NewConsumer(logger, kafkax.ConsumerConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topics:  []string{cfg.Topic},
	}, inboxRepo.Handle(svc.HandleReminderDue))
	go consumer.Run(ctx)

	writer := kafkax.NewWriter(cfg.Brokers)
	defer func() { _ = writer.Close() }()
	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Brokers)},
	)
	handlers.New(deliveries, logger).Register(mux)
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(httpHandler, "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.Serve(ctx, srv, logger)
}
