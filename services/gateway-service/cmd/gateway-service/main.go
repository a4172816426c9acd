package main

import (
	"context"
	"net/http"
	"time"

	"github.com/clinicaflow/clinica/libs/config"
	"github.com/clinicaflow/clinica/libs/httpx"
	otelx "github.com/clinicaflow/clinica/libs/otel"
	"github.com/clinicaflow/clinica/libs/runtime"
	"github.com/clinicaflow/clinica/services/gateway-service/internal/proxy"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type serviceConfig struct {
	Port           string
	Upstreams      proxy.Upstreams
	BodyLimit      int
	RequestTimeout time.Duration
	CORS           httpx.CORSPolicy
}

func loadConfig() (serviceConfig, error) {
	var (
		cfg serviceConfig
		err error
	)
	if cfg.Port, err = config.Port("PORT", "8080"); err != nil {
		return cfg, err
	}
	cfg.Upstreams = proxy.Upstreams{
		Agenda:       config.String("AGENDA_URL", "http://agenda-service:8081"),
		Payment:      config.String("PAYMENT_URL", "http://payment-service:8082"),
		Notification: config.String("NOTIFICATION_URL", "http://notification-service:8084"),
	}
	if cfg.BodyLimit, err = config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	maxAge, err := config.Duration("CORS_MAX_AGE", 10*time.Minute)
	if err != nil {
		return cfg, err
	}
	cfg.CORS = httpx.CORSPolicy{
		AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
		AllowedMethods:   config.List("CORS_ALLOWED_METHODS"),
		AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS"),
		AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           maxAge,
	}
	return cfg, nil
}

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "gateway-service")
	logger := runtime.NewLogger(service)
	defer func() { _ = logger.Sync() }()

	if err := run(logger, service); err != nil {
		logger.Fatal("gateway-service stopped", zap.Error(err))
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

	limit, err := runtime.RateLimitFromEnv(logger, service)
	if err != nil {
		return err
	}
	defer func() { _ = limit.Close() }()
	var checks []runtime.ReadyCheck
	if limit.Ready != nil {
		checks = append(checks, *limit.Ready)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	if err := proxy.Register(mux, proxy.Routes(cfg.Upstreams), logger); err != nil {
		return err
	}

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(cfg.CORS),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(cfg.BodyLimit)),
		httpx.WithTimeout(cfg.RequestTimeout),
		limit.Middleware,
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(handler, "gateway"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.Serve(ctx, srv, logger)
}
