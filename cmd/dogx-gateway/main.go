package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dogxsale/config"
	"dogxsale/gateway/middleware"
	"dogxsale/gateway/routes"
	"dogxsale/observability/logging"
	telemetry "dogxsale/observability/otel"
)

const (
	jwtSecretEnv = "DGX_GATEWAY_JWT_SECRET"
	nodeTokenEnv = "DGX_RPC_TOKEN"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	nodeURL := flag.String("node-url", "http://127.0.0.1:8080", "JSON-RPC endpoint of the sale daemon")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DGX_ENV"))
	logger := logging.Setup("dogx-gateway", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Environment != "" {
		env = cfg.Environment
	}
	listen := cfg.GatewayAddress
	if strings.TrimSpace(listen) == "" {
		listen = ":8081"
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "dogx-gateway",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	target, err := url.Parse(*nodeURL)
	if err != nil {
		logger.Error("invalid node url", slog.Any("error", err))
		os.Exit(1)
	}

	jwtSecret := strings.TrimSpace(os.Getenv(jwtSecretEnv))
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    jwtSecret != "",
		HMACSecret: jwtSecret,
	}, logger)
	if jwtSecret == "" {
		logger.Warn("gateway auth disabled: " + jwtSecretEnv + " not set")
	}

	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		"sales": {RequestsPerMinute: 600, Burst: 30},
	})

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		Enabled:     true,
		LogRequests: env != "production",
	}, logger)

	handler, err := routes.New(routes.Config{
		SaleTarget:    target,
		NodeAuthToken: strings.TrimSpace(os.Getenv(nodeTokenEnv)),
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
	})
	if err != nil {
		logger.Error("failed to build router", slog.Any("error", err))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", slog.String("address", listen), slog.String("node", target.String()))
		errCh <- server.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
