package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dogxsale/config"
	"dogxsale/crypto"
	"dogxsale/native/presale"
	"dogxsale/observability/logging"
	telemetry "dogxsale/observability/otel"
	"dogxsale/rpc"
	"dogxsale/state"
	"dogxsale/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DGX_ENV"))
	logger := logging.Setup("dogxsaled", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		logger.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Environment != "" {
		env = cfg.Environment
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "dogxsaled",
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

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err), slog.String("path", cfg.DataDir))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	ledger := presale.NewLedger(manager)

	engine := presale.NewEngine()
	engine.SetState(ledger)

	server := rpc.NewServer(engine, ledger, logger)
	engine.SetEmitter(server)

	if cfg.Sale.AutoCreate {
		if err := autoCreateSale(engine, cfg.Sale, logger); err != nil {
			logger.Error("failed to create configured sale", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc server listening", slog.String("address", cfg.RPCAddress))
		errCh <- server.Start(cfg.RPCAddress)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// autoCreateSale registers the sale described in the configuration. A sale
// that already exists from a previous run is not an error.
func autoCreateSale(engine *presale.Engine, sale config.Sale, logger *slog.Logger) error {
	addr, err := crypto.DecodeAddress(sale.Admin)
	if err != nil {
		return fmt.Errorf("decode sale admin: %w", err)
	}
	var admin [20]byte
	copy(admin[:], addr.Bytes())

	params := presale.SaleParams{
		Seed:          sale.Seed,
		SoftCapAmount: sale.SoftCapAmount,
		HardCapAmount: sale.HardCapAmount,
		PriceScale:    sale.PriceScale,
		StartTime:     sale.StartTime,
		EndTime:       sale.EndTime,
	}
	for i, level := range sale.Levels {
		params.Levels[i] = presale.Level{
			Capacity:  level.Capacity,
			UnitPrice: level.UnitPrice,
			SoftCap:   level.SoftCap,
		}
	}
	last := sale.Levels[len(sale.Levels)-1].UnitPrice
	for i := len(sale.Levels); i < presale.LevelCount; i++ {
		params.Levels[i] = presale.Level{UnitPrice: last}
	}

	created, err := engine.Create(admin, params)
	if err != nil {
		if errors.Is(err, presale.ErrAlreadyExists) {
			logger.Info("configured sale already exists", slog.String("admin", sale.Admin))
			return nil
		}
		return err
	}
	logger.Info("configured sale created",
		slog.String("sale", fmt.Sprintf("%x", created.ID)),
		slog.Uint64("hardCap", created.HardCapAmount))
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", slog.Any("error", err))
	}
}
