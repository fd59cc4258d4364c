package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/trade-ledger/internal/application"
	"github.com/eugenenazirov/trade-ledger/internal/config"
	"github.com/eugenenazirov/trade-ledger/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("trade-ledger", "Trade ledger - records orders, costs and invoices and renders yearly reports as currency")
	overrides := registerFlags(kingpinApp)
	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	cfg, err := config.Load(overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// registerFlags declares the server flags on app and returns a function that
// converts the parsed values into configuration overrides. Flags left at their
// defaults do not override other sources.
func registerFlags(app *kingpin.Application) func() *config.CLIOverrides {
	configFile := app.Flag("config", "Path to YAML configuration file").String()
	port := app.Flag("port", "HTTP port exposed by the service").String()
	rateLimitRPS := app.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").Default("-1").Float64()
	rateLimitBurst := app.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	logLevel := app.Flag("log-level", "Log level: debug, info, warn or error").String()
	seedFile := app.Flag("seed-file", "YAML file with orders, costs and invoices to preload").String()
	var trustProxySet bool
	trustProxy := app.Flag("trust-proxy-headers", "Rate limit by X-Forwarded-For; enable only behind a proxy that sets it").
		Action(func(*kingpin.ParseContext) error {
			trustProxySet = true
			return nil
		}).Bool()

	return func() *config.CLIOverrides {
		overrides := &config.CLIOverrides{
			ConfigFile: *configFile,
		}
		if *port != "" {
			overrides.Port = port
		}
		if *rateLimitRPS >= 0 {
			overrides.RateLimitRPS = rateLimitRPS
		}
		if *rateLimitBurst >= 0 {
			overrides.RateLimitBurst = rateLimitBurst
		}
		if *logLevel != "" {
			overrides.LogLevel = logLevel
		}
		if *seedFile != "" {
			overrides.SeedFile = seedFile
		}
		if trustProxySet {
			overrides.TrustProxyHeaders = trustProxy
		}
		return overrides
	}
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Info("shutting down server", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
