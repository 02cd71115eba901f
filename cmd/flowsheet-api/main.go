// Package main provides the flowsheet API service entry point.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/api"
	"github.com/drfirst/go-flowsheet/internal/app"
	"github.com/drfirst/go-flowsheet/internal/config"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/domain/workflow"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/ledgerstore"
	"github.com/drfirst/go-flowsheet/internal/logging"
	"github.com/drfirst/go-flowsheet/internal/observability/metrics"
	"github.com/drfirst/go-flowsheet/internal/observability/tracing"
)

const serviceName = "flowsheet-api"

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet.
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Development = cfg.IsDev()
	logCfg.File = cfg.LogFile
	logger, logCloser, err := logging.New(logCfg)
	if err != nil {
		zap.NewExample().Fatal("logger setup failed", zap.Error(err))
	}
	defer logCloser.Close()
	defer logger.Sync()

	ctx := context.Background()

	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.ServiceVersion = version
	traceCfg.Environment = cfg.Env
	traceCfg.OTLPEndpoint = cfg.OTLPEndpoint
	traceCfg.SampleRate = cfg.TraceSampleRate
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	m := metrics.New(nil)

	store, err := ledgerstore.Open(ctx, cfg, m, logger)
	if err != nil {
		logger.Fatal("failed to open ledger store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer store.Close()

	def, err := workflow.LoadDefinition(cfg.WorkflowStepsFile)
	if err != nil {
		logger.Fatal("failed to load workflow definition", zap.Error(err))
	}

	session, err := app.NewSession(ctx, ledger.New(store.Store, logger), def, cfg.Session(), m, logger)
	if err != nil {
		logger.Fatal("failed to restore session", zap.Error(err))
	}

	router := api.NewRouter(session, logger, api.Options{
		ServiceName: serviceName,
		Version:     version,
		Ready:       store.Ping,
		Metrics:     api.MetricsHandler(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting flowsheet API",
		zap.String("port", cfg.Port),
		zap.String("store", store.Driver),
		zap.String("version", version),
		zap.Bool("trace_export", tp.Exporting()))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("server stopped")
}
