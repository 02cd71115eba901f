// Package main provides the outbox relay service entry point.
// Publishes ledger events committed to the postgres outbox to Redpanda.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/config"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/postgres"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/redpanda"
	"github.com/drfirst/go-flowsheet/internal/logging"
	"github.com/drfirst/go-flowsheet/internal/observability/metrics"
	"github.com/drfirst/go-flowsheet/internal/observability/tracing"
	"github.com/drfirst/go-flowsheet/pkg/circuitbreaker"
)

const serviceName = "outbox-relay"

func main() {
	cfg, err := config.Load()
	if err != nil {
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

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.Environment = cfg.Env
	traceCfg.OTLPEndpoint = cfg.OTLPEndpoint
	traceCfg.SampleRate = cfg.TraceSampleRate
	tp, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	m := metrics.New(nil)

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	logger.Info("connected to database")

	// Make sure the event topics exist before publishing
	admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("admin client creation failed", zap.Error(err))
	}
	topicsCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := admin.EnsureTopics(topicsCtx); err != nil {
		logger.Warn("could not ensure topics; relying on broker auto-creation", zap.Error(err))
	} else if topics, err := admin.ListTopics(topicsCtx); err == nil {
		logger.Info("topics ready", zap.Strings("topics", topics))
	}
	cancel()
	admin.Close()

	producerCfg := redpanda.DefaultProducerConfig()
	producerCfg.Brokers = cfg.KafkaBrokers
	producer, err := redpanda.NewProducer(producerCfg, logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()

	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))

	cbCfg := circuitbreaker.DefaultConfig("kafka-publish")
	cbCfg.Timeout = 30 * time.Second
	cbCfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.SetCircuitBreakerState(name, string(to))
	}
	cb, err := circuitbreaker.New(cbCfg, logger)
	if err != nil {
		logger.Fatal("circuit breaker creation failed", zap.Error(err))
	}

	outbox := postgres.NewOutbox(pool, &producerAdapter{producer: producer, cb: cb},
		postgres.DefaultOutboxConfig(), m, logger)
	outbox.Start()
	logger.Info("outbox relay started")

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           probes(pool, producer, outbox, cb),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("probe server error", zap.Error(err))
		}
	}()

	// Wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	outbox.Stop()
	logger.Info("outbox relay stopped")
}

// probes serves health, outbox statistics and Prometheus metrics.
func probes(pool *pgxpool.Pool, producer *redpanda.Producer, outbox *postgres.Outbox, cb *circuitbreaker.CircuitBreaker) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": serviceName,
			"breaker": string(cb.GetState()),
		})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
		if err := producer.Ping(r.Context()); err != nil {
			http.Error(w, "broker not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := outbox.GetStats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"outbox":   stats,
			"producer": producer.Stats(),
		})
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

// producerAdapter adapts the Redpanda producer to OutboxPublisher, failing
// fast while the broker circuit is open.
type producerAdapter struct {
	producer *redpanda.Producer
	cb       *circuitbreaker.CircuitBreaker
}

func (a *producerAdapter) Publish(ctx context.Context, topic, key string, value []byte) error {
	_, err := a.cb.Execute(ctx, func() (interface{}, error) {
		return nil, a.producer.Publish(ctx, topic, key, value)
	})
	return err
}
