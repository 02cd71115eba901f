// Package ledgerstore opens the configured ledger store behind a circuit
// breaker.
package ledgerstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/config"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/postgres"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/sqlite"
	"github.com/drfirst/go-flowsheet/internal/observability/metrics"
	"github.com/drfirst/go-flowsheet/pkg/circuitbreaker"
)

// BreakerName labels the store circuit breaker in logs and metrics.
const BreakerName = "ledger-store"

// Handle is an opened store.
type Handle struct {
	// Store is the guarded store.
	Store ledger.Store
	// Driver is the configured STORE_DRIVER.
	Driver string

	ping  func(context.Context) error
	close func() error
}

// Ping reports whether the backing database is reachable.
func (h *Handle) Ping(ctx context.Context) error {
	if h.ping == nil {
		return nil
	}
	return h.ping(ctx)
}

// Close releases the backing database.
func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// Open connects the store selected by cfg.StoreDriver and wraps it in a
// circuit breaker whose state is exported through m.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Handle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Handle{Driver: cfg.StoreDriver}
	var raw ledger.Store

	switch cfg.StoreDriver {
	case config.DriverMemory:
		raw = ledger.NewMemoryStore()
		logger.Warn("using in-memory ledger store; records are lost on exit")

	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		raw, h.ping, h.close = s, s.Ping, s.Close

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to database")
		s := postgres.NewStore(pool, logger)
		raw, h.ping = s, s.Ping
		h.close = func() error { pool.Close(); return nil }

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	cbCfg := circuitbreaker.DefaultConfig(BreakerName)
	cbCfg.OnStateChange = func(name string, to circuitbreaker.State) {
		m.SetCircuitBreakerState(name, string(to))
	}
	cb, err := circuitbreaker.New(cbCfg, logger)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("store circuit breaker: %w", err)
	}
	m.SetCircuitBreakerState(BreakerName, string(circuitbreaker.StateClosed))

	h.Store = ledger.NewGuarded(raw, cb)
	return h, nil
}
