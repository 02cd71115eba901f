// Package postgres provides the PostgreSQL ledger store and the
// transactional outbox that feeds ledger events to Redpanda.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/redpanda"
)

//go:embed schema.sql
var schema string

const columns = `id, event_id, kind, data, idempotency_key, correlation_id, submitted_at`

// Store is a ledger.Store on PostgreSQL. Every new entry is written together
// with its outbox row in one transaction.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewStore creates a store over pool.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, logger: logger, tracer: otel.Tracer("postgres-ledger")}
}

// Migrate creates the ledger and outbox tables when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Append implements ledger.Store.
func (s *Store) Append(ctx context.Context, e *ledger.Entry) (*ledger.Entry, bool, error) {
	ctx, span := s.tracer.Start(ctx, "postgres_ledger_append",
		trace.WithAttributes(attribute.String("kind", string(e.Kind))))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var key *string
	if e.IdempotencyKey != "" {
		key = &e.IdempotencyKey
	}

	stored := e.Clone()
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger (event_id, kind, data, idempotency_key, correlation_id, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		e.EventID, string(e.Kind), []byte(e.Data), key, e.CorrelationID, e.SubmittedAt,
	).Scan(&stored.ID)

	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanEntry(tx.QueryRow(ctx,
			`SELECT `+columns+` FROM ledger WHERE idempotency_key = $1`, e.IdempotencyKey))
		if err != nil {
			return nil, false, fmt.Errorf("load entry for idempotency key %q: %w", e.IdempotencyKey, err)
		}
		span.SetAttributes(attribute.Bool("duplicate", true))
		return existing, true, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("insert %s entry: %w", e.Kind, err)
	}

	out, err := NewLedgerEvent(stored)
	if err != nil {
		return nil, false, err
	}
	if err := WriteEntry(ctx, tx, out); err != nil {
		span.RecordError(err)
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("ledger entry stored",
		zap.Int64("id", stored.ID),
		zap.String("kind", string(stored.Kind)),
		zap.Int64("outbox_id", out.ID))
	return stored, false, nil
}

// List implements ledger.Store.
func (s *Store) List(ctx context.Context, kind ledger.Kind) ([]*ledger.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+columns+` FROM ledger WHERE kind = $1 ORDER BY id ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	entries := []*ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Latest implements ledger.Store.
func (s *Store) Latest(ctx context.Context, kind ledger.Kind) (*ledger.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM ledger WHERE kind = $1 ORDER BY id DESC LIMIT 1`, string(kind)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var (
		e    ledger.Entry
		kind string
		data []byte
		key  *string
	)
	err := row.Scan(&e.ID, &e.EventID, &kind, &data, &key, &e.CorrelationID, &e.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ledger row: %w", err)
	}
	e.Kind = ledger.Kind(kind)
	e.Data = json.RawMessage(data)
	if key != nil {
		e.IdempotencyKey = *key
	}
	e.SubmittedAt = e.SubmittedAt.UTC()
	return &e, nil
}

// NewLedgerEvent builds the outbox row announcing a stored entry. The
// payload is the entry itself; the key is the kind so each kind stays in
// order on its partition.
func NewLedgerEvent(e *ledger.Entry) (*OutboxEntry, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode ledger event %d: %w", e.ID, err)
	}
	return &OutboxEntry{
		AggregateID:   e.EventID,
		AggregateType: string(e.Kind),
		EventType:     string(e.Kind) + ".appended",
		Payload:       payload,
		KafkaTopic:    redpanda.TopicForKind(string(e.Kind)),
		KafkaKey:      string(e.Kind),
	}, nil
}
