// Package sqlite provides the local durable ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id        TEXT    NOT NULL UNIQUE,
	kind            TEXT    NOT NULL,
	data            TEXT    NOT NULL,
	idempotency_key TEXT    UNIQUE,
	correlation_id  TEXT    NOT NULL DEFAULT '',
	submitted_at    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS ledger_kind_id ON ledger (kind, id);
`

const columns = `id, event_id, kind, data, idempotency_key, correlation_id, submitted_at`

// Store is a ledger.Store backed by a single SQLite file. Rows are only
// ever inserted.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	logger.Info("sqlite ledger store opened", zap.String("path", path))
	return &Store{db: db, path: path, logger: logger}, nil
}

// Append implements ledger.Store.
func (s *Store) Append(ctx context.Context, e *ledger.Entry) (*ledger.Entry, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger (event_id, kind, data, idempotency_key, correlation_id, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		e.EventID, string(e.Kind), string(e.Data), nullable(e.IdempotencyKey),
		e.CorrelationID, e.SubmittedAt.UTC().Format(time.RFC3339Nano),
	).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing, err := scanEntry(tx.QueryRowContext(ctx,
			`SELECT `+columns+` FROM ledger WHERE idempotency_key = ?`, e.IdempotencyKey))
		if err != nil {
			return nil, false, fmt.Errorf("load entry for idempotency key %q: %w", e.IdempotencyKey, err)
		}
		return existing, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("insert %s entry: %w", e.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit append: %w", err)
	}

	stored := e.Clone()
	stored.ID = id
	return stored, false, nil
}

// List implements ledger.Store.
func (s *Store) List(ctx context.Context, kind ledger.Kind) ([]*ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM ledger WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	out := []*ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Latest implements ledger.Store.
func (s *Store) Latest(ctx context.Context, kind ledger.Kind) (*ledger.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM ledger WHERE kind = ? ORDER BY id DESC LIMIT 1`, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	s.logger.Info("sqlite ledger store closed", zap.String("path", s.path))
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*ledger.Entry, error) {
	var (
		e           ledger.Entry
		kind, data  string
		key         sql.NullString
		submittedAt string
	)
	if err := row.Scan(&e.ID, &e.EventID, &kind, &data, &key, &e.CorrelationID, &submittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan ledger row: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("ledger row %d: bad submitted_at %q: %w", e.ID, submittedAt, err)
	}
	e.Kind = ledger.Kind(kind)
	e.Data = []byte(data)
	e.IdempotencyKey = key.String
	e.SubmittedAt = ts
	return &e, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
