package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

// Store is the durable record store behind the ledger.
type Store interface {
	// Append persists e and returns the stored entry with its assigned id.
	// When e carries an idempotency key that is already stored, the
	// existing entry is returned with duplicate set and nothing is written.
	Append(ctx context.Context, e *Entry) (stored *Entry, duplicate bool, err error)
	// List returns every entry of kind in insertion order.
	List(ctx context.Context, kind Kind) ([]*Entry, error)
	// Latest returns the last entry of kind, or nil when there is none.
	Latest(ctx context.Context, kind Kind) (*Entry, error)
}

// AppendResult is the outcome of an append.
type AppendResult struct {
	Entry     *Entry
	Duplicate bool
}

// ID returns the ledger id of the stored entry.
func (r *AppendResult) ID() int64 { return r.Entry.ID }

// AppendOption customizes an append.
type AppendOption func(*Entry)

// WithIdempotencyKey deduplicates retried submissions.
func WithIdempotencyKey(key string) AppendOption {
	return func(e *Entry) { e.WithIdempotencyKey(key) }
}

// WithCorrelationID tags the entry with the originating request id.
func WithCorrelationID(id string) AppendOption {
	return func(e *Entry) { e.WithCorrelationID(id) }
}

// Ledger is the append-only event ledger. It exposes no update or delete;
// corrections are appended as new records that reference the entry they amend.
type Ledger struct {
	store  Store
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a ledger over store.
func New(store Store, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Append stores record under kind with the current submission time.
func (l *Ledger) Append(ctx context.Context, kind Kind, record interface{}, opts ...AppendOption) (*AppendResult, error) {
	ctx, span := l.tracer.Start(ctx, "ledger_append",
		trace.WithAttributes(attribute.String("kind", string(kind))))
	defer span.End()

	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown record kind %q", domain.ErrInvalidInput, kind)
	}

	entry, err := NewEntry(kind, record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	entry.SubmittedAt = l.now()
	for _, opt := range opts {
		opt(entry)
	}

	stored, duplicate, err := l.store.Append(ctx, entry)
	if err != nil {
		span.RecordError(err)
		l.logger.Error("ledger append failed",
			zap.String("kind", string(kind)),
			zap.String("event_id", entry.EventID),
			zap.Error(err))
		return nil, storageError("append "+string(kind), err)
	}

	span.SetAttributes(
		attribute.Int64("entry_id", stored.ID),
		attribute.Bool("duplicate", duplicate),
	)
	if duplicate {
		l.logger.Info("duplicate submission ignored",
			zap.String("kind", string(kind)),
			zap.Int64("id", stored.ID),
			zap.String("idempotency_key", entry.IdempotencyKey))
	} else {
		l.logger.Debug("ledger entry appended",
			zap.String("kind", string(kind)),
			zap.Int64("id", stored.ID))
	}

	return &AppendResult{Entry: stored, Duplicate: duplicate}, nil
}

// ListByKind returns every entry of kind, oldest first. The returned entries
// are copies; mutating them does not affect the ledger.
func (l *Ledger) ListByKind(ctx context.Context, kind Kind) ([]*Entry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown record kind %q", domain.ErrInvalidInput, kind)
	}
	entries, err := l.store.List(ctx, kind)
	if err != nil {
		return nil, storageError("list "+string(kind), err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return entries, nil
}

// Latest returns the last appended entry of kind, or nil when none exist.
func (l *Ledger) Latest(ctx context.Context, kind Kind) (*Entry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown record kind %q", domain.ErrInvalidInput, kind)
	}
	e, err := l.store.Latest(ctx, kind)
	if err != nil {
		return nil, storageError("latest "+string(kind), err)
	}
	return e, nil
}

// LatestRecord decodes the latest entry of kind into v. It reports false when
// the kind has no entries.
func (l *Ledger) LatestRecord(ctx context.Context, kind Kind, v interface{}) (*Entry, bool, error) {
	e, err := l.Latest(ctx, kind)
	if err != nil || e == nil {
		return nil, false, err
	}
	if err := e.Decode(v); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func storageError(op string, err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
