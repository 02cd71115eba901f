package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/redpanda"
)

func TestNewLedgerEvent(t *testing.T) {
	e, err := ledger.NewEntry(ledger.KindStepCompletion, map[string]int{"ordinal": 1})
	require.NoError(t, err)
	e.ID = 42

	out, err := NewLedgerEvent(e)
	require.NoError(t, err)
	assert.Equal(t, redpanda.TopicREMSEvents, out.KafkaTopic)
	assert.Equal(t, "step_completions", out.KafkaKey)
	assert.Equal(t, "step_completions.appended", out.EventType)
	assert.Equal(t, e.EventID, out.AggregateID)

	var decoded ledger.Entry
	require.NoError(t, json.Unmarshal(out.Payload, &decoded))
	assert.Equal(t, int64(42), decoded.ID)
	assert.JSONEq(t, `{"ordinal":1}`, string(decoded.Data))
}

func TestNewDeadLetter(t *testing.T) {
	msg := "broker unavailable"
	dl := NewDeadLetter(&OutboxEntry{
		ID:         7,
		KafkaTopic: redpanda.TopicFlowsheetEvents,
		EventType:  "infusions.appended",
		Payload:    json.RawMessage(`{"id":1}`),
		RetryCount: 5,
		LastError:  &msg,
	})
	assert.Equal(t, int64(7), dl.OutboxID)
	assert.Equal(t, redpanda.TopicFlowsheetEvents, dl.OriginalTopic)
	assert.Equal(t, msg, dl.LastError)

	dl = NewDeadLetter(&OutboxEntry{ID: 8})
	assert.Empty(t, dl.LastError)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, topic, _ string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.topics = append(p.topics, topic)
	return nil
}

// openPool connects to the database named by FLOWSHEET_TEST_DATABASE_URL
// on a clean schema, skipping when it is unset.
func openPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("FLOWSHEET_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FLOWSHEET_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "DROP TABLE IF EXISTS ledger, outbox")
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestStore_Postgres(t *testing.T) {
	pool := openPool(t)
	ctx := context.Background()
	store := NewStore(pool, nil)
	l := ledger.New(store, nil)

	first, err := l.Append(ctx, ledger.KindInfusion, map[string]string{"date": "2024-01-01"}, ledger.WithIdempotencyKey("k1"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	again, err := l.Append(ctx, ledger.KindInfusion, map[string]string{"date": "2024-01-01"}, ledger.WithIdempotencyKey("k1"))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.ID(), again.ID())

	_, err = l.Append(ctx, ledger.KindStepCompletion, map[string]int{"ordinal": 1})
	require.NoError(t, err)

	list, err := l.ListByKind(ctx, ledger.KindInfusion)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	latest, err := l.Latest(ctx, ledger.KindImaging)
	require.NoError(t, err)
	assert.Nil(t, latest)

	pub := &recordingPublisher{}
	outbox := NewOutbox(pool, pub, DefaultOutboxConfig(), nil, nil)
	n, err := outbox.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one outbox row per stored entry, none for the duplicate")
	assert.Equal(t, []string{redpanda.TopicFlowsheetEvents, redpanda.TopicREMSEvents}, pub.topics)

	stats, err := outbox.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
}

func TestOutbox_DeadLetter(t *testing.T) {
	pool := openPool(t)
	ctx := context.Background()
	l := ledger.New(NewStore(pool, nil), nil)
	_, err := l.Append(ctx, ledger.KindImaging, map[string]string{"type": "Baseline"})
	require.NoError(t, err)

	cfg := DefaultOutboxConfig()
	cfg.MaxRetries = 1
	pub := &recordingPublisher{fail: errors.New("broker down")}
	outbox := NewOutbox(pool, pub, cfg, nil, nil)

	n, err := outbox.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	pub.fail = nil
	moved, err := outbox.MoveToDeadLetter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)
	assert.Equal(t, []string{redpanda.TopicDeadLetter}, pub.topics)

	purged, err := outbox.CleanupProcessed(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
