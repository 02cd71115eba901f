package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/pkg/circuitbreaker"
)

type note struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

// failingStore fails every call with err.
type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Append(context.Context, *Entry) (*Entry, bool, error) {
	f.calls++
	return nil, false, f.err
}

func (f *failingStore) List(context.Context, Kind) ([]*Entry, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) Latest(context.Context, Kind) (*Entry, error) {
	f.calls++
	return nil, f.err
}

func TestLedger_AppendAndListInOrder(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil)

	const n = 25
	var lastID int64
	for i := 0; i < n; i++ {
		res, err := l.Append(ctx, KindInfusion, note{Seq: i})
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.Greater(t, res.ID(), lastID, "ids increase monotonically")
		lastID = res.ID()
	}

	entries, err := l.ListByKind(ctx, KindInfusion)
	require.NoError(t, err)
	require.Len(t, entries, n)
	for i, e := range entries {
		var got note
		require.NoError(t, e.Decode(&got))
		assert.Equal(t, i, got.Seq)
		assert.Equal(t, KindInfusion, e.Kind)
		assert.NotEmpty(t, e.EventID)
		assert.False(t, e.SubmittedAt.IsZero())
	}
}

func TestLedger_KindsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil)

	_, err := l.Append(ctx, KindInfusion, note{Seq: 1})
	require.NoError(t, err)
	_, err = l.Append(ctx, KindImaging, note{Seq: 2})
	require.NoError(t, err)

	infusions, err := l.ListByKind(ctx, KindInfusion)
	require.NoError(t, err)
	assert.Len(t, infusions, 1)

	assessments, err := l.ListByKind(ctx, KindAssessment)
	require.NoError(t, err)
	assert.NotNil(t, assessments)
	assert.Empty(t, assessments)
}

func TestLedger_ReadsDoNotMutate(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil)
	_, err := l.Append(ctx, KindImaging, note{Seq: 7, Text: "baseline"})
	require.NoError(t, err)

	first, err := l.ListByKind(ctx, KindImaging)
	require.NoError(t, err)
	first[0].Data[0] = 'X'
	first[0].ID = 99

	second, err := l.ListByKind(ctx, KindImaging)
	require.NoError(t, err)
	var got note
	require.NoError(t, second[0].Decode(&got))
	assert.Equal(t, note{Seq: 7, Text: "baseline"}, got)
	assert.Equal(t, int64(1), second[0].ID)
}

func TestLedger_Latest(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil)

	e, err := l.Latest(ctx, KindAssessment)
	require.NoError(t, err)
	assert.Nil(t, e)

	var out note
	_, ok, err := l.LatestRecord(ctx, KindAssessment, &out)
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		_, err := l.Append(ctx, KindAssessment, note{Seq: i})
		require.NoError(t, err)
	}
	e, ok, err = l.LatestRecord(ctx, KindAssessment, &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, out.Seq)
	assert.Equal(t, int64(3), e.ID)
}

func TestLedger_IdempotentRetry(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil)

	first, err := l.Append(ctx, KindInfusion, note{Seq: 1}, WithIdempotencyKey("k-1"), WithCorrelationID("req-1"))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	retry, err := l.Append(ctx, KindInfusion, note{Seq: 1}, WithIdempotencyKey("k-1"), WithCorrelationID("req-2"))
	require.NoError(t, err)
	assert.True(t, retry.Duplicate)
	assert.Equal(t, first.ID(), retry.ID())
	assert.Equal(t, "req-1", retry.Entry.CorrelationID)

	entries, err := l.ListByKind(ctx, KindInfusion)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_UnknownKind(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil)

	_, err := l.Append(ctx, Kind("vitals"), note{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = l.ListByKind(ctx, Kind("vitals"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ParseKind("mri_records")
	assert.NoError(t, err)
	_, err = ParseKind("labs")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLedger_StorageFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("disk I/O error")
	l := New(&failingStore{err: cause}, nil)

	_, err := l.Append(ctx, KindInfusion, note{Seq: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, err, cause)

	_, err = l.ListByKind(ctx, KindInfusion)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = l.Latest(ctx, KindInfusion)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestExport_EmptyLedger(t *testing.T) {
	l := New(NewMemoryStore(), nil)
	doc, err := l.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())

	var buf bytes.Buffer
	require.NoError(t, doc.WriteJSON(&buf))

	var decoded map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	for _, k := range Kinds() {
		list, ok := decoded[string(k)]
		assert.True(t, ok, "kind %s present", k)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	}
}

func TestExport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l := New(NewMemoryStore(), nil)
	for i, k := range Kinds() {
		for j := 0; j < 2; j++ {
			_, err := l.Append(ctx, k, note{Seq: i*10 + j, Text: fmt.Sprintf("%s-%d", k, j)},
				WithIdempotencyKey(fmt.Sprintf("%s-%d", k, j)))
			require.NoError(t, err)
		}
	}

	doc, err := l.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, doc.Len())

	var buf bytes.Buffer
	require.NoError(t, doc.WriteJSON(&buf))

	var decoded Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, len(Kinds()))
	for _, k := range Kinds() {
		require.Len(t, decoded[k], 2)
		for j, e := range decoded[k] {
			orig := doc[k][j]
			assert.Equal(t, orig.ID, e.ID)
			assert.Equal(t, orig.EventID, e.EventID)
			assert.Equal(t, orig.IdempotencyKey, e.IdempotencyKey)
			assert.True(t, orig.SubmittedAt.Equal(e.SubmittedAt))
			assert.JSONEq(t, string(orig.Data), string(e.Data))
		}
	}
}

func TestGuarded_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{err: errors.New("database is locked")}
	cb, err := circuitbreaker.New(circuitbreaker.DefaultConfig("ledger-test"), nil)
	require.NoError(t, err)
	l := New(NewGuarded(store, cb), nil)

	threshold := int(circuitbreaker.DefaultConfig("").FailureThreshold)
	for i := 0; i < threshold; i++ {
		_, err := l.Append(ctx, KindInfusion, note{Seq: i})
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	}
	assert.True(t, cb.IsOpen())

	_, err = l.Append(ctx, KindInfusion, note{Seq: 99})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, threshold, store.calls, "open circuit must not reach the store")
}

func TestGuarded_PassesThrough(t *testing.T) {
	ctx := context.Background()
	cb, err := circuitbreaker.New(circuitbreaker.DefaultConfig("ledger-ok"), nil)
	require.NoError(t, err)
	l := New(NewGuarded(NewMemoryStore(), cb), nil)

	res, err := l.Append(ctx, KindImaging, note{Seq: 1}, WithIdempotencyKey("a"))
	require.NoError(t, err)
	dup, err := l.Append(ctx, KindImaging, note{Seq: 1}, WithIdempotencyKey("a"))
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Equal(t, res.ID(), dup.ID())

	latest, err := l.Latest(ctx, KindImaging)
	require.NoError(t, err)
	require.NotNil(t, latest)

	none, err := l.Latest(ctx, KindAssessment)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEntry_Matches(t *testing.T) {
	e := &Entry{ID: 1, Kind: KindInfusion, Data: []byte(`{"weight": 70.0, "date":"2024-01-01"}`)}

	same, err := e.Matches(KindInfusion, map[string]interface{}{"date": "2024-01-01", "weight": 70})
	require.NoError(t, err)
	assert.True(t, same, "key order and number formatting are ignored")

	same, err = e.Matches(KindInfusion, map[string]interface{}{"date": "2024-01-01", "weight": 80})
	require.NoError(t, err)
	assert.False(t, same)

	same, err = e.Matches(KindImaging, map[string]interface{}{"date": "2024-01-01", "weight": 70})
	require.NoError(t, err)
	assert.False(t, same)
}
