package redpanda

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/trace"
)

func TestTopicForKind(t *testing.T) {
	assert.Equal(t, TopicREMSEvents, TopicForKind("step_completions"))
	for _, k := range []string{"infusions", "mri_records", "aria_assessments"} {
		assert.Equal(t, TopicFlowsheetEvents, TopicForKind(k), k)
	}
}

func TestDefaultTopicConfigs(t *testing.T) {
	names := map[string]bool{}
	for _, cfg := range DefaultTopicConfigs() {
		names[cfg.Name] = true
		assert.Equal(t, int32(1), cfg.Partitions, "%s keeps ledger order", cfg.Name)
		require.NotNil(t, cfg.Configs["retention.ms"])
	}
	assert.Equal(t, map[string]bool{
		TopicFlowsheetEvents: true,
		TopicREMSEvents:      true,
		TopicDeadLetter:      true,
	}, names)
}

func TestProducerConfig_Options(t *testing.T) {
	cfg := DefaultProducerConfig()
	base := len(cfg.options())

	cfg.Compression = "none"
	assert.Equal(t, base-1, len(cfg.options()))

	cfg.RequiredAcks = 1
	assert.Equal(t, base, len(cfg.options()), "leader acks also disable idempotent writes")
}

func TestTraceHeaders_RoundTrip(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	rec := &kgo.Record{Topic: TopicFlowsheetEvents}
	InjectTraceHeaders(ctx, rec)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "traceparent", rec.Headers[0].Key)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", string(rec.Headers[0].Value))

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), rec))
	assert.Equal(t, traceID, got.TraceID())
	assert.True(t, got.IsRemote())
}

func TestTraceHeaders_NoSpan(t *testing.T) {
	rec := &kgo.Record{}
	InjectTraceHeaders(context.Background(), rec)
	assert.Empty(t, rec.Headers)
}
