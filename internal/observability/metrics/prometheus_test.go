package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordAppend("infusions", false)
	m.RecordAppend("infusions", false)
	m.RecordAppend("infusions", true)
	m.RecordRejection("SubmitInfusion", "invalid_input")
	m.RecordStorageFailure()
	m.RecordStepCompleted(2)
	m.ObserveCommand("SubmitInfusion", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsAppended.WithLabelValues("infusions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateSubmissions.WithLabelValues("infusions")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubmissionsRejected.WithLabelValues("SubmitInfusion", "invalid_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsCompleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkflowCurrentStep))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAppend("infusions", false)
		m.RecordRejection("x", "y")
		m.RecordStorageFailure()
		m.RecordStepCompleted(1)
		m.SetCurrentStep(1)
		m.ObserveCommand("x", time.Now())
	})
}

func TestMetrics_Relay(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordProduced(3)
	m.SetOutboxPending(7)
	m.SetCircuitBreakerState("ledger-store", "open")
	m.SetCircuitBreakerState("kafka-publish", "half-open")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.KafkaMessagesProduced))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.OutboxPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("ledger-store")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("kafka-publish")))

	m.SetCircuitBreakerState("ledger-store", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("ledger-store")))
}
