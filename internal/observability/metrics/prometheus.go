// Package metrics provides Prometheus metrics for the flowsheet service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	RecordsAppended       *prometheus.CounterVec
	SubmissionsRejected   *prometheus.CounterVec
	DuplicateSubmissions  *prometheus.CounterVec
	StepsCompleted        prometheus.Counter
	StorageFailures       prometheus.Counter
	CommandDuration       *prometheus.HistogramVec
	WorkflowCurrentStep   prometheus.Gauge
	KafkaMessagesProduced prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RecordsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsheet_records_appended_total",
			Help: "Total ledger records appended",
		}, []string{"kind"}),
		SubmissionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsheet_submissions_rejected_total",
			Help: "Total rejected submissions",
		}, []string{"command", "reason"}),
		DuplicateSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsheet_duplicate_submissions_total",
			Help: "Total retried submissions answered from the ledger",
		}, []string{"kind"}),
		StepsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rems_steps_completed_total",
			Help: "Total REMS workflow steps completed",
		}),
		StorageFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowsheet_storage_failures_total",
			Help: "Total record store failures",
		}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowsheet_command_duration_seconds",
			Help:    "Command processing duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"command"}),
		WorkflowCurrentStep: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rems_workflow_current_step",
			Help: "Current REMS workflow step",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.RecordsAppended,
		m.SubmissionsRejected,
		m.DuplicateSubmissions,
		m.StepsCompleted,
		m.StorageFailures,
		m.CommandDuration,
		m.WorkflowCurrentStep,
		m.KafkaMessagesProduced,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveCommand records how long a command took. Safe on a nil receiver.
func (m *Metrics) ObserveCommand(command string, started time.Time) {
	if m == nil {
		return
	}
	m.CommandDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
}

// RecordAppend counts an appended or deduplicated record.
func (m *Metrics) RecordAppend(kind string, duplicate bool) {
	if m == nil {
		return
	}
	if duplicate {
		m.DuplicateSubmissions.WithLabelValues(kind).Inc()
		return
	}
	m.RecordsAppended.WithLabelValues(kind).Inc()
}

// RecordRejection counts a rejected command.
func (m *Metrics) RecordRejection(command, reason string) {
	if m == nil {
		return
	}
	m.SubmissionsRejected.WithLabelValues(command, reason).Inc()
}

// RecordStorageFailure counts a failed store call.
func (m *Metrics) RecordStorageFailure() {
	if m == nil {
		return
	}
	m.StorageFailures.Inc()
}

// RecordStepCompleted counts a completed step and tracks the current step.
func (m *Metrics) RecordStepCompleted(current int) {
	if m == nil {
		return
	}
	m.StepsCompleted.Inc()
	m.WorkflowCurrentStep.Set(float64(current))
}

// SetCurrentStep tracks the current step without counting a completion.
func (m *Metrics) SetCurrentStep(current int) {
	if m == nil {
		return
	}
	m.WorkflowCurrentStep.Set(float64(current))
}

// SetCircuitBreakerState exports a breaker state as 0 (closed), 1 (open)
// or 2 (half-open). Safe on a nil receiver.
func (m *Metrics) SetCircuitBreakerState(name, state string) {
	if m == nil {
		return
	}
	v := 0.0
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordProduced counts messages published to the broker. Safe on a nil
// receiver.
func (m *Metrics) RecordProduced(n int) {
	if m == nil {
		return
	}
	m.KafkaMessagesProduced.Add(float64(n))
}

// SetOutboxPending exports the outbox backlog. Safe on a nil receiver.
func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
