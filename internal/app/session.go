// Package app holds the application session: the ledger and the REMS
// workflow owned by one process, and the command processor that mutates
// them one command at a time.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
	"github.com/drfirst/go-flowsheet/internal/domain/dosing"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/domain/schedule"
	"github.com/drfirst/go-flowsheet/internal/domain/workflow"
	"github.com/drfirst/go-flowsheet/internal/observability/metrics"
	"github.com/drfirst/go-flowsheet/pkg/idempotency"
)

// Config holds the clinical parameters of a session.
type Config struct {
	Regimen              dosing.Regimen
	InfusionIntervalDays int
	ApoE4Status          clinical.ApoE4Status
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the reference regimen and interval.
func DefaultConfig() Config {
	return Config{
		Regimen:              dosing.DefaultRegimen(),
		InfusionIntervalDays: schedule.DefaultInfusionIntervalDays,
		ApoE4Status:          clinical.ApoE4Unknown,
		Now:                  time.Now,
	}
}

// Session is the application state of one patient chart.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	ledger  *ledger.Ledger
	machine *workflow.Machine
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewSession creates a session over l and rebuilds the workflow state from
// the step completions already in the ledger. m may be nil.
func NewSession(ctx context.Context, l *ledger.Ledger, def *workflow.Definition, cfg Config, m *metrics.Metrics, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := cfg.Regimen.Validate(); err != nil {
		return nil, err
	}
	if cfg.InfusionIntervalDays <= 0 {
		return nil, fmt.Errorf("%w: infusion interval must be positive", domain.ErrInvalidInput)
	}

	s := &Session{
		cfg:     cfg,
		ledger:  l,
		machine: workflow.NewMachine(def),
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("session"),
	}

	entries, err := l.ListByKind(ctx, ledger.KindStepCompletion)
	if err != nil {
		return nil, fmt.Errorf("load workflow history: %w", err)
	}
	history := make([]workflow.Completion, 0, len(entries))
	for _, e := range entries {
		var c workflow.Completion
		if err := e.Decode(&c); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	if err := s.machine.Replay(history); err != nil {
		return nil, fmt.Errorf("restore workflow: %w", err)
	}
	m.SetCurrentStep(s.machine.CurrentStep())

	logger.Info("session restored",
		zap.Int("completed_steps", len(history)),
		zap.Int("current_step", s.machine.CurrentStep()))
	return s, nil
}

// Config returns the session parameters.
func (s *Session) Config() Config { return s.cfg }

// Ledger returns the underlying ledger.
func (s *Session) Ledger() *ledger.Ledger { return s.ledger }

// PreviewDose computes a dose without recording anything.
func (s *Session) PreviewDose(weight float64, unit dosing.Unit) (dosing.Dose, error) {
	return s.cfg.Regimen.Compute(weight, unit)
}

// Handle processes one command. Commands are serialized: each is a single
// append or a single workflow transition.
func (s *Session) Handle(ctx context.Context, cmd Command) (*Result, error) {
	name := cmd.CommandName()
	ctx, span := s.tracer.Start(ctx, "handle_command",
		trace.WithAttributes(attribute.String("command", name)))
	defer span.End()

	started := time.Now()
	defer s.metrics.ObserveCommand(name, started)

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res *Result
		err error
	)
	switch c := cmd.(type) {
	case SubmitInfusion:
		res, err = s.submitInfusion(ctx, c)
	case *SubmitInfusion:
		res, err = s.submitInfusion(ctx, *c)
	case SubmitImaging:
		res, err = s.submitImaging(ctx, c)
	case *SubmitImaging:
		res, err = s.submitImaging(ctx, *c)
	case SubmitAssessment:
		res, err = s.submitAssessment(ctx, c)
	case *SubmitAssessment:
		res, err = s.submitAssessment(ctx, *c)
	case CompleteStep:
		res, err = s.completeStep(ctx, c)
	case *CompleteStep:
		res, err = s.completeStep(ctx, *c)
	default:
		err = fmt.Errorf("%w: unsupported command %T", domain.ErrInvalidInput, cmd)
	}

	if err != nil {
		reason := Reason(err)
		s.metrics.RecordRejection(name, reason)
		if reason == ReasonStorage {
			s.metrics.RecordStorageFailure()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		s.logger.Warn("command rejected",
			zap.String("command", name),
			zap.String("reason", reason),
			zap.String("correlation_id", metaOf(cmd).CorrelationID),
			zap.Error(err))
		return nil, err
	}

	res.Command = name
	span.SetAttributes(
		attribute.Int64("entry_id", res.EntryID),
		attribute.Bool("duplicate", res.Duplicate),
	)
	return res, nil
}

func (s *Session) submitInfusion(ctx context.Context, c SubmitInfusion) (*Result, error) {
	status := c.Status
	if status == "" {
		status = clinical.InfusionCompleted
	}
	dose, err := s.cfg.Regimen.Compute(c.Weight, c.Unit)
	if err != nil {
		return nil, err
	}
	rec := clinical.InfusionRecord{
		Date:       c.Date,
		Weight:     c.Weight,
		WeightUnit: c.Unit,
		DoseMg:     dose.Mg,
		DoseMl:     dose.ML,
		Notes:      c.Notes,
		Status:     status,
		CorrectsID: c.CorrectsID,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return s.appendRecord(ctx, ledger.KindInfusion, rec, c.Meta, c.CorrectsID, &clinical.InfusionRecord{})
}

func (s *Session) submitImaging(ctx context.Context, c SubmitImaging) (*Result, error) {
	rec := clinical.ImagingRecord{
		Date:       c.Date,
		StudyType:  c.StudyType,
		AriaE:      c.AriaE,
		AriaH:      c.AriaH,
		Notes:      c.Notes,
		CorrectsID: c.CorrectsID,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return s.appendRecord(ctx, ledger.KindImaging, rec, c.Meta, c.CorrectsID, &clinical.ImagingRecord{})
}

func (s *Session) submitAssessment(ctx context.Context, c SubmitAssessment) (*Result, error) {
	symptoms, err := clinical.NormalizeSymptoms(c.Symptoms)
	if err != nil {
		return nil, err
	}
	rec := clinical.ARIAAssessment{
		Date:             c.Date,
		AriaEStatus:      c.AriaEStatus,
		Microhemorrhages: c.Microhemorrhages,
		Siderosis:        c.Siderosis,
		Symptoms:         symptoms,
		ClinicalSeverity: c.ClinicalSeverity,
		CorrectsID:       c.CorrectsID,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return s.appendRecord(ctx, ledger.KindAssessment, rec, c.Meta, c.CorrectsID, &clinical.ARIAAssessment{})
}

// appendRecord stores rec and decodes the stored payload into stored, so a
// duplicate reports the original submission.
func (s *Session) appendRecord(ctx context.Context, kind ledger.Kind, rec interface{}, meta Meta, correctsID int64, stored interface{}) (*Result, error) {
	if correctsID > 0 {
		if err := s.checkCorrectionTarget(ctx, kind, correctsID); err != nil {
			return nil, err
		}
	}

	key, err := s.idempotencyKey(kind, rec, meta)
	if err != nil {
		return nil, err
	}
	res, err := s.ledger.Append(ctx, kind, rec,
		ledger.WithIdempotencyKey(key),
		ledger.WithCorrelationID(meta.CorrelationID))
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		same, err := res.Entry.Matches(kind, rec)
		if err != nil {
			return nil, err
		}
		if !same {
			return nil, fmt.Errorf("%w: idempotency key %q already used by %s entry %d with different content",
				domain.ErrInvalidInput, key, res.Entry.Kind, res.ID())
		}
	}
	s.metrics.RecordAppend(string(kind), res.Duplicate)

	if err := res.Entry.Decode(stored); err != nil {
		return nil, err
	}
	s.logger.Info("record saved",
		zap.String("kind", string(kind)),
		zap.Int64("id", res.ID()),
		zap.Bool("duplicate", res.Duplicate),
		zap.String("correlation_id", meta.CorrelationID))

	return &Result{
		Kind:      kind,
		EntryID:   res.ID(),
		Duplicate: res.Duplicate,
		Record:    stored,
	}, nil
}

func (s *Session) checkCorrectionTarget(ctx context.Context, kind ledger.Kind, id int64) error {
	entries, err := s.ledger.ListByKind(ctx, kind)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %s entry %d does not exist", domain.ErrInvalidInput, kind, id)
}

func (s *Session) idempotencyKey(kind ledger.Kind, rec interface{}, meta Meta) (string, error) {
	key, err := idempotency.Normalize(meta.IdempotencyKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if key != "" {
		return key, nil
	}
	return idempotency.KeyFor(string(kind), rec, s.cfg.Now())
}

// completeStep persists the completion before advancing the machine, so a
// storage failure leaves the workflow unchanged.
func (s *Session) completeStep(ctx context.Context, c CompleteStep) (*Result, error) {
	if err := s.machine.CheckCompletion(c.Ordinal); err != nil {
		return nil, err
	}
	on := c.On
	if on.IsZero() {
		on = domain.DateOf(s.cfg.Now())
	}
	step, _ := s.machine.Definition().Step(c.Ordinal)
	completion := workflow.Completion{Ordinal: c.Ordinal, Title: step.Title, CompletedOn: on}

	opts := []ledger.AppendOption{ledger.WithCorrelationID(c.CorrelationID)}
	key, err := idempotency.Normalize(c.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if key != "" {
		opts = append(opts, ledger.WithIdempotencyKey(key))
	}
	res, err := s.ledger.Append(ctx, ledger.KindStepCompletion, completion, opts...)
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		// The key was used for a different completion; nothing was written.
		return nil, fmt.Errorf("%w: idempotency key %q already used by entry %d", domain.ErrInvalidInput, key, res.ID())
	}

	if _, err := s.machine.CompleteStep(c.Ordinal, on); err != nil {
		return nil, fmt.Errorf("advance workflow after entry %d: %w", res.ID(), err)
	}
	s.metrics.RecordAppend(string(ledger.KindStepCompletion), false)
	s.metrics.RecordStepCompleted(s.machine.CurrentStep())

	state := s.machine.Snapshot()
	s.logger.Info("workflow step completed",
		zap.Int("step", c.Ordinal),
		zap.String("title", step.Title),
		zap.String("completed_on", on.String()),
		zap.Int("current_step", state.CurrentStep),
		zap.String("correlation_id", c.CorrelationID))

	return &Result{
		Kind:       ledger.KindStepCompletion,
		EntryID:    res.ID(),
		Record:     completion,
		Completion: &completion,
		Workflow:   &state,
	}, nil
}

// Rejection reasons.
const (
	ReasonInvalidInput     = "invalid_input"
	ReasonOutOfOrder       = "out_of_order"
	ReasonWorkflowComplete = "workflow_complete"
	ReasonStorage          = "storage_unavailable"
	ReasonInternal         = "internal"
)

// Reason classifies a command error.
func Reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return ReasonInvalidInput
	case errors.Is(err, domain.ErrOutOfOrderCompletion):
		return ReasonOutOfOrder
	case errors.Is(err, domain.ErrWorkflowComplete):
		return ReasonWorkflowComplete
	case errors.Is(err, domain.ErrStorageUnavailable):
		return ReasonStorage
	default:
		return ReasonInternal
	}
}

func metaOf(cmd Command) Meta {
	switch c := cmd.(type) {
	case SubmitInfusion:
		return c.Meta
	case *SubmitInfusion:
		return c.Meta
	case SubmitImaging:
		return c.Meta
	case *SubmitImaging:
		return c.Meta
	case SubmitAssessment:
		return c.Meta
	case *SubmitAssessment:
		return c.Meta
	case CompleteStep:
		return c.Meta
	case *CompleteStep:
		return c.Meta
	}
	return Meta{}
}
