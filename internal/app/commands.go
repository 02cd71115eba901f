package app

import (
	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
	"github.com/drfirst/go-flowsheet/internal/domain/dosing"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/domain/workflow"
)

// Command is a request processed by Session.Handle.
type Command interface {
	CommandName() string
}

// Meta carries request metadata shared by every command.
type Meta struct {
	// IdempotencyKey deduplicates retried submissions. When empty a key is
	// derived from the record and the submission minute.
	IdempotencyKey string
	CorrelationID  string
}

// SubmitInfusion records an infusion. The dose is always computed from the
// weight by the session's regimen.
type SubmitInfusion struct {
	Meta
	Date       domain.Date
	Weight     float64
	Unit       dosing.Unit
	Notes      string
	Status     clinical.InfusionStatus
	CorrectsID int64
}

// SubmitImaging records an MRI study result.
type SubmitImaging struct {
	Meta
	Date       domain.Date
	StudyType  clinical.StudyType
	AriaE      clinical.Severity
	AriaH      clinical.Severity
	Notes      string
	CorrectsID int64
}

// SubmitAssessment records an ARIA assessment.
type SubmitAssessment struct {
	Meta
	Date             domain.Date
	AriaEStatus      clinical.Severity
	Microhemorrhages clinical.MicrohemorrhageGrade
	Siderosis        clinical.SiderosisGrade
	Symptoms         []clinical.Symptom
	ClinicalSeverity clinical.ClinicalSeverity
	CorrectsID       int64
}

// CompleteStep completes a REMS workflow step. A zero On means today.
type CompleteStep struct {
	Meta
	Ordinal int
	On      domain.Date
}

func (SubmitInfusion) CommandName() string   { return "SubmitInfusion" }
func (SubmitImaging) CommandName() string    { return "SubmitImaging" }
func (SubmitAssessment) CommandName() string { return "SubmitAssessment" }
func (CompleteStep) CommandName() string     { return "CompleteStep" }

// Result is the outcome of a command.
type Result struct {
	Command   string      `json:"command"`
	Kind      ledger.Kind `json:"kind"`
	EntryID   int64       `json:"id"`
	Duplicate bool        `json:"duplicate"`
	// Record is the stored record; for a duplicate it is the original.
	Record     interface{}          `json:"record,omitempty"`
	Completion *workflow.Completion `json:"completion,omitempty"`
	Workflow   *workflow.State      `json:"workflow,omitempty"`
}
