package app

import (
	"context"

	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/domain/schedule"
	"github.com/drfirst/go-flowsheet/internal/domain/workflow"
)

// Summary is the flowsheet overview.
type Summary struct {
	InfusionCount      int                      `json:"infusion_count"`
	LatestInfusion     *clinical.InfusionRecord `json:"latest_infusion,omitempty"`
	NextDue            *domain.Date             `json:"next_due,omitempty"`
	NextInfusionNumber int                      `json:"next_infusion_number"`
	RequiredMRI        *MRICheckpoint           `json:"required_mri,omitempty"`
	LatestMRI          *clinical.ImagingRecord  `json:"latest_mri,omitempty"`
	ApoE4              ApoE4Note                `json:"apoe4"`
}

// MRICheckpoint is a study that must be read before the next infusion.
type MRICheckpoint struct {
	StudyType clinical.StudyType `json:"study_type"`
	Completed bool               `json:"completed"`
}

// ApoE4Note is the genotype shown on the summary.
type ApoE4Note struct {
	Status   clinical.ApoE4Status `json:"status"`
	RiskNote string               `json:"risk_note"`
}

// History returns every entry of kind, oldest first.
func (s *Session) History(ctx context.Context, kind ledger.Kind) ([]*ledger.Entry, error) {
	return s.ledger.ListByKind(ctx, kind)
}

// Summary builds the flowsheet overview. Corrections replace the entry they
// amend. Only completed infusions are counted and anchor the next due date.
func (s *Session) Summary(ctx context.Context) (*Summary, error) {
	infusions, err := effectiveRecords[clinical.InfusionRecord](ctx, s.ledger, ledger.KindInfusion,
		func(r clinical.InfusionRecord) int64 { return r.CorrectsID })
	if err != nil {
		return nil, err
	}
	mris, err := effectiveRecords[clinical.ImagingRecord](ctx, s.ledger, ledger.KindImaging,
		func(r clinical.ImagingRecord) int64 { return r.CorrectsID })
	if err != nil {
		return nil, err
	}

	administered := make([]clinical.InfusionRecord, 0, len(infusions))
	for _, r := range infusions {
		if r.Status == clinical.InfusionCompleted {
			administered = append(administered, r)
		}
	}

	sum := &Summary{
		InfusionCount:      len(administered),
		NextInfusionNumber: len(administered) + 1,
		ApoE4: ApoE4Note{
			Status:   s.cfg.ApoE4Status,
			RiskNote: s.cfg.ApoE4Status.RiskNote(),
		},
	}
	if n := len(administered); n > 0 {
		latest := administered[n-1]
		sum.LatestInfusion = &latest
		due, err := schedule.NextDueDate(latest.Date, s.cfg.InfusionIntervalDays)
		if err != nil {
			return nil, err
		}
		sum.NextDue = &due
	}
	if n := len(mris); n > 0 {
		latest := mris[n-1]
		sum.LatestMRI = &latest
	}
	if st, ok := schedule.RequiredStudyBefore(sum.NextInfusionNumber); ok {
		cp := &MRICheckpoint{StudyType: st}
		for _, m := range mris {
			if m.StudyType == st {
				cp.Completed = true
				break
			}
		}
		sum.RequiredMRI = cp
	}
	return sum, nil
}

// effectiveRecords decodes the entries of kind, replacing each corrected
// entry with its latest correction.
func effectiveRecords[T any](ctx context.Context, l *ledger.Ledger, kind ledger.Kind, corrects func(T) int64) ([]T, error) {
	entries, err := l.ListByKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	pos := make(map[int64]int, len(entries))
	for _, e := range entries {
		var rec T
		if err := e.Decode(&rec); err != nil {
			return nil, err
		}
		if target := corrects(rec); target > 0 {
			if i, ok := pos[target]; ok {
				out[i] = rec
				pos[e.ID] = i
				continue
			}
		}
		pos[e.ID] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

// StepView is one workflow step with its progress.
type StepView struct {
	workflow.Step
	Completed   bool         `json:"completed"`
	CompletedOn *domain.Date `json:"completed_on,omitempty"`
	Current     bool         `json:"current"`
}

// WorkflowView is the REMS checklist with progress.
type WorkflowView struct {
	Name  string         `json:"name"`
	Steps []StepView     `json:"steps"`
	State workflow.State `json:"state"`
}

// Workflow returns the steps and current state.
func (s *Session) Workflow() *WorkflowView {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := s.machine.Definition()
	state := s.machine.Snapshot()
	view := &WorkflowView{Name: def.Name, State: state, Steps: make([]StepView, 0, def.Len())}
	for _, step := range def.Steps {
		sv := StepView{Step: step, Current: !state.Complete && step.Ordinal == state.CurrentStep}
		if d, ok := state.CompletionDates[step.Ordinal]; ok {
			d := d
			sv.Completed = true
			sv.CompletedOn = &d
		}
		view.Steps = append(view.Steps, sv)
	}
	return view
}

// Timeline returns completed steps in completion order.
func (s *Session) Timeline() []workflow.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Timeline()
}

// MonitoringView is the ongoing monitoring dashboard.
type MonitoringView struct {
	Active      bool                `json:"active"`
	CompletedOn *domain.Date        `json:"rems_completed_on,omitempty"`
	Activities  []schedule.Activity `json:"activities"`
	workflow.Monitoring
}

// Monitoring returns the monitoring calendar anchored at the date the
// workflow was completed.
func (s *Session) Monitoring() *MonitoringView {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := s.machine.CompletedOn()
	view := &MonitoringView{
		Active:     !anchor.IsZero(),
		Activities: schedule.MonitoringActivities(anchor, domain.DateOf(s.cfg.Now())),
		Monitoring: s.machine.Definition().Monitoring,
	}
	if view.Active {
		view.CompletedOn = &anchor
	}
	return view
}

// Export returns every ledger table.
func (s *Session) Export(ctx context.Context) (ledger.Document, error) {
	return s.ledger.Export(ctx)
}
