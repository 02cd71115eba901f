package workflow

import (
	"fmt"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

// Completion records that a step was completed on a date.
type Completion struct {
	Ordinal     int         `json:"ordinal"`
	Title       string      `json:"title"`
	CompletedOn domain.Date `json:"completed_on"`
}

// State is a snapshot of workflow progress.
type State struct {
	CurrentStep     int                 `json:"current_step"`
	TotalSteps      int                 `json:"total_steps"`
	CompletedSteps  []int               `json:"completed_steps"`
	CompletionDates map[int]domain.Date `json:"completion_dates"`
	Complete        bool                `json:"complete"`
}

// Machine tracks progress through a Definition. currentStep is always the
// smallest ordinal not yet completed, clamped to [1, N], and completed
// steps are never undone.
type Machine struct {
	def       *Definition
	current   int
	completed []int
	dates     map[int]domain.Date
}

// NewMachine starts a workflow at step 1 with nothing completed.
func NewMachine(def *Definition) *Machine {
	return &Machine{
		def:     def,
		current: 1,
		dates:   make(map[int]domain.Date),
	}
}

// Definition returns the step definitions.
func (m *Machine) Definition() *Definition { return m.def }

// CurrentStep returns the ordinal of the step that can be completed next.
func (m *Machine) CurrentStep() int { return m.current }

// IsComplete reports whether every step has been completed.
func (m *Machine) IsComplete() bool { return len(m.completed) == m.def.Len() }

// IsCompleted reports whether the step has been completed.
func (m *Machine) IsCompleted(ordinal int) bool {
	_, ok := m.dates[ordinal]
	return ok
}

// CheckCompletion reports whether ordinal may be completed now, without
// changing state.
func (m *Machine) CheckCompletion(ordinal int) error {
	if m.IsComplete() {
		return fmt.Errorf("%w: all %d steps are completed", domain.ErrWorkflowComplete, m.def.Len())
	}
	if ordinal != m.current || m.IsCompleted(ordinal) {
		return fmt.Errorf("%w: step %d requested, current step is %d", domain.ErrOutOfOrderCompletion, ordinal, m.current)
	}
	return nil
}

// CompleteStep completes ordinal on the given date. Only the current step
// can be completed; any other request leaves state unchanged.
func (m *Machine) CompleteStep(ordinal int, on domain.Date) (Completion, error) {
	if err := m.CheckCompletion(ordinal); err != nil {
		return Completion{}, err
	}
	if on.IsZero() {
		return Completion{}, fmt.Errorf("%w: completion date is required", domain.ErrInvalidInput)
	}

	step, _ := m.def.Step(ordinal)
	m.completed = append(m.completed, ordinal)
	m.dates[ordinal] = on
	if ordinal < m.def.Len() {
		m.current = ordinal + 1
	}
	return Completion{Ordinal: ordinal, Title: step.Title, CompletedOn: on}, nil
}

// Replay rebuilds progress from persisted completions in the order they
// happened. On error the machine is left untouched.
func (m *Machine) Replay(history []Completion) error {
	fresh := NewMachine(m.def)
	for i, c := range history {
		if _, err := fresh.CompleteStep(c.Ordinal, c.CompletedOn); err != nil {
			return fmt.Errorf("replay completion %d: %w", i+1, err)
		}
	}
	*m = *fresh
	return nil
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	dates := make(map[int]domain.Date, len(m.dates))
	for k, v := range m.dates {
		dates[k] = v
	}
	return State{
		CurrentStep:     m.current,
		TotalSteps:      m.def.Len(),
		CompletedSteps:  append([]int{}, m.completed...),
		CompletionDates: dates,
		Complete:        m.IsComplete(),
	}
}

// Timeline lists completed steps in completion order.
func (m *Machine) Timeline() []Completion {
	out := make([]Completion, 0, len(m.completed))
	for _, ordinal := range m.completed {
		step, _ := m.def.Step(ordinal)
		out = append(out, Completion{Ordinal: ordinal, Title: step.Title, CompletedOn: m.dates[ordinal]})
	}
	return out
}

// CompletedOn returns the date the final step was completed, or the zero
// date while the workflow is still in progress.
func (m *Machine) CompletedOn() domain.Date {
	if !m.IsComplete() {
		return domain.Date{}
	}
	return m.dates[m.def.Len()]
}
