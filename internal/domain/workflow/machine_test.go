package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	def, err := DefaultDefinition()
	require.NoError(t, err)
	return NewMachine(def)
}

func day(n int) domain.Date {
	return domain.NewDate(2024, time.March, n)
}

func TestMachine_InitialState(t *testing.T) {
	m := newMachine(t)
	s := m.Snapshot()
	assert.Equal(t, 1, s.CurrentStep)
	assert.Equal(t, 6, s.TotalSteps)
	assert.Empty(t, s.CompletedSteps)
	assert.Empty(t, s.CompletionDates)
	assert.False(t, s.Complete)
	assert.True(t, m.CompletedOn().IsZero())
}

func TestMachine_CompleteInOrder(t *testing.T) {
	m := newMachine(t)

	c, err := m.CompleteStep(1, day(1))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Ordinal)
	assert.Equal(t, "Initial Provider Requirements", c.Title)
	assert.Equal(t, 2, m.CurrentStep())
	assert.True(t, m.IsCompleted(1))

	for i := 2; i <= 6; i++ {
		_, err := m.CompleteStep(i, day(i))
		require.NoError(t, err)
	}
	assert.True(t, m.IsComplete())
	assert.Equal(t, 6, m.CurrentStep(), "current step stays on the last step")
	assert.Equal(t, day(6), m.CompletedOn())

	tl := m.Timeline()
	require.Len(t, tl, 6)
	for i, c := range tl {
		assert.Equal(t, i+1, c.Ordinal)
		assert.Equal(t, day(i+1), c.CompletedOn)
	}
}

func TestMachine_OutOfOrderLeavesStateUnchanged(t *testing.T) {
	m := newMachine(t)
	_, err := m.CompleteStep(1, day(1))
	require.NoError(t, err)
	before := m.Snapshot()

	_, err = m.CompleteStep(3, day(2))
	assert.ErrorIs(t, err, domain.ErrOutOfOrderCompletion)
	_, err = m.CompleteStep(1, day(2))
	assert.ErrorIs(t, err, domain.ErrOutOfOrderCompletion, "completed steps cannot be redone")
	_, err = m.CompleteStep(0, day(2))
	assert.ErrorIs(t, err, domain.ErrOutOfOrderCompletion)
	_, err = m.CompleteStep(42, day(2))
	assert.ErrorIs(t, err, domain.ErrOutOfOrderCompletion)

	assert.Equal(t, before, m.Snapshot())
}

func TestMachine_AllStepsComplete(t *testing.T) {
	m := newMachine(t)
	for i := 1; i <= 6; i++ {
		_, err := m.CompleteStep(i, day(i))
		require.NoError(t, err)
	}
	before := m.Snapshot()

	_, err := m.CompleteStep(6, day(20))
	assert.ErrorIs(t, err, domain.ErrWorkflowComplete)
	assert.ErrorIs(t, m.CheckCompletion(1), domain.ErrWorkflowComplete)
	assert.Equal(t, before, m.Snapshot())
}

func TestMachine_RequiresDate(t *testing.T) {
	m := newMachine(t)
	_, err := m.CompleteStep(1, domain.Date{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 1, m.CurrentStep())
	assert.False(t, m.IsCompleted(1))
}

func TestMachine_SnapshotIsACopy(t *testing.T) {
	m := newMachine(t)
	_, err := m.CompleteStep(1, day(1))
	require.NoError(t, err)

	s := m.Snapshot()
	s.CompletedSteps[0] = 5
	s.CompletionDates[2] = day(9)

	again := m.Snapshot()
	assert.Equal(t, []int{1}, again.CompletedSteps)
	assert.NotContains(t, again.CompletionDates, 2)
}

func TestMachine_Replay(t *testing.T) {
	m := newMachine(t)
	history := []Completion{
		{Ordinal: 1, CompletedOn: day(1)},
		{Ordinal: 2, CompletedOn: day(3)},
		{Ordinal: 3, CompletedOn: day(5)},
	}
	require.NoError(t, m.Replay(history))
	assert.Equal(t, 4, m.CurrentStep())
	assert.Equal(t, day(3), m.Snapshot().CompletionDates[2])
}

func TestMachine_ReplayFailureIsAtomic(t *testing.T) {
	m := newMachine(t)
	_, err := m.CompleteStep(1, day(1))
	require.NoError(t, err)
	before := m.Snapshot()

	err = m.Replay([]Completion{
		{Ordinal: 1, CompletedOn: day(1)},
		{Ordinal: 3, CompletedOn: day(2)},
	})
	assert.ErrorIs(t, err, domain.ErrOutOfOrderCompletion)
	assert.Equal(t, before, m.Snapshot())
}
