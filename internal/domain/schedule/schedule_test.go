package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
)

func TestNextDueDate(t *testing.T) {
	last, err := domain.ParseDate("2024-01-01")
	require.NoError(t, err)

	due, err := NextDueDate(last, DefaultInfusionIntervalDays)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", due.String())
}

func TestNextDueDate_CalendarArithmetic(t *testing.T) {
	cases := []struct {
		last string
		days int
		want string
	}{
		{"2024-02-20", 14, "2024-03-05"}, // leap year
		{"2023-02-20", 14, "2023-03-06"},
		{"2024-12-25", 14, "2025-01-08"},
		{"2024-03-09", 1, "2024-03-10"},
		{"2024-01-06", 28, "2024-02-03"}, // weekends are not skipped
	}
	for _, tc := range cases {
		last, err := domain.ParseDate(tc.last)
		require.NoError(t, err)
		due, err := NextDueDate(last, tc.days)
		require.NoError(t, err)
		assert.Equal(t, tc.want, due.String(), "%s + %d", tc.last, tc.days)
	}
}

func TestNextDueDate_InvalidInput(t *testing.T) {
	_, err := NextDueDate(domain.Date{}, 14)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	last := domain.NewDate(2024, time.January, 1)
	_, err = NextDueDate(last, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = NextDueDate(last, -14)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRequiredStudyBefore(t *testing.T) {
	st, ok := RequiredStudyBefore(1)
	require.True(t, ok)
	assert.Equal(t, clinical.StudyBaseline, st)

	for n, want := range map[int]clinical.StudyType{
		5:  clinical.StudyPreInfusion5,
		7:  clinical.StudyPreInfusion7,
		14: clinical.StudyPreInfusion14,
	} {
		st, ok := RequiredStudyBefore(n)
		require.True(t, ok, n)
		assert.Equal(t, want, st)
	}

	for _, n := range []int{0, 2, 6, 8, 15} {
		_, ok := RequiredStudyBefore(n)
		assert.False(t, ok, n)
	}
}

func TestMonitoringActivities(t *testing.T) {
	anchor := domain.NewDate(2024, time.January, 10)

	acts := MonitoringActivities(anchor, domain.NewDate(2024, time.February, 1))
	require.Len(t, acts, 3)
	assert.Equal(t, "Meningococcal Vaccination Review", acts[0].Name)
	require.NotNil(t, acts[0].DueOn)
	assert.Equal(t, "2024-04-10", acts[0].DueOn.String())
	assert.Equal(t, ActivityUpcoming, acts[0].Status)
	assert.Equal(t, "2024-07-10", acts[1].DueOn.String())
	assert.Nil(t, acts[2].DueOn)
	assert.Equal(t, ActivityCurrent, acts[2].Status)

	acts = MonitoringActivities(anchor, domain.NewDate(2024, time.April, 10))
	assert.Equal(t, ActivityDue, acts[0].Status)

	acts = MonitoringActivities(anchor, domain.NewDate(2024, time.May, 1))
	assert.Equal(t, ActivityOverdue, acts[0].Status)
	assert.Equal(t, ActivityUpcoming, acts[1].Status)
}

func TestMonitoringActivities_BeforeCompletion(t *testing.T) {
	for _, a := range MonitoringActivities(domain.Date{}, domain.NewDate(2024, time.May, 1)) {
		assert.Equal(t, ActivityPending, a.Status)
		assert.Nil(t, a.DueOn)
	}
}
