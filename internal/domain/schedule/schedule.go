// Package schedule implements treatment-interval scheduling: next-due
// infusion dates, pre-infusion MRI checkpoints and the REMS ongoing
// monitoring calendar.
package schedule

import (
	"fmt"

	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
)

// DefaultInfusionIntervalDays is the reference infusion follow-up interval.
// Protocols vary; callers should take the interval from configuration.
const DefaultInfusionIntervalDays = 14

// NextDueDate returns last + intervalDays using calendar-day arithmetic.
func NextDueDate(last domain.Date, intervalDays int) (domain.Date, error) {
	if last.IsZero() {
		return domain.Date{}, fmt.Errorf("%w: last event date is required", domain.ErrInvalidInput)
	}
	if intervalDays <= 0 {
		return domain.Date{}, fmt.Errorf("%w: interval must be positive, got %d days", domain.ErrInvalidInput, intervalDays)
	}
	return last.AddDays(intervalDays), nil
}

// mriCheckpoints maps an infusion number to the MRI that must be read before it.
var mriCheckpoints = map[int]clinical.StudyType{
	5:  clinical.StudyPreInfusion5,
	7:  clinical.StudyPreInfusion7,
	14: clinical.StudyPreInfusion14,
}

// RequiredStudyBefore reports the MRI study required before the given
// infusion number. The first infusion requires a baseline study.
func RequiredStudyBefore(infusionNumber int) (clinical.StudyType, bool) {
	if infusionNumber == 1 {
		return clinical.StudyBaseline, true
	}
	st, ok := mriCheckpoints[infusionNumber]
	return st, ok
}

// Activity statuses.
const (
	ActivityPending  = "Pending REMS completion"
	ActivityUpcoming = "Upcoming"
	ActivityDue      = "Due"
	ActivityOverdue  = "Overdue"
	ActivityCurrent  = "Up to date"
)

// Activity is one item on the ongoing monitoring calendar.
type Activity struct {
	Name   string       `json:"name"`
	DueOn  *domain.Date `json:"due_on,omitempty"`
	Status string       `json:"status"`
}

type recurring struct {
	name   string
	months int
}

var monitoringCalendar = []recurring{
	{name: "Meningococcal Vaccination Review", months: 3},
	{name: "REMS Re-certification", months: 6},
	{name: "Safety Assessment"},
}

// MonitoringActivities lays out the ongoing monitoring calendar anchored at
// the date the REMS workflow was completed. A zero anchor means the
// workflow is not complete yet. Activities without a period are continuous.
func MonitoringActivities(anchor, today domain.Date) []Activity {
	out := make([]Activity, 0, len(monitoringCalendar))
	for _, r := range monitoringCalendar {
		a := Activity{Name: r.name}
		switch {
		case anchor.IsZero():
			a.Status = ActivityPending
		case r.months == 0:
			a.Status = ActivityCurrent
		default:
			due := anchor.AddMonths(r.months)
			a.DueOn = &due
			switch {
			case today.After(due):
				a.Status = ActivityOverdue
			case today.Equal(due):
				a.Status = ActivityDue
			default:
				a.Status = ActivityUpcoming
			}
		}
		out = append(out, a)
	}
	return out
}
