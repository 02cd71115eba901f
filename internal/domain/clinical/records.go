// Package clinical defines the clinical observation records captured by the
// infusion flowsheet.
package clinical

import (
	"fmt"
	"math"
	"strings"

	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/dosing"
)

// InfusionStatus is the administration status of an infusion.
type InfusionStatus string

const (
	InfusionCompleted InfusionStatus = "Completed"
	InfusionScheduled InfusionStatus = "Scheduled"
	InfusionMissed    InfusionStatus = "Missed"
)

// Severity grades ARIA-E and ARIA-H findings.
type Severity string

const (
	SeverityNone     Severity = "None"
	SeverityMild     Severity = "Mild"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

// StudyType is the scheduling category of an MRI study.
type StudyType string

const (
	StudyBaseline      StudyType = "Baseline"
	StudyPreInfusion5  StudyType = "Pre-infusion #5"
	StudyPreInfusion7  StudyType = "Pre-infusion #7"
	StudyPreInfusion14 StudyType = "Pre-infusion #14"
	StudyFollowUp      StudyType = "Follow-up"
)

// MicrohemorrhageGrade grades new microhemorrhages by count.
type MicrohemorrhageGrade string

const (
	MicrohemorrhageNone     MicrohemorrhageGrade = "None"
	MicrohemorrhageMild     MicrohemorrhageGrade = "Mild (≤4)"
	MicrohemorrhageModerate MicrohemorrhageGrade = "Moderate (5-9)"
	MicrohemorrhageSevere   MicrohemorrhageGrade = "Severe (≥10)"
)

// SiderosisGrade grades superficial siderosis by affected areas.
type SiderosisGrade string

const (
	SiderosisNone     SiderosisGrade = "None"
	SiderosisMild     SiderosisGrade = "Mild (1 area)"
	SiderosisModerate SiderosisGrade = "Moderate (2 areas)"
	SiderosisSevere   SiderosisGrade = "Severe (>2 areas)"
)

// Symptom is a checklist symptom of an ARIA assessment.
type Symptom string

const (
	SymptomHeadache      Symptom = "Headache"
	SymptomConfusion     Symptom = "Confusion"
	SymptomDizziness     Symptom = "Dizziness"
	SymptomVisualChanges Symptom = "Visual Changes"
	SymptomNausea        Symptom = "Nausea"
	SymptomWeakness      Symptom = "Weakness"
)

// ClinicalSeverity is the overall clinical severity of an ARIA assessment.
type ClinicalSeverity string

const (
	ClinicalAsymptomatic ClinicalSeverity = "Asymptomatic"
	ClinicalMild         ClinicalSeverity = "Mild"
	ClinicalModerate     ClinicalSeverity = "Moderate"
	ClinicalSevere       ClinicalSeverity = "Severe"
)

var (
	infusionStatuses   = []InfusionStatus{InfusionCompleted, InfusionScheduled, InfusionMissed}
	severities         = []Severity{SeverityNone, SeverityMild, SeverityModerate, SeveritySevere}
	studyTypes         = []StudyType{StudyBaseline, StudyPreInfusion5, StudyPreInfusion7, StudyPreInfusion14, StudyFollowUp}
	microGrades        = []MicrohemorrhageGrade{MicrohemorrhageNone, MicrohemorrhageMild, MicrohemorrhageModerate, MicrohemorrhageSevere}
	siderosisGrades    = []SiderosisGrade{SiderosisNone, SiderosisMild, SiderosisModerate, SiderosisSevere}
	symptomChecklist   = []Symptom{SymptomHeadache, SymptomConfusion, SymptomDizziness, SymptomVisualChanges, SymptomNausea, SymptomWeakness}
	clinicalSeverities = []ClinicalSeverity{ClinicalAsymptomatic, ClinicalMild, ClinicalModerate, ClinicalSevere}
)

// Symptoms returns the symptom checklist in form order.
func Symptoms() []Symptom { return append([]Symptom(nil), symptomChecklist...) }

// ParseInfusionStatus parses an infusion status; empty means Completed.
func ParseInfusionStatus(s string) (InfusionStatus, error) {
	if strings.TrimSpace(s) == "" {
		return InfusionCompleted, nil
	}
	return parseEnum(s, "infusion status", infusionStatuses)
}

// ParseSeverity parses an ARIA severity.
func ParseSeverity(s string) (Severity, error) { return parseEnum(s, "ARIA severity", severities) }

// ParseStudyType parses an MRI study type.
func ParseStudyType(s string) (StudyType, error) { return parseEnum(s, "MRI study type", studyTypes) }

// ParseMicrohemorrhageGrade parses a microhemorrhage grade label.
func ParseMicrohemorrhageGrade(s string) (MicrohemorrhageGrade, error) {
	return parseEnum(s, "microhemorrhage grade", microGrades)
}

// ParseSiderosisGrade parses a superficial siderosis grade label.
func ParseSiderosisGrade(s string) (SiderosisGrade, error) {
	return parseEnum(s, "siderosis grade", siderosisGrades)
}

// ParseClinicalSeverity parses an overall clinical severity.
func ParseClinicalSeverity(s string) (ClinicalSeverity, error) {
	return parseEnum(s, "clinical severity", clinicalSeverities)
}

// GradeMicrohemorrhages maps a microhemorrhage count onto its grade.
func GradeMicrohemorrhages(count int) (MicrohemorrhageGrade, error) {
	switch {
	case count < 0:
		return "", fmt.Errorf("%w: negative microhemorrhage count %d", domain.ErrInvalidInput, count)
	case count == 0:
		return MicrohemorrhageNone, nil
	case count <= 4:
		return MicrohemorrhageMild, nil
	case count <= 9:
		return MicrohemorrhageModerate, nil
	default:
		return MicrohemorrhageSevere, nil
	}
}

// GradeSiderosis maps the number of areas of superficial siderosis onto its grade.
func GradeSiderosis(areas int) (SiderosisGrade, error) {
	switch {
	case areas < 0:
		return "", fmt.Errorf("%w: negative siderosis area count %d", domain.ErrInvalidInput, areas)
	case areas == 0:
		return SiderosisNone, nil
	case areas == 1:
		return SiderosisMild, nil
	case areas == 2:
		return SiderosisModerate, nil
	default:
		return SiderosisSevere, nil
	}
}

// NormalizeSymptoms validates symptoms and returns them deduplicated in
// checklist order. The result is never nil.
func NormalizeSymptoms(in []Symptom) ([]Symptom, error) {
	seen := make(map[Symptom]bool, len(in))
	for _, s := range in {
		parsed, err := parseEnum(string(s), "symptom", symptomChecklist)
		if err != nil {
			return nil, err
		}
		seen[parsed] = true
	}
	out := make([]Symptom, 0, len(seen))
	for _, s := range symptomChecklist {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// InfusionRecord is one infusion administration. DoseMg and DoseMl are
// always derived from Weight by the dosing rule.
type InfusionRecord struct {
	Date       domain.Date    `json:"date"`
	Weight     float64        `json:"weight"`
	WeightUnit dosing.Unit    `json:"unit"`
	DoseMg     float64        `json:"dose_mg"`
	DoseMl     float64        `json:"dose_ml"`
	Notes      string         `json:"notes"`
	Status     InfusionStatus `json:"status"`
	CorrectsID int64          `json:"corrects_id,omitempty"`
}

// Validate checks field domains. It does not recompute the dose.
func (r *InfusionRecord) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("%w: infusion date is required", domain.ErrInvalidInput)
	}
	if r.Weight <= 0 || math.IsNaN(r.Weight) {
		return fmt.Errorf("%w: weight must be positive", domain.ErrInvalidInput)
	}
	if _, err := dosing.ParseUnit(string(r.WeightUnit)); err != nil {
		return err
	}
	if r.DoseMg <= 0 || r.DoseMl < 0 {
		return fmt.Errorf("%w: dose must be derived before saving", domain.ErrInvalidInput)
	}
	if _, err := parseEnum(string(r.Status), "infusion status", infusionStatuses); err != nil {
		return err
	}
	return validateCorrection(r.CorrectsID)
}

// ImagingRecord is one MRI study result.
type ImagingRecord struct {
	Date       domain.Date `json:"date"`
	StudyType  StudyType   `json:"type"`
	AriaE      Severity    `json:"aria_e"`
	AriaH      Severity    `json:"aria_h"`
	Notes      string      `json:"notes"`
	CorrectsID int64       `json:"corrects_id,omitempty"`
}

// Validate checks field domains.
func (r *ImagingRecord) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("%w: MRI date is required", domain.ErrInvalidInput)
	}
	if _, err := parseEnum(string(r.StudyType), "MRI study type", studyTypes); err != nil {
		return err
	}
	if _, err := parseEnum(string(r.AriaE), "ARIA-E severity", severities); err != nil {
		return err
	}
	if _, err := parseEnum(string(r.AriaH), "ARIA-H severity", severities); err != nil {
		return err
	}
	return validateCorrection(r.CorrectsID)
}

// ARIAAssessment is one ARIA monitoring assessment.
type ARIAAssessment struct {
	Date             domain.Date          `json:"date"`
	AriaEStatus      Severity             `json:"aria_e_status"`
	Microhemorrhages MicrohemorrhageGrade `json:"microhemorrhages"`
	Siderosis        SiderosisGrade       `json:"siderosis"`
	Symptoms         []Symptom            `json:"symptoms"`
	ClinicalSeverity ClinicalSeverity     `json:"clinical_severity"`
	CorrectsID       int64                `json:"corrects_id,omitempty"`
}

// Validate checks field domains.
func (a *ARIAAssessment) Validate() error {
	if a.Date.IsZero() {
		return fmt.Errorf("%w: assessment date is required", domain.ErrInvalidInput)
	}
	if _, err := parseEnum(string(a.AriaEStatus), "ARIA-E severity", severities); err != nil {
		return err
	}
	if _, err := parseEnum(string(a.Microhemorrhages), "microhemorrhage grade", microGrades); err != nil {
		return err
	}
	if _, err := parseEnum(string(a.Siderosis), "siderosis grade", siderosisGrades); err != nil {
		return err
	}
	if _, err := NormalizeSymptoms(a.Symptoms); err != nil {
		return err
	}
	if _, err := parseEnum(string(a.ClinicalSeverity), "clinical severity", clinicalSeverities); err != nil {
		return err
	}
	return validateCorrection(a.CorrectsID)
}

// Symptomatic reports whether any symptom was checked.
func (a *ARIAAssessment) Symptomatic() bool { return len(a.Symptoms) > 0 }

func validateCorrection(id int64) error {
	if id < 0 {
		return fmt.Errorf("%w: corrected entry id must be positive", domain.ErrInvalidInput)
	}
	return nil
}

func parseEnum[T ~string](s, what string, valid []T) (T, error) {
	s = strings.TrimSpace(s)
	for _, v := range valid {
		if strings.EqualFold(s, string(v)) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: unknown %s %q", domain.ErrInvalidInput, what, s)
}
