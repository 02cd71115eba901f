// Package mapper transforms flowsheet ledger entries into FHIR R5 resources.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	fhir "github.com/drfirst/go-flowsheet/internal/fhir/r5"
)

// Component code texts.
const (
	ComponentStudyType        = "MRI study type"
	ComponentAriaE            = "ARIA-E"
	ComponentAriaH            = "ARIA-H"
	ComponentMicrohemorrhages = "Microhemorrhages"
	ComponentSiderosis        = "Superficial siderosis"
	ComponentSymptoms         = "Symptoms"
	ComponentSymptomatic      = "Symptomatic"
	ComponentClinicalSeverity = "Clinical severity"
)

// DefaultMedication is the infused drug.
const DefaultMedication = "lecanemab-irmb (Leqembi)"

// LedgerToFHIRMapper maps ledger entries to FHIR resources.
type LedgerToFHIRMapper struct {
	PatientID  string
	Medication string
}

// NewLedgerToFHIRMapper creates a mapper for the single charted patient.
func NewLedgerToFHIRMapper() *LedgerToFHIRMapper {
	return &LedgerToFHIRMapper{
		PatientID:  "flowsheet-patient",
		Medication: DefaultMedication,
	}
}

// MapDocument builds a collection Bundle from an export document: the
// patient, one MedicationAdministration per infusion and one Observation
// per MRI record and ARIA assessment, in ledger order.
func (m *LedgerToFHIRMapper) MapDocument(doc ledger.Document, ts time.Time) (*fhir.Bundle, error) {
	bundle := fhir.NewCollection(uuid.New().String(), ts.UTC())
	bundle.Add("urn:flowsheet:Patient/"+m.PatientID, fhir.NewPatient(m.PatientID))

	for _, e := range doc[ledger.KindInfusion] {
		var rec clinical.InfusionRecord
		if err := e.Decode(&rec); err != nil {
			return nil, err
		}
		bundle.Add(fullURL(e), m.MapInfusion(e, &rec))
	}
	for _, e := range doc[ledger.KindImaging] {
		var rec clinical.ImagingRecord
		if err := e.Decode(&rec); err != nil {
			return nil, err
		}
		bundle.Add(fullURL(e), m.MapImaging(e, &rec))
	}
	for _, e := range doc[ledger.KindAssessment] {
		var rec clinical.ARIAAssessment
		if err := e.Decode(&rec); err != nil {
			return nil, err
		}
		bundle.Add(fullURL(e), m.MapAssessment(e, &rec))
	}

	total := len(bundle.Entry)
	bundle.Total = &total
	return bundle, nil
}

// MapInfusion converts an infusion record to a MedicationAdministration.
func (m *LedgerToFHIRMapper) MapInfusion(e *ledger.Entry, rec *clinical.InfusionRecord) *fhir.MedicationAdministration {
	recorded := e.SubmittedAt.UTC()
	ma := &fhir.MedicationAdministration{
		ResourceType:      "MedicationAdministration",
		ID:                ResourceID(e.Kind, e.ID),
		Identifier:        []fhir.Identifier{entryIdentifier(e)},
		Status:            administrationStatus(rec.Status),
		Medication:        fhir.CodeableReference{Concept: &fhir.CodeableConcept{Text: m.Medication}},
		Subject:           m.subject(),
		OccurenceDateTime: rec.Date.String(),
		Recorded:          &recorded,
		Dosage: &fhir.MedicationAdministrationDosage{
			Text: fmt.Sprintf("%.1f mg (%.1f mL) IV", rec.DoseMg, rec.DoseMl),
			Route: &fhir.CodeableConcept{
				Text: "Intravenous",
			},
			Dose: &fhir.Quantity{Value: rec.DoseMg, Unit: "mg", System: fhir.SystemUCUM, Code: "mg"},
		},
		Extension: []fhir.Extension{
			{
				URL:           fhir.ExtensionBodyWeight,
				ValueQuantity: &fhir.Quantity{Value: rec.Weight, Unit: string(rec.WeightUnit), System: fhir.SystemUCUM, Code: ucumWeight(string(rec.WeightUnit))},
			},
			{
				URL:           fhir.ExtensionDoseVolume,
				ValueQuantity: &fhir.Quantity{Value: rec.DoseMl, Unit: "mL", System: fhir.SystemUCUM, Code: "mL"},
			},
		},
	}
	if rec.Status != clinical.InfusionCompleted {
		ma.StatusReason = []fhir.CodeableConcept{{Text: string(rec.Status)}}
	}
	if rec.CorrectsID > 0 {
		ma.Extension = append(ma.Extension, correctsExtension("MedicationAdministration", e.Kind, rec.CorrectsID))
	}
	ma.Note = notes(rec.Notes)
	return ma
}

// MapImaging converts an MRI record to an imaging Observation.
func (m *LedgerToFHIRMapper) MapImaging(e *ledger.Entry, rec *clinical.ImagingRecord) *fhir.Observation {
	obs := m.observation(e, "imaging", "Brain MRI for ARIA monitoring", rec.Date.String(), rec.CorrectsID)
	obs.Component = []fhir.ObservationComponent{
		textComponent(ComponentStudyType, string(rec.StudyType)),
		textComponent(ComponentAriaE, string(rec.AriaE)),
		textComponent(ComponentAriaH, string(rec.AriaH)),
	}
	obs.Note = notes(rec.Notes)
	return obs
}

// MapAssessment converts an ARIA assessment to an exam Observation.
func (m *LedgerToFHIRMapper) MapAssessment(e *ledger.Entry, rec *clinical.ARIAAssessment) *fhir.Observation {
	obs := m.observation(e, "exam", "ARIA assessment", rec.Date.String(), rec.CorrectsID)

	symptomatic := rec.Symptomatic()
	symptoms := &fhir.CodeableConcept{Text: "None"}
	if symptomatic {
		names := make([]string, 0, len(rec.Symptoms))
		for _, s := range rec.Symptoms {
			symptoms.Coding = append(symptoms.Coding, fhir.Coding{Display: string(s)})
			names = append(names, string(s))
		}
		symptoms.Text = strings.Join(names, ", ")
	}

	obs.Component = []fhir.ObservationComponent{
		textComponent(ComponentAriaE, string(rec.AriaEStatus)),
		textComponent(ComponentMicrohemorrhages, string(rec.Microhemorrhages)),
		textComponent(ComponentSiderosis, string(rec.Siderosis)),
		{Code: fhir.CodeableConcept{Text: ComponentSymptoms}, ValueCodeableConcept: symptoms},
		{Code: fhir.CodeableConcept{Text: ComponentSymptomatic}, ValueBoolean: &symptomatic},
		textComponent(ComponentClinicalSeverity, string(rec.ClinicalSeverity)),
	}
	obs.Interpretation = []fhir.CodeableConcept{{Text: string(rec.ClinicalSeverity)}}
	return obs
}

// ResourceID returns the FHIR id of a ledger entry.
func ResourceID(kind ledger.Kind, id int64) string {
	prefix := map[ledger.Kind]string{
		ledger.KindInfusion:   "infusion",
		ledger.KindImaging:    "mri",
		ledger.KindAssessment: "aria",
	}[kind]
	if prefix == "" {
		prefix = string(kind)
	}
	return fmt.Sprintf("%s-%d", prefix, id)
}

func (m *LedgerToFHIRMapper) observation(e *ledger.Entry, category, code, effective string, correctsID int64) *fhir.Observation {
	issued := e.SubmittedAt.UTC()
	subject := m.subject()
	obs := &fhir.Observation{
		ResourceType: "Observation",
		ID:           ResourceID(e.Kind, e.ID),
		Identifier:   []fhir.Identifier{entryIdentifier(e)},
		Status:       fhir.ObservationFinal,
		Category: []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{System: fhir.SystemObservationCat, Code: category}},
		}},
		Code:              fhir.CodeableConcept{Text: code},
		Subject:           &subject,
		EffectiveDateTime: effective,
		Issued:            &issued,
	}
	if correctsID > 0 {
		obs.Status = fhir.ObservationAmended
		obs.Extension = append(obs.Extension, correctsExtension("Observation", e.Kind, correctsID))
	}
	return obs
}

func (m *LedgerToFHIRMapper) subject() fhir.Reference {
	return fhir.Reference{Reference: "Patient/" + m.PatientID}
}

func fullURL(e *ledger.Entry) string {
	return "urn:uuid:" + e.EventID
}

func entryIdentifier(e *ledger.Entry) fhir.Identifier {
	return fhir.Identifier{System: fhir.SystemLedgerEntry, Value: fmt.Sprintf("%s/%d", e.Kind, e.ID)}
}

func correctsExtension(resourceType string, kind ledger.Kind, id int64) fhir.Extension {
	return fhir.Extension{
		URL:            fhir.ExtensionCorrects,
		ValueReference: &fhir.Reference{Reference: resourceType + "/" + ResourceID(kind, id)},
	}
}

func textComponent(code, value string) fhir.ObservationComponent {
	return fhir.ObservationComponent{
		Code:                 fhir.CodeableConcept{Text: code},
		ValueCodeableConcept: &fhir.CodeableConcept{Text: value},
	}
}

func notes(text string) []fhir.Annotation {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []fhir.Annotation{{Text: text}}
}

func administrationStatus(s clinical.InfusionStatus) string {
	switch s {
	case clinical.InfusionMissed:
		return fhir.AdministrationNotDone
	case clinical.InfusionScheduled:
		return fhir.AdministrationOnHold
	default:
		return fhir.AdministrationCompleted
	}
}

func ucumWeight(unit string) string {
	if unit == "lb" {
		return "[lb_av]"
	}
	return unit
}
