package r5

import "time"

// Patient represents a FHIR R5 Patient resource. The flowsheet charts a
// single anonymous patient, so only the identity fields are carried.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Meta         *Meta        `json:"meta,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Active       bool         `json:"active,omitempty"`
	Extension    []Extension  `json:"extension,omitempty"`
}

// NewPatient creates a Patient resource with the given id.
func NewPatient(id string) *Patient {
	return &Patient{ResourceType: "Patient", ID: id, Active: true}
}

// Observation represents a FHIR R5 Observation resource.
type Observation struct {
	ResourceType         string                 `json:"resourceType"`
	ID                   string                 `json:"id,omitempty"`
	Meta                 *Meta                  `json:"meta,omitempty"`
	Identifier           []Identifier           `json:"identifier,omitempty"`
	Extension            []Extension            `json:"extension,omitempty"`
	Status               string                 `json:"status"` // registered | preliminary | final | amended
	Category             []CodeableConcept      `json:"category,omitempty"`
	Code                 CodeableConcept        `json:"code"`
	Subject              *Reference             `json:"subject,omitempty"`
	EffectiveDateTime    string                 `json:"effectiveDateTime,omitempty"`
	Issued               *time.Time             `json:"issued,omitempty"`
	ValueString          string                 `json:"valueString,omitempty"`
	ValueCodeableConcept *CodeableConcept       `json:"valueCodeableConcept,omitempty"`
	Interpretation       []CodeableConcept      `json:"interpretation,omitempty"`
	Note                 []Annotation           `json:"note,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`
}

// ObservationComponent is one coded result within an Observation.
type ObservationComponent struct {
	Code                 CodeableConcept  `json:"code"`
	ValueString          string           `json:"valueString,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
}

// GetComponent returns the component whose code text matches, or nil.
func (o *Observation) GetComponent(text string) *ObservationComponent {
	for i := range o.Component {
		if o.Component[i].Code.Text == text {
			return &o.Component[i]
		}
	}
	return nil
}

// MedicationAdministration represents a FHIR R5 MedicationAdministration resource.
type MedicationAdministration struct {
	ResourceType      string                          `json:"resourceType"`
	ID                string                          `json:"id,omitempty"`
	Meta              *Meta                           `json:"meta,omitempty"`
	Identifier        []Identifier                    `json:"identifier,omitempty"`
	Extension         []Extension                     `json:"extension,omitempty"`
	Status            string                          `json:"status"` // in-progress | not-done | on-hold | completed | entered-in-error | stopped | unknown
	StatusReason      []CodeableConcept               `json:"statusReason,omitempty"`
	Medication        CodeableReference               `json:"medication"`
	Subject           Reference                       `json:"subject"`
	OccurenceDateTime string                          `json:"occurenceDateTime,omitempty"`
	Recorded          *time.Time                      `json:"recorded,omitempty"`
	Note              []Annotation                    `json:"note,omitempty"`
	Dosage            *MedicationAdministrationDosage `json:"dosage,omitempty"`
	SupportingInfo    []Reference                     `json:"supportingInformation,omitempty"`
}

// MedicationAdministrationDosage describes the dose given.
type MedicationAdministrationDosage struct {
	Text  string           `json:"text,omitempty"`
	Route *CodeableConcept `json:"route,omitempty"`
	Dose  *Quantity        `json:"dose,omitempty"`
}

// GetExtension returns the first extension with the given URL, or nil.
func (m *MedicationAdministration) GetExtension(url string) *Extension {
	for i := range m.Extension {
		if m.Extension[i].URL == url {
			return &m.Extension[i]
		}
	}
	return nil
}

// Bundle represents a FHIR R5 Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Identifier   *Identifier   `json:"identifier,omitempty"`
	Type         string        `json:"type"` // document | message | transaction | batch | collection | ...
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry is one resource in a Bundle.
type BundleEntry struct {
	FullURL  string      `json:"fullUrl,omitempty"`
	Resource interface{} `json:"resource"`
}

// NewCollection creates an empty collection Bundle.
func NewCollection(id string, ts time.Time) *Bundle {
	return &Bundle{
		ResourceType: "Bundle",
		ID:           id,
		Type:         "collection",
		Timestamp:    &ts,
		Entry:        []BundleEntry{},
	}
}

// Add appends a resource under fullURL.
func (b *Bundle) Add(fullURL string, resource interface{}) {
	b.Entry = append(b.Entry, BundleEntry{FullURL: fullURL, Resource: resource})
}
