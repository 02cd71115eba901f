// Package ledger implements the append-only clinical event ledger.
package ledger

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

// Kind names a table of the ledger.
type Kind string

const (
	KindInfusion       Kind = "infusions"
	KindImaging        Kind = "mri_records"
	KindAssessment     Kind = "aria_assessments"
	KindStepCompletion Kind = "step_completions"
)

var kinds = []Kind{KindInfusion, KindImaging, KindAssessment, KindStepCompletion}

// Kinds returns every ledger kind in export order.
func Kinds() []Kind { return append([]Kind(nil), kinds...) }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind parses a ledger kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown record kind %q", domain.ErrInvalidInput, s)
	}
	return k, nil
}

// Entry is one immutable ledger row.
type Entry struct {
	ID             int64           `json:"id"`
	EventID        string          `json:"event_id"`
	Kind           Kind            `json:"kind"`
	Data           json.RawMessage `json:"data"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}

// NewEntry encodes record as the payload of a new, unsaved entry.
func NewEntry(kind Kind, record interface{}) (*Entry, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", kind, err)
	}
	return &Entry{
		EventID:     uuid.New().String(),
		Kind:        kind,
		Data:        data,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the entry payload into v.
func (e *Entry) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s entry %d: %w", e.Kind, e.ID, err)
	}
	return nil
}

// Matches reports whether e holds record under kind. Payloads are compared
// as decoded JSON, so key order and number formatting do not matter.
func (e *Entry) Matches(kind Kind, record interface{}) (bool, error) {
	if e.Kind != kind {
		return false, nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("encode %s record: %w", kind, err)
	}
	var stored, submitted interface{}
	if err := json.Unmarshal(e.Data, &stored); err != nil {
		return false, fmt.Errorf("decode %s entry %d: %w", e.Kind, e.ID, err)
	}
	if err := json.Unmarshal(data, &submitted); err != nil {
		return false, fmt.Errorf("decode %s record: %w", kind, err)
	}
	return reflect.DeepEqual(stored, submitted), nil
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Data = append(json.RawMessage(nil), e.Data...)
	return &c
}

// WithIdempotencyKey sets the deduplication key.
func (e *Entry) WithIdempotencyKey(key string) *Entry {
	e.IdempotencyKey = key
	return e
}

// WithCorrelationID sets the request correlation id.
func (e *Entry) WithCorrelationID(id string) *Entry {
	e.CorrelationID = id
	return e
}
