// Package dosing implements the weight-based infusion dose calculation.
package dosing

import (
	"fmt"
	"math"
	"strings"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

// Unit is the unit a patient weight is recorded in.
type Unit string

const (
	UnitKg Unit = "kg"
	UnitLb Unit = "lb"
)

// KgPerLb converts pounds to kilograms.
const KgPerLb = 0.453592

// ParseUnit parses a weight unit, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(s))) {
	case UnitKg:
		return UnitKg, nil
	case UnitLb:
		return UnitLb, nil
	}
	return "", fmt.Errorf("%w: unknown weight unit %q", domain.ErrInvalidInput, s)
}

// Regimen describes a fixed weight-based dosing regimen.
type Regimen struct {
	// MgPerKg is the prescribed drug mass per kilogram of body weight.
	MgPerKg float64
	// ConcentrationMgPerML is the drug concentration of the formulation.
	ConcentrationMgPerML float64
	// MaxWeight is the sanity ceiling for an entered weight, in the entered
	// unit. Zero disables the ceiling.
	MaxWeight float64
}

// DefaultRegimen returns 10 mg/kg of a 100 mg/mL formulation with a 500 weight ceiling.
func DefaultRegimen() Regimen {
	return Regimen{
		MgPerKg:              10,
		ConcentrationMgPerML: 100,
		MaxWeight:            500,
	}
}

// Validate checks the regimen factors.
func (r Regimen) Validate() error {
	if r.MgPerKg <= 0 || math.IsNaN(r.MgPerKg) {
		return fmt.Errorf("%w: mg/kg must be positive", domain.ErrInvalidInput)
	}
	if r.ConcentrationMgPerML <= 0 || math.IsNaN(r.ConcentrationMgPerML) {
		return fmt.Errorf("%w: concentration must be positive", domain.ErrInvalidInput)
	}
	if r.MaxWeight < 0 {
		return fmt.Errorf("%w: weight ceiling must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// Dose is a prescribed dose in drug mass and infusion volume.
type Dose struct {
	Mg float64 `json:"dose_mg"`
	ML float64 `json:"dose_ml"`
}

// Compute converts a patient weight into a dose. Both outputs are rounded
// half-up to one decimal place.
func (r Regimen) Compute(weight float64, unit Unit) (Dose, error) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		return Dose{}, fmt.Errorf("%w: weight must be positive, got %v", domain.ErrInvalidInput, weight)
	}
	if r.MaxWeight > 0 && weight > r.MaxWeight {
		return Dose{}, fmt.Errorf("%w: weight %v exceeds ceiling %v", domain.ErrInvalidInput, weight, r.MaxWeight)
	}

	var weightKg float64
	switch unit {
	case UnitKg:
		weightKg = weight
	case UnitLb:
		weightKg = weight * KgPerLb
	default:
		return Dose{}, fmt.Errorf("%w: unknown weight unit %q", domain.ErrInvalidInput, unit)
	}

	mg := weightKg * r.MgPerKg
	ml := mg / r.ConcentrationMgPerML
	return Dose{Mg: roundTenth(mg), ML: roundTenth(ml)}, nil
}

// ComputeDose computes a dose with the default regimen.
func ComputeDose(weight float64, unit Unit) (Dose, error) {
	return DefaultRegimen().Compute(weight, unit)
}

func roundTenth(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
