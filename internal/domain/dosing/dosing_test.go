package dosing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

func TestComputeDose_Kilograms(t *testing.T) {
	dose, err := ComputeDose(70, UnitKg)
	require.NoError(t, err)
	assert.Equal(t, 700.0, dose.Mg)
	assert.Equal(t, 7.0, dose.ML)
}

func TestComputeDose_Pounds(t *testing.T) {
	dose, err := ComputeDose(154.3, UnitLb)
	require.NoError(t, err)
	assert.InDelta(t, 700.0, dose.Mg, 0.2)
	assert.Equal(t, 7.0, dose.ML)
}

func TestComputeDose_RoundsHalfUp(t *testing.T) {
	// 0.25 kg -> 2.5 mg -> 0.025 mL
	dose, err := ComputeDose(0.25, UnitKg)
	require.NoError(t, err)
	assert.Equal(t, 2.5, dose.Mg)
	assert.Equal(t, 0.0, dose.ML)

	// 0.05 kg * 10 = 0.5 mg exactly on the half
	dose, err = ComputeDose(0.05, UnitKg)
	require.NoError(t, err)
	assert.Equal(t, 0.5, dose.Mg)

	dose, err = ComputeDose(61.25, UnitKg)
	require.NoError(t, err)
	assert.Equal(t, 612.5, dose.Mg)
	assert.Equal(t, 6.1, dose.ML)
}

func TestComputeDose_Deterministic(t *testing.T) {
	for _, w := range []float64{1, 33.3, 70, 154.3, 499.9} {
		for _, u := range []Unit{UnitKg, UnitLb} {
			first, err := ComputeDose(w, u)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				again, err := ComputeDose(w, u)
				require.NoError(t, err)
				assert.Equal(t, first, again)
			}
		}
	}
}

func TestComputeDose_InvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		weight float64
		unit   Unit
	}{
		{"zero", 0, UnitKg},
		{"negative", -5, UnitKg},
		{"over ceiling", 500.1, UnitKg},
		{"over ceiling lb", 501, UnitLb},
		{"nan", math.NaN(), UnitKg},
		{"inf", math.Inf(1), UnitKg},
		{"unknown unit", 70, Unit("st")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeDose(tc.weight, tc.unit)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestRegimen_ConfigurableCeiling(t *testing.T) {
	r := DefaultRegimen()
	r.MaxWeight = 0
	dose, err := r.Compute(650, UnitKg)
	require.NoError(t, err)
	assert.Equal(t, 6500.0, dose.Mg)

	r.MaxWeight = 200
	_, err = r.Compute(250, UnitKg)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegimen_Validate(t *testing.T) {
	require.NoError(t, DefaultRegimen().Validate())

	bad := DefaultRegimen()
	bad.ConcentrationMgPerML = 0
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidInput)

	bad = DefaultRegimen()
	bad.MgPerKg = -1
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidInput)
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit(" LB ")
	require.NoError(t, err)
	assert.Equal(t, UnitLb, u)

	_, err = ParseUnit("stone")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
