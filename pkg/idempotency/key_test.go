package idempotency

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey_Deterministic(t *testing.T) {
	ts := time.Date(2024, 1, 10, 9, 30, 12, 0, time.UTC)
	a := GenerateKey("infusions", []byte(`{"weight":70}`), ts)
	b := GenerateKey("infusions", []byte(`{"weight":70}`), ts.Add(40*time.Second))

	assert.Equal(t, a, b, "same minute yields the same key")
	assert.Len(t, a, 64)
}

func TestGenerateKey_Distinguishes(t *testing.T) {
	ts := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	base := GenerateKey("infusions", []byte(`{"weight":70}`), ts)

	assert.NotEqual(t, base, GenerateKey("mri_records", []byte(`{"weight":70}`), ts))
	assert.NotEqual(t, base, GenerateKey("infusions", []byte(`{"weight":71}`), ts))
	assert.NotEqual(t, base, GenerateKey("infusions", []byte(`{"weight":70}`), ts.Add(time.Minute)))
}

func TestGenerateKey_NormalizesZone(t *testing.T) {
	utc := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("EST", -5*3600))
	assert.Equal(t, GenerateKey("k", nil, utc), GenerateKey("k", nil, local))
}

func TestKeyFor(t *testing.T) {
	type rec struct {
		Date   string  `json:"date"`
		Weight float64 `json:"weight"`
	}
	ts := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

	k1, err := KeyFor("infusions", rec{Date: "2024-01-10", Weight: 70}, ts)
	require.NoError(t, err)
	k2, err := KeyFor("infusions", rec{Date: "2024-01-10", Weight: 70}, ts)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	_, err = KeyFor("infusions", make(chan int), ts)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("  abc-123  ")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", got)

	got, err = Normalize("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Normalize("has space")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = Normalize(strings.Repeat("x", MaxKeyLength+1))
	assert.ErrorIs(t, err, ErrInvalidKey)
}
