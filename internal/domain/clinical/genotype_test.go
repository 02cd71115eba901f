package clinical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-flowsheet/internal/domain"
)

func TestParseApoE4Status(t *testing.T) {
	s, err := ParseApoE4Status("")
	require.NoError(t, err)
	assert.Equal(t, ApoE4Unknown, s)

	s, err = ParseApoE4Status("heterozygote")
	require.NoError(t, err)
	assert.Equal(t, ApoE4Heterozygote, s)
	assert.Equal(t, "Moderate ARIA Risk", s.RiskNote())

	assert.Equal(t, "High ARIA Risk", ApoE4Homozygote.RiskNote())
	assert.Equal(t, "ARIA risk not assessed", ApoE4Unknown.RiskNote())

	_, err = ParseApoE4Status("carrier")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
