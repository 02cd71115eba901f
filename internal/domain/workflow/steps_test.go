package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDefinition(t *testing.T) {
	def, err := DefaultDefinition()
	require.NoError(t, err)

	assert.Equal(t, "Soliris REMS Program", def.Name)
	require.Equal(t, 6, def.Len())
	for i, s := range def.Steps {
		assert.Equal(t, i+1, s.Ordinal)
		assert.NotEmpty(t, s.Content, "step %d content", s.Ordinal)
	}
	first, ok := def.Step(1)
	require.True(t, ok)
	assert.Equal(t, "Initial Provider Requirements", first.Title)
	last, ok := def.Step(6)
	require.True(t, ok)
	assert.Equal(t, "Ongoing Monitoring", last.Title)

	_, ok = def.Step(0)
	assert.False(t, ok)
	_, ok = def.Step(7)
	assert.False(t, ok)

	assert.Len(t, def.Monitoring.Checklist, 4)
	assert.Contains(t, def.Monitoring.Warning, "Active Monitoring Required")
}

func TestParseDefinition_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no steps", "name: empty\nsteps: []\n"},
		{"blank title", "name: x\nsteps:\n  - title: one\n  - title: \"  \"\n"},
		{"malformed", "steps: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadDefinition(t *testing.T) {
	def, err := LoadDefinition("")
	require.NoError(t, err)
	assert.Equal(t, 6, def.Len())

	path := filepath.Join(t.TempDir(), "steps.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: short\nsteps:\n  - title: A\n  - title: B\n"), 0o600))
	def, err = LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, 2, def.Len())
	b, _ := def.Step(2)
	assert.Equal(t, "B", b.Title)

	_, err = LoadDefinition(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
