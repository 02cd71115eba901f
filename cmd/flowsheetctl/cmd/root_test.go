package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-flowsheet/internal/app"
	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/dosing"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/domain/workflow"
	"github.com/drfirst/go-flowsheet/internal/infrastructure/sqlite"
)

// useTempStore points the configuration at a fresh SQLite file.
func useTempStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "flowsheet.db")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRoot(context.Background(), "abc123")
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// seed records one infusion and completes the first REMS step.
func seed(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, path, nil)
	require.NoError(t, err)
	defer store.Close()

	def, err := workflow.DefaultDefinition()
	require.NoError(t, err)
	cfg := app.DefaultConfig()
	cfg.Now = func() time.Time { return time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) }
	s, err := app.NewSession(ctx, ledger.New(store, nil), def, cfg, nil, nil)
	require.NoError(t, err)

	_, err = s.Handle(ctx, app.SubmitInfusion{Date: domain.NewDate(2024, 1, 1), Weight: 70, Unit: dosing.UnitKg})
	require.NoError(t, err)
	_, err = s.Handle(ctx, app.CompleteStep{Ordinal: 1, On: domain.NewDate(2024, 1, 10)})
	require.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "abc123\n", out)
}

func TestDose(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "dose", "--weight", "70", "--unit", "kg")
	require.NoError(t, err)
	assert.Equal(t, "Dose: 700.0 mg (7.0 mL)\n", out)

	_, err = run(t, "dose", "--weight=-1")
	assert.Error(t, err)
	_, err = run(t, "dose", "--weight", "70", "--unit", "stone")
	assert.Error(t, err)
}

func TestDose_ConfiguredRegimen(t *testing.T) {
	useTempStore(t)
	t.Setenv("DOSE_MG_PER_KG", "5")

	out, err := run(t, "dose", "-w", "70")
	require.NoError(t, err)
	assert.Equal(t, "Dose: 350.0 mg (3.5 mL)\n", out)
}

func TestNextDue(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "next-due", "--last", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "Next due: 2024-01-15\n", out)

	out, err = run(t, "next-due", "--last", "2024-01-31", "--interval", "28", "--infusion-number", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Next due: 2024-02-28")
	assert.Contains(t, out, "MRI required before infusion #5: Pre-infusion #5")

	_, err = run(t, "next-due", "--last", "not-a-date")
	assert.Error(t, err)
}

func TestSteps(t *testing.T) {
	path := useTempStore(t)
	seed(t, path)

	out, err := run(t, "steps")
	require.NoError(t, err)
	assert.Contains(t, out, "(1/6 completed)")
	assert.Contains(t, out, "[x] 1. Initial Provider Requirements (2024-01-10)")
	assert.Contains(t, out, "[>] 2. Patient Screening & Education")
	assert.Contains(t, out, "[ ] 6. Ongoing Monitoring")
}

func TestExport(t *testing.T) {
	path := useTempStore(t)
	seed(t, path)

	out, err := run(t, "export")
	require.NoError(t, err)
	var doc map[string][]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["infusions"], 1)
	assert.Len(t, doc["step_completions"], 1)
	assert.Empty(t, doc["mri_records"])

	file := filepath.Join(t.TempDir(), "bundle.json")
	out, err = run(t, "export", "--format", "fhir", "--out", file)
	require.NoError(t, err)
	assert.Equal(t, "Exported 2 entries to "+file+"\n", out)
	assert.FileExists(t, file)

	_, err = run(t, "export", "--format", "csv")
	assert.Error(t, err)
}
