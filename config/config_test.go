package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workreq/survey"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Outcomes, 8)
	assert.Equal(t, 2023, cfg.Cross.Rules(cfg.Rules).PolicyYear)
	assert.Equal(t, 2, cfg.Panel.Rules(cfg.Rules).PolicyYear)
	assert.Nil(t, cfg.Cross.Reshape)
	require.NotNil(t, cfg.Panel.Reshape)
	assert.Equal(t, "year", cfg.Panel.Columns.Year)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
workers: 8
log:
  mode: prod
cross:
  path: acs.csv
  design:
    singleton: certainty
panel:
  reshape: null
eligibility:
  age_max: 49
rules:
  medicaid:
    3: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "prod", cfg.Log.Mode)
	assert.Equal(t, "info", cfg.Log.Level, "untouched keys keep defaults")
	assert.Equal(t, "acs.csv", cfg.Cross.Path)
	assert.Equal(t, survey.SingletonCertainty, cfg.Cross.Design.Singleton)
	assert.Equal(t, "PERWT", cfg.Cross.Design.Weight)
	assert.Nil(t, cfg.Panel.Reshape)
	assert.Equal(t, 49.0, cfg.Eligibility.AgeMax)
	assert.Equal(t, 19.0, cfg.Eligibility.AgeMin)
	assert.Equal(t, survey.CodeMap{1: false, 2: true, 3: true}, cfg.Rules.Medicaid)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "workers: [1"},
		{"same states", "rules:\n  comparison_state: 13\n"},
		{"no workers", "workers: 0\n"},
		{"unknown outcome", "outcomes: [medicaid, income]\n"},
		{"bad policy", "panel:\n  design:\n    singleton: ignore\n"},
		{"no weight", "cross:\n  design:\n    weight: \"\"\n"},
		{"bad log mode", "log:\n  mode: verbose\n"},
		{"inverted ages", "eligibility:\n  age_min: 70\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	out, err := Default().Dump()
	require.NoError(t, err)
	assert.Contains(t, out, "treated_state: 13")
	assert.Contains(t, out, "weight: ASECWT")
}
