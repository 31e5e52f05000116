package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ataa/internal/model"
)

func TestDefaults_Valid(t *testing.T) {
	r := Defaults()
	require.NoError(t, r.Validate())
	assert.Equal(t, 55, r.Score.RawMax)
	assert.Equal(t, 30, r.Score.Max)
	assert.Equal(t, 50, r.Allocation.MaxHouseholds)
}

func TestDefaults_FreshSlices(t *testing.T) {
	a := Defaults()
	a.Predictor.Fallback[0].Confidence = 0
	b := Defaults()
	assert.Equal(t, 0.70, b.Predictor.Fallback[0].Confidence)
}

func TestVulnerabilityWeight(t *testing.T) {
	w := Defaults().Vulnerability
	assert.Equal(t, 5, w.Weight(model.FlagOrphans))
	assert.Equal(t, 4, w.Weight(model.FlagElderlyAlone))
	assert.Equal(t, 2, w.Weight(model.FlagLargeFamily))
	assert.Equal(t, 1, w.Weight("something_new"))
}

func TestFamilyAndRecencyBands(t *testing.T) {
	r := Defaults()
	assert.Equal(t, 0, r.Family.SizePoints(2))
	assert.Equal(t, 1, r.Family.SizePoints(3))
	assert.Equal(t, 2, r.Family.SizePoints(5))
	assert.Equal(t, 3, r.Family.SizePoints(7))

	assert.Equal(t, 1, r.Recency.Points(7))
	assert.Equal(t, 3, r.Recency.Points(8))
	assert.Equal(t, 5, r.Recency.Points(15))
	assert.Equal(t, 7, r.Recency.Points(22))
	assert.Equal(t, 10, r.Recency.Points(31))
}

func TestParse_OverridesOnlyGivenFields(t *testing.T) {
	src := `
vulnerability: orphans: 6
allocation: max_households: 10
predictor: fallback: [{category: "water", confidence: 0.5, urgency: "low", reason: "water first"}]
`
	r, err := Parse("override.cue", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, 6, r.Vulnerability.Orphans)
	assert.Equal(t, 4, r.Vulnerability.Disabled)
	assert.Equal(t, 10, r.Allocation.MaxHouseholds)
	require.Len(t, r.Predictor.Fallback, 1)
	assert.Equal(t, model.CategoryWater, r.Predictor.Fallback[0].Category)
	assert.Len(t, r.Predictor.Infant, 3)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"negative weight", `vulnerability: orphans: -1`},
		{"unknown field", `vulnerability: goats: 2`},
		{"unknown category", `predictor: fallback: [{category: "cars", confidence: 0.5, urgency: "low", reason: "x"}]`},
		{"confidence above one", `predictor: fallback: [{category: "food", confidence: 1.5, urgency: "low", reason: "x"}]`},
		{"zero cap", `allocation: max_households: 0`},
		{"syntax", `vulnerability: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), r)

	path := filepath.Join(t.TempDir(), "rules.cue")
	require.NoError(t, os.WriteFile(path, []byte(`urgency: critical: 5`), 0o644))
	r, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, r.Urgency.Critical)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
