package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredFormulasAreValid(t *testing.T) {
	for version := range formulas {
		f, err := LookupFormula(version)
		require.NoError(t, err)
		assert.NoError(t, f.Validate(), version)
		assert.Equal(t, version, f.Version)
	}
}

func TestLookupFormula_Unknown(t *testing.T) {
	_, err := LookupFormula("9.9")
	assert.ErrorIs(t, err, ErrUnknownFormula)
}

func TestCurrentFormulaIsRegistered(t *testing.T) {
	_, err := LookupFormula(CurrentFormulaVersion)
	assert.NoError(t, err)
}

func TestFormula_WithHalfLife(t *testing.T) {
	f, _ := LookupFormula(FormulaV2)
	assert.Equal(t, 45.0, f.WithHalfLife(45).Engagement.HalfLifeDays)
	assert.Equal(t, f.Engagement.HalfLifeDays, f.WithHalfLife(0).Engagement.HalfLifeDays)

	// the registry copy is untouched
	again, _ := LookupFormula(FormulaV2)
	assert.Equal(t, 90.0, again.Engagement.HalfLifeDays)
}

func TestFormula_Validate(t *testing.T) {
	base, _ := LookupFormula(FormulaV2)

	tests := []struct {
		name   string
		mutate func(*Formula)
	}{
		{"weights over one", func(f *Formula) { f.Weights.Volume = 0.1 }},
		{"negative weight", func(f *Formula) { f.Weights.Spam = -0.1; f.Weights.Sentiment = 0.7 }},
		{"quality weights", func(f *Formula) { f.Quality.LengthWeight = 0 }},
		{"zero length target", func(f *Formula) { f.Quality.LengthTarget = 0 }},
		{"engagement weights", func(f *Formula) { f.Engagement.RecencyWeight = 0.9 }},
		{"zero half-life", func(f *Formula) { f.Engagement.HalfLifeDays = 0 }},
		{"no saturation", func(f *Formula) { f.VolumeSaturation = 0 }},
		{"no version", func(f *Formula) { f.Version = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.mutate(&f)
			assert.Error(t, f.Validate())
		})
	}
}
