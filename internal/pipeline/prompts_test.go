package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/timewise-games/content-cli/internal/model"
)

func TestGeneratorUserPrompt_SparseHints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		year     int
		era      model.Era
		contains []string
		excludes []string
	}{
		{
			name:     "BCE year gets figure-centric guidance",
			year:     44,
			era:      model.EraBCE,
			contains: []string{"Period context", "named individuals"},
			excludes: []string{"Renaissance"},
		},
		{
			name:     "two-digit CE year gets dynasty primers",
			year:     50,
			era:      model.EraCE,
			contains: []string{"Period context", "dynasty"},
		},
		{
			name:     "1600 gets Renaissance and Reformation primers",
			year:     1600,
			era:      model.EraCE,
			contains: []string{"Period context", "Renaissance", "Reformation"},
		},
		{
			name:     "range bounds are inclusive",
			year:     1700,
			era:      model.EraCE,
			contains: []string{"Renaissance"},
		},
		{
			name:     "well-documented year has no sparse block",
			year:     1969,
			era:      model.EraCE,
			excludes: []string{"Period context", "dynasty", "Renaissance", "named individuals"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prompt := generatorUserPrompt(tt.year, tt.era)
			for _, want := range tt.contains {
				assert.Contains(t, prompt, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, prompt, not)
			}
		})
	}
}

func TestGeneratorUserPrompt_NamesTargetYear(t *testing.T) {
	t.Parallel()

	assert.Contains(t, generatorUserPrompt(44, model.EraBCE), "44 BCE")
	assert.Contains(t, generatorUserPrompt(1969, model.EraCE), "1969 CE")
}

func TestReviserUserPrompt_CarriesHints(t *testing.T) {
	t.Parallel()

	prompt := reviserUserPrompt(1066, model.EraCE, []model.CritiqueResult{{
		Event:        model.CandidateEvent{CanonicalTitle: "Norman Conquest", EventText: "A duke crosses the sea"},
		RewriteHints: []string{"name the battle site"},
	}})
	assert.Contains(t, prompt, "Norman Conquest")
	assert.Contains(t, prompt, "hint: name the battle site")
}
