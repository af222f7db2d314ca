// Package pipeline implements the three content-generation stages: the
// Generator proposes candidate clues for a year, the Critic scores them, and
// the Reviser rewrites the failures. Each stage is one LLM call plus
// deterministic post-processing.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/timewise-games/content-cli/internal/model"
)

const (
	minCandidates = 12
	maxCandidates = 18
)

const generatorSystemPrompt = `You are a historical research assistant producing clues for a year-guessing game.

For the single target year given by the user, propose between 12 and 18 real, verifiable historical events.

Hard constraints for every event text:
- The event must have occurred in exactly the target year.
- Never write any numeral with a value of ten or greater.
- Never name a century, a millennium, or an era label such as BCE, CE, AD, or BC.
- Never spell out the year or any part of it in words.
- Write in present tense, at most twenty words.
- Vary topic (politics, science, art, religion, exploration, daily life) and geography across the set.

For each event also supply a canonical title, the place it happened, a difficulty guess from one (famous) to five (obscure), your confidence that it is factual, a category, a fame level, and topical tags.`

const criticSystemPrompt = `You are a strict reviewer of clues for a year-guessing game.

For each numbered candidate, score these dimensions from 0 to 1:
- factual: likelihood the event really happened in the stated year
- leak_risk: how directly the text gives away the year (numerals, century or era names, spelled-out years)
- ambiguity: risk that the clue matches many different years equally well
- guessability: how plausibly a knowledgeable player could date it
- diversity: how much it adds to the set's topical and geographic spread

For any candidate you would reject, list concrete issues and actionable rewrite hints.`

const reviserSystemPrompt = `You rewrite rejected clues for a year-guessing game.

For each numbered rejected clue, produce one improved rewrite that addresses every listed hint while keeping the same underlying event.

The rewrite obeys the same rules as the original: no numeral of ten or greater, no century or era names, no spelled-out year, present tense, at most twenty words.`

// sparseHint returns period-specific context for years with thin public
// documentation, or "" for well-documented periods. The hints measurably
// raise generation success for sparse years.
func sparseHint(year int, era model.Era) string {
	switch {
	case era == model.EraBCE:
		return `This is a sparsely documented BCE year. Structure events around named individuals: rulers, generals, philosophers, and founders whose lives anchor the period. Consider Roman consuls and wars, Greek city-states and thinkers, Han and Qin dynasty China, Ptolemaic Egypt, and Mauryan India.`
	case year < 100:
		return `This is a sparsely documented early first-millennium year. Lean on dynasty and era primers: the Julio-Claudian emperors of Rome, the Han dynasty in China, the Parthian empire, early rabbinic Judaism, and the first generation of Christianity.`
	case year >= 1500 && year <= 1700:
		return `Draw on Renaissance and Reformation currents of this period: printing and vernacular scripture, Habsburg-Ottoman rivalry, transatlantic voyages and colonies, the Scientific Revolution, and the wars of religion.`
	default:
		return ""
	}
}

func generatorUserPrompt(year int, era model.Era) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target year: %d %s.\n", year, era)
	if hint := sparseHint(year, era); hint != "" {
		b.WriteString("\nPeriod context:\n")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nReturn %d to %d events.", minCandidates, maxCandidates)
	return b.String()
}

func criticUserPrompt(year int, era model.Era, candidates []model.CandidateEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target year: %d %s.\n\nCandidates:\n", year, era)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s — %s (%s)\n", i, c.CanonicalTitle, c.EventText, c.Geo)
	}
	return b.String()
}

func reviserUserPrompt(year int, era model.Era, failures []model.CritiqueResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target year: %d %s.\n\nRejected clues:\n", year, era)
	for i, f := range failures {
		fmt.Fprintf(&b, "%d. %s — %s\n", i, f.Event.CanonicalTitle, f.Event.EventText)
		for _, hint := range f.RewriteHints {
			fmt.Fprintf(&b, "   hint: %s\n", hint)
		}
	}
	return b.String()
}
