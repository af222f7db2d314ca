package pipeline

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/timewise-games/content-cli/internal/model"
)

// centuryTerms are lowercase tokens that name a century, millennium, or era
// label and therefore leak the answer.
var centuryTerms = map[string]bool{
	"century":    true,
	"centuries":  true,
	"millennium": true,
	"millennia":  true,
	"bce":        true,
	"bc":         true,
	"ce":         true,
	"ad":         true,
}

// spelledYearTerms are number words that typically appear in a spelled-out
// year ("nineteen sixty-nine").
var spelledYearTerms = map[string]bool{
	"ten": true, "eleven": true, "twelve": true, "thirteen": true,
	"fourteen": true, "fifteen": true, "sixteen": true, "seventeen": true,
	"eighteen": true, "nineteen": true, "twenty": true, "thirty": true,
	"forty": true, "fifty": true, "sixty": true, "seventy": true,
	"eighty": true, "ninety": true, "hundred": true, "thousand": true,
}

// normalizeText applies NFC normalization, trims, and collapses internal
// whitespace runs to single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// deriveLeakFlags inspects normalized event text for year-revealing content:
// numerals valued ten or above, century/era terms, and spelled-out year
// words.
func deriveLeakFlags(text string) model.LeakFlags {
	var flags model.LeakFlags

	for _, run := range digitRuns(text) {
		if n, err := strconv.Atoi(run); err == nil && n >= 10 {
			flags.HasDigits = true
			break
		}
		if len(run) >= 2 {
			// Overflow-length runs are year-like regardless of value.
			flags.HasDigits = true
			break
		}
	}

	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()'\"")
		if centuryTerms[word] {
			flags.HasCenturyTerms = true
		}
		if spelledYearTerms[word] {
			flags.HasSpelledYear = true
		}
		// Hyphenated spelled years ("sixty-nine").
		if head, _, ok := strings.Cut(word, "-"); ok && spelledYearTerms[head] {
			flags.HasSpelledYear = true
		}
	}

	return flags
}

func digitRuns(text string) []string {
	var runs []string
	var cur strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		runs = append(runs, cur.String())
	}
	return runs
}

// sanitizeCandidate normalizes all text fields, clamps numeric fields to
// their documented ranges, and re-derives leak flags from the normalized
// text. Every candidate passes through here before leaving the stage that
// created it.
func sanitizeCandidate(ev model.CandidateEvent) model.CandidateEvent {
	ev.CanonicalTitle = normalizeText(ev.CanonicalTitle)
	ev.EventText = normalizeText(ev.EventText)
	ev.Geo = normalizeText(ev.Geo)

	if ev.DifficultyGuess < 1 {
		ev.DifficultyGuess = 1
	} else if ev.DifficultyGuess > 5 {
		ev.DifficultyGuess = 5
	}
	if ev.Confidence < 0 {
		ev.Confidence = 0
	} else if ev.Confidence > 1 {
		ev.Confidence = 1
	}

	ev.LeakFlags = deriveLeakFlags(ev.EventText)
	return ev
}
