package interview

import (
	"fmt"
	"regexp"
	"strings"
)

// Vocabulary holds the phrase lists the scoring heuristics match against.
// Every list is replaceable without touching the scoring logic; the zero
// value of any list falls back to the corresponding default.
type Vocabulary struct {
	// Fillers are matched case-insensitively at token boundaries, so "like"
	// never matches inside "likely". Multi-word entries are supported.
	Fillers []string

	// ConfidentPhrases and UncertainPhrases adjust the confidence score.
	ConfidentPhrases []string
	UncertainPhrases []string

	// SpecificPhrases signal concrete, measurable results.
	SpecificPhrases []string

	// VaguePhrases signal hand-waving and are penalised per occurrence.
	VaguePhrases []string
}

// Default scoring vocabularies. Exported so callers can extend rather than
// replace wholesale.
var (
	DefaultFillers = []string{
		"um", "uh", "like", "you know", "basically",
		"actually", "literally", "kind of", "sort of", "i mean",
	}

	DefaultConfidentPhrases = []string{
		"i led", "i achieved", "i built", "i designed", "i delivered",
		"i managed", "i drove", "i created", "i improved", "i owned",
	}

	DefaultUncertainPhrases = []string{
		"i guess", "maybe", "i think", "probably", "not sure",
		"i suppose", "hopefully", "i feel like",
	}

	DefaultSpecificPhrases = []string{
		"i implemented", "resulted in", "specifically", "for example",
		"for instance", "measured", "increased", "reduced", "percent", "%",
	}

	DefaultVaguePhrases = []string{
		"stuff", "things", "whatever", "somehow", "something like that",
	}
)

// DefaultVocabulary returns a copy of the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Fillers:          DefaultFillers,
		ConfidentPhrases: DefaultConfidentPhrases,
		UncertainPhrases: DefaultUncertainPhrases,
		SpecificPhrases:  DefaultSpecificPhrases,
		VaguePhrases:     DefaultVaguePhrases,
	}
}

// Scorer evaluates candidate responses with deterministic lexical heuristics.
// No network calls, no model inference: the same input always produces the
// same scores. Safe for concurrent use.
type Scorer struct {
	vocab          Vocabulary
	fillerPatterns []*regexp.Regexp
}

// NewScorer builds a Scorer over vocab. Empty vocabulary lists fall back to
// the defaults. Filler patterns are compiled once up front.
func NewScorer(vocab Vocabulary) *Scorer {
	def := DefaultVocabulary()
	if len(vocab.Fillers) == 0 {
		vocab.Fillers = def.Fillers
	}
	if len(vocab.ConfidentPhrases) == 0 {
		vocab.ConfidentPhrases = def.ConfidentPhrases
	}
	if len(vocab.UncertainPhrases) == 0 {
		vocab.UncertainPhrases = def.UncertainPhrases
	}
	if len(vocab.SpecificPhrases) == 0 {
		vocab.SpecificPhrases = def.SpecificPhrases
	}
	if len(vocab.VaguePhrases) == 0 {
		vocab.VaguePhrases = def.VaguePhrases
	}

	patterns := make([]*regexp.Regexp, len(vocab.Fillers))
	for i, f := range vocab.Fillers {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.ToLower(f)) + `\b`)
	}
	return &Scorer{vocab: vocab, fillerPatterns: patterns}
}

// DetectFillers counts filler-word occurrences in text. Matching is
// case-insensitive and respects token boundaries. The returned matches list
// holds one "expression(count)" token per filler that occurred at least once.
func (s *Scorer) DetectFillers(text string) (int, []string) {
	var (
		total   int
		matches []string
	)
	for i, pat := range s.fillerPatterns {
		n := len(pat.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		total += n
		matches = append(matches, fmt.Sprintf("%s(%d)", s.vocab.Fillers[i], n))
	}
	return total, matches
}

// ConfidenceScore rates text on a 0-100 scale. Starting from a neutral 50 it
// rewards each distinct confident phrase (+5), penalises each distinct
// uncertain phrase (-8), and adjusts for length: +10 beyond 80 words, -15
// under 30.
func (s *Scorer) ConfidenceScore(text string) int {
	lower := strings.ToLower(text)
	score := 50
	for _, p := range s.vocab.ConfidentPhrases {
		if strings.Contains(lower, p) {
			score += 5
		}
	}
	for _, p := range s.vocab.UncertainPhrases {
		if strings.Contains(lower, p) {
			score -= 8
		}
	}
	switch wc := wordCount(text); {
	case wc > 80:
		score += 10
	case wc < 30:
		score -= 15
	}
	return clampScore(score)
}

// ProfessionalismScore rates delivery on a 0-100 scale. Starting from 80 it
// subtracts a filler-density penalty (20% of the filler rate per hundred
// words), a flat 3 points per filler, and 15 points for very short answers.
func (s *Scorer) ProfessionalismScore(text string, fillerCount int) int {
	wc := wordCount(text)
	score := 80
	if wc > 0 {
		score -= int(float64(fillerCount) / float64(wc) * 100 * 0.20)
	}
	score -= fillerCount * 3
	if wc < 30 {
		score -= 15
	}
	return clampScore(score)
}

// QualityVerdict decides whether text passes the current question and
// explains why. The feedback string concatenates every triggered rationale
// fragment plus the numeric score; passing means a clamped score of at
// least 60.
func (s *Scorer) QualityVerdict(text string, fillerCount int) (passed bool, feedback string, score int) {
	lower := strings.ToLower(text)
	wc := wordCount(text)
	score = 50
	var reasons []string

	switch {
	case wc < 30:
		score -= 20
		reasons = append(reasons, "the answer is too short")
	case wc > 80:
		score += 15
		reasons = append(reasons, "good length and detail")
	}

	switch {
	case fillerCount > 5:
		score -= 15
		reasons = append(reasons, "too many filler words")
	case fillerCount >= 3:
		score -= 8
		reasons = append(reasons, "several filler words")
	}

	specific := false
	for _, p := range s.vocab.SpecificPhrases {
		if strings.Contains(lower, p) {
			specific = true
			break
		}
	}
	if specific {
		score += 20
		reasons = append(reasons, "includes concrete results")
	} else {
		score -= 15
		reasons = append(reasons, "lacks specifics")
	}

	vague := 0
	for _, p := range s.vocab.VaguePhrases {
		vague += strings.Count(lower, p)
	}
	if vague > 0 {
		score -= 5 * vague
		reasons = append(reasons, "vague language")
	}

	score = clampScore(score)
	passed = score >= 60
	feedback = fmt.Sprintf("%s (score: %d/100)", strings.Join(reasons, "; "), score)
	return passed, feedback, score
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
