package scoring

import (
	"math"
	"strings"

	"speakwise/internal/script"
)

// DefaultPassThreshold is the minimum free-text score treated as correct.
const DefaultPassThreshold = 50

// Component weights of the free-text heuristic. The 50/30/20 split is part
// of the scoring contract and must not change independently.
const (
	wordOverlapWeight = 50.0
	keyPhraseWeight   = 30.0
	lengthWeight      = 20.0
)

// minKeyPhraseLen filters out fragments too short to be meaningful when the
// expected text is split into key phrases.
const minKeyPhraseLen = 5

// Result is the outcome of scoring one response attempt.
type Result struct {
	Value   int
	Passed  bool
	Attempt int
}

// Scorer computes similarity scores between captured/typed responses and
// expected reference strings. A Scorer is read-only after construction and
// safe for concurrent use.
type Scorer struct {
	passThreshold int
}

// NewScorer returns a scorer with the given pass threshold.
// A threshold <= 0 falls back to DefaultPassThreshold.
func NewScorer(passThreshold int) *Scorer {
	if passThreshold <= 0 {
		passThreshold = DefaultPassThreshold
	}
	return &Scorer{passThreshold: passThreshold}
}

// PassThreshold returns the configured pass threshold.
func (s *Scorer) PassThreshold() int { return s.passThreshold }

// ScoreFreeText scores a free-form response against the expected reference.
func (s *Scorer) ScoreFreeText(response, expected string, attempt int) Result {
	value := FreeTextScore(response, expected)
	return Result{
		Value:   value,
		Passed:  value >= s.passThreshold,
		Attempt: attempt,
	}
}

// ScoreChoice scores a multiple-choice selection. Choice mode is exact:
// picking the correct choice scores 100, anything else scores 0. The chosen
// text identifies the choice so that presentation-order shuffling cannot
// affect scoring.
func (s *Scorer) ScoreChoice(st script.Step, chosenText string, attempt int) Result {
	correct := st.CorrectChoice()
	passed := correct >= 0 &&
		normalize(chosenText) == normalize(st.Choices[correct].Text)

	value := 0
	if passed {
		value = 100
	}
	return Result{Value: value, Passed: passed, Attempt: attempt}
}

// FreeTextScore computes the similarity score in [0, 100] between response
// and expected:
//
//  1. An exact case-insensitive match after trimming scores 100.
//  2. Otherwise three weighted components are summed: word overlap (50),
//     key-phrase containment (30) and length similarity (20), then rounded
//     and clamped.
//
// An empty or whitespace-only response scores 0 regardless of expected.
func FreeTextScore(response, expected string) int {
	resp := normalize(response)
	exp := normalize(expected)

	if resp == "" {
		return 0
	}
	if resp == exp {
		return 100
	}

	total := overlapComponent(resp, exp) + keyPhraseComponent(resp, exp) + lengthComponent(resp, exp)

	value := int(math.Round(total))
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// overlapComponent scores the fraction of expected words present in the
// response, weighted to 50 points.
func overlapComponent(resp, exp string) float64 {
	expWords := strings.Fields(exp)
	if len(expWords) == 0 {
		return 0
	}

	respWords := make(map[string]struct{})
	for _, w := range strings.Fields(resp) {
		respWords[w] = struct{}{}
	}

	matched := 0
	for _, w := range expWords {
		if _, ok := respWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(expWords)) * wordOverlapWeight
}

// keyPhraseComponent splits the expected text on sentence terminators and
// scores the fraction of phrases longer than minKeyPhraseLen that appear
// verbatim in the response, weighted to 30 points. When no phrase passes the
// length filter the component contributes nothing.
func keyPhraseComponent(resp, exp string) float64 {
	phrases := keyPhrases(exp)
	if len(phrases) == 0 {
		return 0
	}

	matched := 0
	for _, p := range phrases {
		if strings.Contains(resp, p) {
			matched++
		}
	}
	return float64(matched) / float64(len(phrases)) * keyPhraseWeight
}

// keyPhrases returns the trimmed sentence fragments of s longer than
// minKeyPhraseLen characters.
func keyPhrases(s string) []string {
	fragments := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	var phrases []string
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if len(f) > minKeyPhraseLen {
			phrases = append(phrases, f)
		}
	}
	return phrases
}

// lengthComponent scores how close the response length is to the expected
// length, weighted to 20 points.
func lengthComponent(resp, exp string) float64 {
	longer := len(resp)
	if len(exp) > longer {
		longer = len(exp)
	}
	if longer == 0 {
		return 0
	}

	diff := len(resp) - len(exp)
	if diff < 0 {
		diff = -diff
	}

	v := lengthWeight - float64(diff)/float64(longer)*lengthWeight
	if v < 0 {
		v = 0
	}
	return v
}
