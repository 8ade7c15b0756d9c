package script

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Kind distinguishes presentational steps from steps requiring a response.
type Kind string

const (
	KindNarration   Kind = "narration"
	KindInteractive Kind = "interactive"
)

// Choice is one candidate answer for a multiple-choice step.
type Choice struct {
	Text     string            `yaml:"text"`
	Correct  bool              `yaml:"correct"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// Step is one unit of scripted content.
type Step struct {
	ID               string   `yaml:"id"`
	Kind             Kind     `yaml:"kind"`
	PromptText       string   `yaml:"prompt"`
	DisplayText      string   `yaml:"display,omitempty"`
	ExpectedResponse string   `yaml:"expected,omitempty"`
	Choices          []Choice `yaml:"choices,omitempty"`
	MaxAttempts      int      `yaml:"max_attempts,omitempty"`
	MaxReplays       int      `yaml:"max_replays,omitempty"`
}

// Interactive reports whether the step requires a user response.
func (s Step) Interactive() bool {
	return s.Kind == KindInteractive
}

// MultipleChoice reports whether the step is answered by picking a choice
// rather than by free-form speech or text.
func (s Step) MultipleChoice() bool {
	return len(s.Choices) > 0
}

// CorrectChoice returns the index of the correct choice, or -1 when the step
// has no choices.
func (s Step) CorrectChoice() int {
	for i, c := range s.Choices {
		if c.Correct {
			return i
		}
	}
	return -1
}

// RevealText returns the text shown/spoken during the reveal phase: the
// display text when present, otherwise the expected response.
func (s Step) RevealText() string {
	if s.DisplayText != "" {
		return s.DisplayText
	}
	return s.ExpectedResponse
}

// Script is an ordered immutable sequence of steps plus aggregate metadata.
// Construct with New (or the YAML loader); a Script is never mutated after
// construction and is safe to share across concurrent sessions.
type Script struct {
	ID      string
	UnitID  string
	TopicID string
	Title   string

	steps            []Step
	wordCount        int
	estimatedSeconds int
}

// readingWPM is the reading speed used for the estimated-duration metadata.
const readingWPM = 160

// interactiveAllowanceSeconds is the extra time budgeted per interactive step
// for the learner to respond.
const interactiveAllowanceSeconds = 20

// New validates steps and builds a Script. Validation failures are fatal:
// a session must never start from a malformed script.
func New(id, unitID, topicID, title string, steps []Step) (*Script, error) {
	var errs []error

	if id == "" {
		errs = append(errs, errors.New("script id is required"))
	}
	if unitID == "" {
		errs = append(errs, errors.New("script unit is required"))
	}
	if len(steps) == 0 {
		errs = append(errs, errors.New("script has no steps"))
	}

	seen := make(map[string]int, len(steps))
	for i, st := range steps {
		prefix := fmt.Sprintf("steps[%d]", i)
		if st.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", prefix))
		} else if prev, ok := seen[st.ID]; ok {
			errs = append(errs, fmt.Errorf("%s: id %q duplicates steps[%d]", prefix, st.ID, prev))
		} else {
			seen[st.ID] = i
		}

		if st.PromptText == "" {
			errs = append(errs, fmt.Errorf("%s: prompt is required", prefix))
		}
		if st.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("%s: max_attempts must not be negative", prefix))
		}
		if st.MaxReplays < 0 {
			errs = append(errs, fmt.Errorf("%s: max_replays must not be negative", prefix))
		}

		switch st.Kind {
		case KindNarration:
			if st.ExpectedResponse != "" || len(st.Choices) > 0 {
				errs = append(errs, fmt.Errorf("%s: narration step must not carry an expected response or choices", prefix))
			}
		case KindInteractive:
			if st.ExpectedResponse == "" && len(st.Choices) == 0 {
				errs = append(errs, fmt.Errorf("%s: interactive step needs an expected response or choices", prefix))
			}
			if len(st.Choices) > 0 {
				correct := 0
				for _, c := range st.Choices {
					if c.Correct {
						correct++
					}
				}
				if correct != 1 {
					errs = append(errs, fmt.Errorf("%s: choices must have exactly one correct entry, found %d", prefix, correct))
				}
			}
		default:
			errs = append(errs, fmt.Errorf("%s: kind %q is invalid; valid values: narration, interactive", prefix, st.Kind))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("script %q: %w", id, err)
	}

	sc := &Script{
		ID:      id,
		UnitID:  unitID,
		TopicID: topicID,
		Title:   title,
		steps:   make([]Step, len(steps)),
	}
	copy(sc.steps, steps)

	words := 0
	interactive := 0
	for _, st := range sc.steps {
		words += len(strings.Fields(st.PromptText)) + len(strings.Fields(st.DisplayText))
		if st.Interactive() {
			interactive++
		}
	}
	sc.wordCount = words
	sc.estimatedSeconds = words*60/readingWPM + interactive*interactiveAllowanceSeconds

	return sc, nil
}

// Len returns the number of steps.
func (sc *Script) Len() int { return len(sc.steps) }

// At returns the step at index i. It panics if i is out of range, matching
// slice semantics.
func (sc *Script) At(i int) Step { return sc.steps[i] }

// WordCount returns the total word count across prompts and display texts.
func (sc *Script) WordCount() int { return sc.wordCount }

// EstimatedSeconds returns the estimated total session duration.
func (sc *Script) EstimatedSeconds() int { return sc.estimatedSeconds }

// Steps returns a copy of the step sequence.
func (sc *Script) Steps() []Step {
	out := make([]Step, len(sc.steps))
	copy(out, sc.steps)
	return out
}

// ShuffledChoices returns the step's choices in randomized order. Shuffling
// is a presentation concern only; correctness travels with each Choice, so
// scoring is unaffected.
func ShuffledChoices(st Step) []Choice {
	out := make([]Choice, len(st.Choices))
	copy(out, st.Choices)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
