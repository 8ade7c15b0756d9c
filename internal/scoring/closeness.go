package scoring

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// closeness thresholds. A response is "close" when it shares a Double
// Metaphone code with the expected text and scores at least
// phoneticThreshold on Jaro-Winkler, or reaches fuzzyThreshold on
// Jaro-Winkler alone.
const (
	phoneticThreshold = 0.70
	fuzzyThreshold    = 0.85
)

// SoundsClose reports whether a failing response is phonetically or
// textually near the expected reference, along with the similarity found.
// It drives "that sounded close, try again" feedback in the host UI and has
// no effect on scoring.
func SoundsClose(response, expected string) (similarity float64, close bool) {
	resp := normalize(response)
	exp := normalize(expected)
	if resp == "" || exp == "" {
		return 0, false
	}

	respTokens := strings.Fields(resp)
	expTokens := strings.Fields(exp)

	jw := bestJaroWinkler(resp, exp, respTokens, expTokens)

	if phoneticOverlap(respTokens, expTokens) {
		return jw, jw >= phoneticThreshold
	}
	return jw, jw >= fuzzyThreshold
}

// phoneticOverlap reports whether any Double Metaphone code of the response
// tokens matches any code of the expected tokens.
func phoneticOverlap(respTokens, expTokens []string) bool {
	codes := make(map[string]struct{}, len(expTokens)*2)
	for _, t := range expTokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}

	for _, t := range respTokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			if _, ok := codes[p]; ok {
				return true
			}
		}
		if s != "" {
			if _, ok := codes[s]; ok {
				return true
			}
		}
	}
	return false
}

// bestJaroWinkler takes the highest similarity across three comparisons:
// the full strings, the space-stripped strings, and the best pairwise token
// score. Spoken transcripts often merge or split words, so a single strategy
// under-reports similarity.
func bestJaroWinkler(respFull, expFull string, respTokens, expTokens []string) float64 {
	score := matchr.JaroWinkler(respFull, expFull, false)

	if len(respTokens) > 1 || len(expTokens) > 1 {
		concat := matchr.JaroWinkler(strings.Join(respTokens, ""), strings.Join(expTokens, ""), false)
		if concat > score {
			score = concat
		}
	}

	for _, rt := range respTokens {
		for _, et := range expTokens {
			if s := matchr.JaroWinkler(rt, et, false); s > score {
				score = s
			}
		}
	}
	return score
}
