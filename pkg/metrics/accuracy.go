// Package metrics provides answer-grading functions used to score
// workflow outputs against expected answers.
package metrics

import (
	"strings"
)

// normalize lowercases, trims and collapses whitespace so formatting
// differences do not count against an answer.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// ExactMatch scores 1.0 when the answers are equal after normalization,
// 0.0 otherwise.
func ExactMatch(expected, actual string) float64 {
	if normalize(expected) == normalize(actual) {
		return 1.0
	}
	return 0.0
}

// Contains scores 1.0 when the normalized expected answer appears
// anywhere in the actual answer. Useful when models wrap the answer in
// prose.
func Contains(expected, actual string) float64 {
	want := normalize(expected)
	if want == "" {
		return 0.0
	}
	if strings.Contains(normalize(actual), want) {
		return 1.0
	}
	return 0.0
}

// TokenF1 computes the token-level F1 overlap between expected and
// actual answers, the standard partial-credit metric for free-form QA.
func TokenF1(expected, actual string) float64 {
	expectedTokens := strings.Fields(normalize(expected))
	actualTokens := strings.Fields(normalize(actual))
	if len(expectedTokens) == 0 || len(actualTokens) == 0 {
		return 0.0
	}

	counts := make(map[string]int, len(expectedTokens))
	for _, tok := range expectedTokens {
		counts[tok]++
	}
	overlap := 0
	for _, tok := range actualTokens {
		if counts[tok] > 0 {
			counts[tok]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0.0
	}

	precision := float64(overlap) / float64(len(actualTokens))
	recall := float64(overlap) / float64(len(expectedTokens))
	return 2 * precision * recall / (precision + recall)
}
