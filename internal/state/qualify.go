// ABOUTME: Lead qualification predicate over collected qualification answers
// ABOUTME: A lead needs a timeline plus either a budget or a known decision process

package state

import "strings"

// negativeAnswers are answers that mean "no information".
var negativeAnswers = map[string]bool{
	"":        true,
	"unknown": true,
	"none":    true,
	"n/a":     true,
	"no":      true,
}

func known(q map[string]string, key string) bool {
	v, ok := q[key]
	if !ok {
		return false
	}
	return !negativeAnswers[strings.ToLower(strings.TrimSpace(v))]
}

// Qualified reports whether the answers describe a qualified lead: a
// timeline is known and at least one of budget or decision process is known.
func Qualified(q map[string]string) bool {
	if !known(q, QualTimeline) {
		return false
	}
	return known(q, QualBudget) || known(q, QualDecisionProcess)
}
