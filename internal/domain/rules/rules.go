// Package rules evaluates out-of-control rules against an individuals
// series and its center line and sigma.
//
// A Rule is a self-contained variant: it derives any zone boundaries or run
// counters it needs from (values, mean, sigma). A Set keeps rules in
// registration order and numbers results 1..k in that order, so new rules
// are added by registering them, never by changing the evaluation loop.
package rules

import (
	"math"
)

// Rule flags the indices of values that violate it.
type Rule interface {
	// Describe returns a human-readable statement of the rule.
	Describe() string
	// Evaluate returns the 0-based indices flagged by the rule, in
	// ascending order. It must not retain values.
	Evaluate(values []float64, mean, sigma float64) []int
}

// Result is the outcome of one rule.
type Result struct {
	RuleNumber    int    `json:"rule_number"`
	Description   string `json:"description"`
	FailedIndices []int  `json:"failed_indices"`
	Passed        bool   `json:"passed"`
}

// Set is an ordered collection of rules.
type Set struct {
	rules []Rule
}

// NewSet returns a Set holding rules in the given order.
func NewSet(rules ...Rule) *Set {
	s := &Set{}
	for _, r := range rules {
		s.Register(r)
	}
	return s
}

// Register appends r; its results are numbered after the existing rules.
func (s *Set) Register(r Rule) *Set {
	if r != nil {
		s.rules = append(s.rules, r)
	}
	return s
}

// Len returns the number of registered rules.
func (s *Set) Len() int { return len(s.rules) }

// RunAll evaluates every rule independently. Rules may flag overlapping
// indices.
func (s *Set) RunAll(values []float64, mean, sigma float64) []Result {
	out := make([]Result, 0, len(s.rules))
	for i, r := range s.rules {
		failed := r.Evaluate(values, mean, sigma)
		if failed == nil {
			failed = []int{}
		}
		out = append(out, Result{
			RuleNumber:    i + 1,
			Description:   r.Describe(),
			FailedIndices: failed,
			Passed:        len(failed) == 0,
		})
	}
	return out
}

// Default returns the eight classic rules in their customary order.
func Default() *Set {
	return NewSet(
		BeyondLimits{K: 3},
		SameSide{Run: 9},
		Trend{Run: 6},
		Alternating{Run: 14},
		ZoneCount{Window: 3, Need: 2, K: 2},
		ZoneCount{Window: 5, Need: 4, K: 1},
		Stratification{Run: 15, K: 1},
		Mixture{Run: 8, K: 1},
	)
}

// RunControlRules evaluates the default rule set.
func RunControlRules(values []float64, mean, sigma float64) []Result {
	return Default().RunAll(values, mean, sigma)
}

// Flagged returns the sorted union of failed indices across results.
func Flagged(results []Result) []int {
	seen := make(map[int]struct{})
	last := -1
	for _, r := range results {
		for _, i := range r.FailedIndices {
			seen[i] = struct{}{}
			if i > last {
				last = i
			}
		}
	}
	out := make([]int, 0, len(seen))
	for i := 0; i <= last; i++ {
		if _, ok := seen[i]; ok {
			out = append(out, i)
		}
	}
	return out
}

// usableSigma reports whether z-scores against sigma are meaningful. Zone
// rules flag nothing otherwise, so a constant series never produces
// NaN-driven hits.
func usableSigma(sigma float64) bool {
	return sigma > 0 && !math.IsNaN(sigma) && !math.IsInf(sigma, 0)
}

// side returns +1 above the center line, -1 below, 0 on it.
func side(v, mean float64) int {
	switch {
	case v > mean:
		return 1
	case v < mean:
		return -1
	default:
		return 0
	}
}
