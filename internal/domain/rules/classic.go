package rules

import (
	"fmt"
	"math"
)

// BeyondLimits flags a point more than K sigma from the center line.
type BeyondLimits struct {
	K float64
}

func (r BeyondLimits) Describe() string {
	return fmt.Sprintf("1 point more than %s standard deviations from center line", fmtK(r.K))
}

func (r BeyondLimits) Evaluate(values []float64, mean, sigma float64) []int {
	out := []int{}
	if !usableSigma(sigma) {
		return out
	}
	limit := r.K * sigma
	for i, v := range values {
		if math.Abs(v-mean) > limit {
			out = append(out, i)
		}
	}
	return out
}

// SameSide flags the point that completes Run consecutive points on one
// side of the center line, and every further point that extends the run.
type SameSide struct {
	Run int
}

func (r SameSide) Describe() string {
	return fmt.Sprintf("%d points in a row on same side of center line", r.Run)
}

func (r SameSide) Evaluate(values []float64, mean, _ float64) []int {
	out := []int{}
	run, last := 0, 0
	for i, v := range values {
		s := side(v, mean)
		switch {
		case s == 0:
			run = 0
		case s == last:
			run++
		default:
			run = 1
		}
		last = s
		if run >= r.Run {
			out = append(out, i)
		}
	}
	return out
}

// Trend flags the point that completes Run points in a row all increasing
// or all decreasing.
type Trend struct {
	Run int
}

func (r Trend) Describe() string {
	return fmt.Sprintf("%d points in a row, all increasing or all decreasing", r.Run)
}

func (r Trend) Evaluate(values []float64, _, _ float64) []int {
	out := []int{}
	// run counts points, so a single step makes a run of two.
	run, dir := 1, 0
	for i := 1; i < len(values); i++ {
		d := side(values[i], values[i-1])
		switch {
		case d == 0:
			run, dir = 1, 0
		case d == dir:
			run++
		default:
			run, dir = 2, d
		}
		if run >= r.Run {
			out = append(out, i)
		}
	}
	return out
}

// Alternating flags the point that completes Run points in a row
// alternating up and down.
type Alternating struct {
	Run int
}

func (r Alternating) Describe() string {
	return fmt.Sprintf("%d points in a row, alternating up and down", r.Run)
}

func (r Alternating) Evaluate(values []float64, _, _ float64) []int {
	out := []int{}
	run, prev := 1, 0
	for i := 1; i < len(values); i++ {
		d := side(values[i], values[i-1])
		switch {
		case d == 0:
			run = 1
		case prev != 0 && d == -prev:
			run++
		default:
			run = 2
		}
		prev = d
		if run >= r.Run {
			out = append(out, i)
		}
	}
	return out
}

// ZoneCount flags a point beyond K sigma when at least Need of the last
// Window points, including it, lie beyond K sigma on the same side.
type ZoneCount struct {
	Window int
	Need   int
	K      float64
}

func (r ZoneCount) Describe() string {
	return fmt.Sprintf("%d out of %d points more than %s standard deviations from center line (same side)",
		r.Need, r.Window, fmtK(r.K))
}

func (r ZoneCount) Evaluate(values []float64, mean, sigma float64) []int {
	out := []int{}
	if !usableSigma(sigma) {
		return out
	}
	limit := r.K * sigma
	zone := func(v float64) int {
		switch {
		case v-mean > limit:
			return 1
		case mean-v > limit:
			return -1
		default:
			return 0
		}
	}
	for i := range values {
		s := zone(values[i])
		if s == 0 {
			continue
		}
		count := 0
		for j := i; j >= 0 && j > i-r.Window; j-- {
			if zone(values[j]) == s {
				count++
			}
		}
		if count >= r.Need {
			out = append(out, i)
		}
	}
	return out
}

// Stratification flags the point that completes Run points in a row within
// K sigma of the center line, on either side.
type Stratification struct {
	Run int
	K   float64
}

func (r Stratification) Describe() string {
	return fmt.Sprintf("%d points in a row within %s standard deviation of center line (either side)", r.Run, fmtK(r.K))
}

func (r Stratification) Evaluate(values []float64, mean, sigma float64) []int {
	out := []int{}
	if !usableSigma(sigma) {
		return out
	}
	limit := r.K * sigma
	run := 0
	for i, v := range values {
		if math.Abs(v-mean) < limit {
			run++
		} else {
			run = 0
		}
		if run >= r.Run {
			out = append(out, i)
		}
	}
	return out
}

// Mixture flags the point that completes Run points in a row more than K
// sigma from the center line, on either side.
type Mixture struct {
	Run int
	K   float64
}

func (r Mixture) Describe() string {
	return fmt.Sprintf("%d points in a row more than %s standard deviation from center line (either side)", r.Run, fmtK(r.K))
}

func (r Mixture) Evaluate(values []float64, mean, sigma float64) []int {
	out := []int{}
	if !usableSigma(sigma) {
		return out
	}
	limit := r.K * sigma
	run := 0
	for i, v := range values {
		if math.Abs(v-mean) > limit {
			run++
		} else {
			run = 0
		}
		if run >= r.Run {
			out = append(out, i)
		}
	}
	return out
}

func fmtK(k float64) string {
	return fmt.Sprintf("%g", k)
}
