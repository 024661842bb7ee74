// Package sigma estimates process spread from an individuals series.
//
// Two estimates are produced. Overall is the Bessel-corrected sample
// standard deviation and describes long-term performance. Within is derived
// from the average moving range and describes short-term, common-cause
// variation; control limits and potential capability use it.
package sigma

import (
	"fmt"
	"math"

	"github.com/okian/spc/internal/domain/types"
)

// D2 is the bias-correction constant for a moving range of two consecutive
// observations. It is only valid for that span: subgroup charts (Xbar-R,
// Xbar-S) need the d2/A2/D3/D4 table indexed by subgroup size.
const D2 = 1.128

// Estimate holds both spread estimates for a series.
type Estimate struct {
	Overall float64 `json:"overall"`
	Within  float64 `json:"within"`
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s / float64(len(values))
}

// MovingRanges returns |x[i] - x[i-1]| for i = 1..n-1.
func MovingRanges(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = math.Abs(values[i] - values[i-1])
	}
	return out
}

// MRBar returns the average moving range, 0 when fewer than two values.
func MRBar(values []float64) float64 {
	return Mean(MovingRanges(values))
}

// Overall returns the sample standard deviation (n-1 denominator), 0 when
// fewer than two values are present.
func Overall(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("overall sigma: %w: empty series", types.ErrInvalidInput)
	}
	if len(values) < 2 {
		return 0, nil
	}
	mean := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1)), nil
}

// Within returns MRBar / D2.
func Within(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("within sigma: %w: empty series", types.ErrInvalidInput)
	}
	return MRBar(values) / D2, nil
}

// Compute returns both estimates for values.
func Compute(values []float64) (Estimate, error) {
	overall, err := Overall(values)
	if err != nil {
		return Estimate{}, err
	}
	within, err := Within(values)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Overall: overall, Within: within}, nil
}
