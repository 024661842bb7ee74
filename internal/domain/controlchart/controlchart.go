// Package controlchart computes Individuals (I-Chart) control limits.
package controlchart

import (
	"fmt"
	"math"

	"github.com/okian/spc/internal/domain/sigma"
	"github.com/okian/spc/internal/domain/types"
)

// LimitSigmas is the distance of the control limits from the center line.
const LimitSigmas = 3.0

// Result is an I-Chart for one series. Indices in OutOfControl are 0-based
// positions in Values that lie strictly outside [LCL, UCL].
type Result struct {
	Mean         float64   `json:"mean"`
	Sigma        float64   `json:"sigma"`
	UCL          float64   `json:"ucl"`
	LCL          float64   `json:"lcl"`
	MovingRanges []float64 `json:"moving_ranges"`
	MRBar        float64   `json:"mr_bar"`
	Values       []float64 `json:"values"`
	OutOfControl []int     `json:"out_of_control"`
}

// ComputeIChart computes center line, moving-range sigma and 3-sigma limits.
// The result is a pure function of values.
func ComputeIChart(values []float64) (Result, error) {
	if len(values) == 0 {
		return Result{}, fmt.Errorf("i-chart: %w: empty series", types.ErrInvalidInput)
	}

	mean := sigma.Mean(values)
	mrs := sigma.MovingRanges(values)
	mrBar := sigma.Mean(mrs)
	s := mrBar / sigma.D2

	res := Result{
		Mean:         mean,
		Sigma:        s,
		UCL:          mean + LimitSigmas*s,
		LCL:          mean - LimitSigmas*s,
		MovingRanges: mrs,
		MRBar:        mrBar,
		Values:       append([]float64(nil), values...),
		OutOfControl: []int{},
	}
	res.OutOfControl = beyondLimits(res)
	return res, nil
}

// beyondLimits lists points outside the limits. A zero sigma yields no
// points: a constant series is in control by definition.
func beyondLimits(r Result) []int {
	out := []int{}
	if r.Sigma <= 0 || math.IsNaN(r.Sigma) {
		return out
	}
	for i, v := range r.Values {
		if v > r.UCL || v < r.LCL {
			out = append(out, i)
		}
	}
	return out
}
