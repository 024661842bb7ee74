// Package capability computes process capability and performance indices,
// the PPM defect table and the histogram for a measurement series.
//
// Potential indices (Cp, Cpl, Cpu, Cpk) use the moving-range sigma; the
// performance indices (Pp, Ppl, Ppu, Ppk) use the sample standard deviation.
// A statistic without meaning for the input is an undefined types.Number.
package capability

import (
	"fmt"
	"math"

	"github.com/okian/spc/internal/domain/histogram"
	"github.com/okian/spc/internal/domain/sigma"
	"github.com/okian/spc/internal/domain/types"
)

const ppmScale = 1e6

// PPM table row labels.
const (
	RowBelowLSL = "< LSL"
	RowAboveUSL = "> USL"
	RowTotal    = "Total"
)

// SpecLimits are the specification limits and target. Each is optional.
type SpecLimits struct {
	LSL    types.Number `json:"lsl"`
	USL    types.Number `json:"usl"`
	Target types.Number `json:"target"`
}

// Input echoes what a result was computed for.
type Input struct {
	LSL      types.Number `json:"lsl"`
	USL      types.Number `json:"usl"`
	Target   types.Number `json:"target"`
	ColumnID string       `json:"column_id"`
}

// PPMRow is one line of the parts-per-million table.
type PPMRow struct {
	Label           string       `json:"label"`
	Observed        types.Number `json:"observed"`
	ExpectedOverall types.Number `json:"expected_overall"`
	ExpectedWithin  types.Number `json:"expected_within"`
}

// Result is the capability analysis of one series.
type Result struct {
	Input     Input               `json:"input"`
	N         int                 `json:"n"`
	Mean      float64             `json:"mean"`
	Sigma     sigma.Estimate      `json:"sigma"`
	Cp        types.Number        `json:"cp"`
	Cpl       types.Number        `json:"cpl"`
	Cpu       types.Number        `json:"cpu"`
	Cpk       types.Number        `json:"cpk"`
	Pp        types.Number        `json:"pp"`
	Ppl       types.Number        `json:"ppl"`
	Ppu       types.Number        `json:"ppu"`
	Ppk       types.Number        `json:"ppk"`
	Cpm       types.Number        `json:"cpm"`
	PPM       []PPMRow            `json:"ppm"`
	Histogram histogram.Histogram `json:"histogram"`
}

type options struct {
	padSigma float64
	bins     int
}

// Option tunes the presentation parts of a capability result.
type Option func(*options)

// WithHistogramPadding widens the histogram domain to mean ± k·sigma.overall.
func WithHistogramPadding(k float64) Option {
	return func(o *options) {
		o.padSigma = k
	}
}

// WithHistogramBins fixes the histogram bin count.
func WithHistogramBins(n int) Option {
	return func(o *options) {
		o.bins = n
	}
}

// indices is one family of capability indices computed against a sigma.
type indices struct {
	both, lower, upper, k types.Number
}

// Compute analyses values against limits. It fails only for an empty
// series; missing limits and zero spread yield undefined fields.
func Compute(values []float64, limits SpecLimits, columnID string, opts ...Option) (Result, error) {
	if len(values) == 0 {
		return Result{}, fmt.Errorf("capability: %w: empty series", types.ErrInvalidInput)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	est, err := sigma.Compute(values)
	if err != nil {
		return Result{}, err
	}
	mean := sigma.Mean(values)

	within := indexFamily(mean, est.Within, limits)
	overall := indexFamily(mean, est.Overall, limits)

	hopts := []histogram.Option{histogram.WithPadding(mean, est.Overall, o.padSigma)}
	if o.bins > 0 {
		hopts = append(hopts, histogram.WithBins(o.bins))
	}
	hist, err := histogram.Build(values, hopts...)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Input: Input{
			LSL:      limits.LSL,
			USL:      limits.USL,
			Target:   limits.Target,
			ColumnID: columnID,
		},
		N:         len(values),
		Mean:      mean,
		Sigma:     est,
		Cp:        within.both,
		Cpl:       within.lower,
		Cpu:       within.upper,
		Cpk:       within.k,
		Pp:        overall.both,
		Ppl:       overall.lower,
		Ppu:       overall.upper,
		Ppk:       overall.k,
		Cpm:       cpm(mean, est.Overall, limits),
		PPM:       ppmTable(values, mean, est, limits),
		Histogram: hist,
	}, nil
}

func indexFamily(mean, s float64, limits SpecLimits) indices {
	var out indices
	lsl, hasLSL := limits.LSL.Value()
	usl, hasUSL := limits.USL.Value()
	if hasLSL {
		out.lower = ratio(mean-lsl, 3*s)
	}
	if hasUSL {
		out.upper = ratio(usl-mean, 3*s)
	}
	if hasLSL && hasUSL {
		out.both = ratio(usl-lsl, 6*s)
	}
	out.k = types.Min(out.lower, out.upper)
	// k never exceeds the two-sided index, including under rounding.
	if out.both.Defined() && out.k.Defined() && out.k.Float64() > out.both.Float64() {
		out.k = out.both
	}
	return out
}

func cpm(mean, overall float64, limits SpecLimits) types.Number {
	lsl, hasLSL := limits.LSL.Value()
	usl, hasUSL := limits.USL.Value()
	target, hasTarget := limits.Target.Value()
	if !hasLSL || !hasUSL || !hasTarget {
		return types.None()
	}
	off := mean - target
	return ratio(usl-lsl, 6*math.Sqrt(overall*overall+off*off))
}

func ppmTable(values []float64, mean float64, est sigma.Estimate, limits SpecLimits) []PPMRow {
	below := PPMRow{Label: RowBelowLSL}
	if lsl, ok := limits.LSL.Value(); ok {
		below.Observed = observed(values, func(v float64) bool { return v < lsl })
		below.ExpectedOverall = lowerTail(mean, est.Overall, lsl)
		below.ExpectedWithin = lowerTail(mean, est.Within, lsl)
	}
	above := PPMRow{Label: RowAboveUSL}
	if usl, ok := limits.USL.Value(); ok {
		above.Observed = observed(values, func(v float64) bool { return v > usl })
		above.ExpectedOverall = upperTail(mean, est.Overall, usl)
		above.ExpectedWithin = upperTail(mean, est.Within, usl)
	}
	total := PPMRow{
		Label:           RowTotal,
		Observed:        types.Sum(below.Observed, above.Observed),
		ExpectedOverall: types.Sum(below.ExpectedOverall, above.ExpectedOverall),
		ExpectedWithin:  types.Sum(below.ExpectedWithin, above.ExpectedWithin),
	}
	return []PPMRow{below, above, total}
}

func observed(values []float64, violates func(float64) bool) types.Number {
	count := 0
	for _, v := range values {
		if violates(v) {
			count++
		}
	}
	return types.Some(float64(count) / float64(len(values)) * ppmScale)
}

// lowerTail returns 1e6·P(X < x) for X ~ N(mean, s²).
func lowerTail(mean, s, x float64) types.Number {
	if s <= 0 {
		return types.None()
	}
	return types.Some(ppmScale * normalCDF((x-mean)/s))
}

// upperTail returns 1e6·P(X > x) for X ~ N(mean, s²).
func upperTail(mean, s, x float64) types.Number {
	if s <= 0 {
		return types.None()
	}
	return types.Some(ppmScale * normalCDF((mean-x)/s))
}

// normalCDF is the standard normal CDF.
func normalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

// ratio returns num/den, undefined when den is zero or the quotient is not
// finite.
func ratio(num, den float64) types.Number {
	if den == 0 {
		return types.None()
	}
	return types.Some(num / den)
}
