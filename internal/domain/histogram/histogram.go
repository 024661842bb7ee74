// Package histogram bins a measurement series into equal-width bins for
// overlaying a fitted distribution curve.
package histogram

import (
	"fmt"
	"math"

	"github.com/okian/spc/internal/domain/types"
)

// Bin count heuristic bounds. These are presentation parameters, not a
// statistical contract.
const (
	MinBins = 5
	MaxBins = 20

	// degenerateHalfWidth widens a zero-width domain around its single value.
	degenerateHalfWidth = 0.5
)

// Bin is a half-open interval [X0, X1) and the number of values in it. The
// last bin of a histogram is closed on both ends.
type Bin struct {
	X0    float64 `json:"x0"`
	X1    float64 `json:"x1"`
	Count int     `json:"count"`
}

// Histogram is the binned series plus the domain the bins cover.
type Histogram struct {
	Bins   []Bin      `json:"bins"`
	Domain [2]float64 `json:"domain"`
}

// Total returns the sum of all bin counts.
func (h Histogram) Total() int {
	n := 0
	for _, b := range h.Bins {
		n += b.Count
	}
	return n
}

type options struct {
	bins     int
	mean     float64
	sigma    float64
	padSigma float64
}

// Option tunes how a histogram is built.
type Option func(*options)

// WithBins fixes the number of bins instead of deriving it from n.
func WithBins(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bins = n
		}
	}
}

// WithPadding widens the domain to include mean ± k·sigma so the tails of a
// fitted normal curve stay visible. Non-positive k or sigma disables padding.
func WithPadding(mean, sigma, k float64) Option {
	return func(o *options) {
		if k > 0 && sigma > 0 && !math.IsInf(sigma, 0) && !math.IsNaN(mean) {
			o.mean = mean
			o.sigma = sigma
			o.padSigma = k
		}
	}
}

// BinCount returns clamp(ceil(sqrt(n)), MinBins, MaxBins).
func BinCount(n int) int {
	k := int(math.Ceil(math.Sqrt(float64(n))))
	switch {
	case k < MinBins:
		return MinBins
	case k > MaxBins:
		return MaxBins
	default:
		return k
	}
}

// Build bins values. Every value lands in exactly one bin, so the counts
// sum to len(values).
func Build(values []float64, opts ...Option) (Histogram, error) {
	if len(values) == 0 {
		return Histogram{}, fmt.Errorf("histogram: %w: empty series", types.ErrInvalidInput)
	}
	o := options{bins: BinCount(len(values))}
	for _, opt := range opts {
		opt(&o)
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if o.padSigma > 0 {
		lo = math.Min(lo, o.mean-o.padSigma*o.sigma)
		hi = math.Max(hi, o.mean+o.padSigma*o.sigma)
	}
	if hi <= lo {
		lo, hi = lo-degenerateHalfWidth, hi+degenerateHalfWidth
	}

	width := (hi - lo) / float64(o.bins)
	bins := make([]Bin, o.bins)
	for i := range bins {
		bins[i].X0 = lo + float64(i)*width
		bins[i].X1 = lo + float64(i+1)*width
	}
	bins[len(bins)-1].X1 = hi

	for _, v := range values {
		bins[binIndex(v, lo, width, o.bins)].Count++
	}
	return Histogram{Bins: bins, Domain: [2]float64{lo, hi}}, nil
}

// binIndex maps v into [0, k). Values on the upper edge fall into the last
// bin; rounding at either edge is clamped.
func binIndex(v, lo, width float64, k int) int {
	i := int(math.Floor((v - lo) / width))
	if i < 0 {
		return 0
	}
	if i >= k {
		return k - 1
	}
	return i
}
