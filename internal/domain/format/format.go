// Package format renders engine numbers for display.
package format

import (
	"math"
	"strconv"

	"github.com/okian/spc/internal/domain/types"
)

// Undefined is shown in place of a value that has no meaning.
const Undefined = "*"

// integerTolerance is how close to a whole number a value must be to be
// shown without decimals, inclusive. boundarySlack absorbs the binary
// rounding of decimal inputs such as 0.999, whose distance to 1 comes out
// a hair above 0.001.
const (
	integerTolerance = 0.001
	boundarySlack    = 1e-12
)

// Float renders v with no decimals when it is within 0.001 of an integer
// and with two decimals otherwise. NaN and infinities render as Undefined.
func Float(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	if r := math.Round(v); math.Abs(v-r) <= integerTolerance+boundarySlack {
		if r == 0 {
			// drops the sign of negative zero and of values like -0.0004
			return "0"
		}
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Number renders n like Float, with undefined numbers as Undefined.
func Number(n types.Number) string {
	v, ok := n.Value()
	if !ok {
		return Undefined
	}
	return Float(v)
}

// Floats renders each value of vs.
func Floats(vs []float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = Float(v)
	}
	return out
}
