// Package types contains common value types shared by the SPC engines.
package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Number is a float64 that may be undefined. Engines return an undefined
// Number where a statistic has no meaning for the input (missing limit,
// zero spread), so callers never have to compare against NaN.
type Number struct {
	value   float64
	defined bool
}

// Some returns a defined Number. NaN and infinities are not representable
// and yield an undefined Number instead.
func Some(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{value: v, defined: true}
}

// None returns an undefined Number.
func None() Number { return Number{} }

// Value returns the underlying value and whether it is defined.
func (n Number) Value() (float64, bool) { return n.value, n.defined }

// Defined reports whether n carries a value.
func (n Number) Defined() bool { return n.defined }

// Float64 converts n for presentation edges: undefined becomes NaN.
func (n Number) Float64() float64 {
	if !n.defined {
		return math.NaN()
	}
	return n.value
}

// Or returns the value of n, or fallback when n is undefined.
func (n Number) Or(fallback float64) float64 {
	if !n.defined {
		return fallback
	}
	return n.value
}

// MarshalJSON encodes an undefined Number as null.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.defined {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, n.value, 'g', -1, 64), nil
}

// UnmarshalJSON accepts a JSON number or null.
func (n *Number) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*n = Number{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Some(v)
	return nil
}

// Min returns the smaller of the defined numbers among ns, or an undefined
// Number when none are defined.
func Min(ns ...Number) Number {
	out := None()
	for _, n := range ns {
		if !n.defined {
			continue
		}
		if !out.defined || n.value < out.value {
			out = n
		}
	}
	return out
}

// Sum adds the defined numbers among ns. It is undefined only when none are defined.
func Sum(ns ...Number) Number {
	total, seen := 0.0, false
	for _, n := range ns {
		if n.defined {
			total += n.value
			seen = true
		}
	}
	if !seen {
		return None()
	}
	return Some(total)
}
