package model

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Series is an ordered measurement series for one source column. Values
// are expected to be pre-filtered: header rows and non-numeric cells are
// removed before a Series is built.
type Series struct {
	ColumnID string    `json:"column_id"`
	Values   []float64 `json:"values"`
}

// NewSeries copies values into a Series owned by the caller.
func NewSeries(columnID string, values []float64) Series {
	out := make([]float64, len(values))
	copy(out, values)
	return Series{ColumnID: columnID, Values: out}
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Values) }

// Fingerprint hashes the values in order. Two series with identical values
// share a fingerprint regardless of column, so cache keys combine both.
func (s Series) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range s.Values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
