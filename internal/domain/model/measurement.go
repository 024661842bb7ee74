// Package model contains domain models passed between layers.
package model

import "time"

// Measurement is a single observation submitted for a column.
// Fields mirror the OpenAPI schema for /measurements.
type Measurement struct {
	EventID  string    // unique id for idempotency
	ColumnID string    // source column the value belongs to
	Value    float64   // observed value
	TS       time.Time // observation timestamp
}
