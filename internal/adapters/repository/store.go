// Package repository holds the latest measurement snapshot of every column.
package repository

import (
	"context"
	"time"

	"github.com/okian/spc/internal/domain/model"
)

// ColumnInfo summarizes one stored column.
type ColumnInfo struct {
	ColumnID  string    `json:"column_id"`
	Points    int       `json:"points"`
	Total     int64     `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides read/write access to column snapshots.
type Store interface {
	// Append adds one measurement to its column, creating the column on
	// first use. Once the window is full the oldest value is dropped. The
	// returned series is the column as it stood right after this append,
	// so its newest value is m.Value even under concurrent writers.
	Append(ctx context.Context, m model.Measurement) (model.Series, error)

	// Replace swaps a column's values for values (truncated to the window).
	Replace(ctx context.Context, columnID string, values []float64) error

	// Snapshot returns a copy of a column's values, oldest first.
	// Returns ErrNotFound if the column is unknown.
	Snapshot(ctx context.Context, columnID string) (model.Series, error)

	// Delete removes a column. Returns ErrNotFound if the column is unknown.
	Delete(ctx context.Context, columnID string) error

	// Columns lists every column ordered by id.
	Columns(ctx context.Context) []ColumnInfo

	// Count returns the number of stored columns.
	Count(ctx context.Context) int
}
