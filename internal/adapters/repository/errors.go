package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound      = errors.New("column not found")
	ErrEmptyColumnID = errors.New("empty column id")
	ErrEmptySeries   = errors.New("empty series")
	ErrNonFinite     = errors.New("value is not finite")
)
