package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted    = errors.New("service not started")
	ErrBackpressure  = errors.New("measurement queue full")
	ErrTooManyValues = errors.New("too many values")
)
