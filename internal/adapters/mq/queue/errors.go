package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("measurement queue full")
	ErrClosed = errors.New("measurement queue closed")
)
