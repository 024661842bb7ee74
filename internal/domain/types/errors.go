package types

import "errors"

// Sentinel kinds shared by the SPC engines.
var (
	// ErrInvalidInput is returned for an empty measurement series. It is the
	// only error the engines raise; degenerate data is reported through
	// undefined Numbers instead.
	ErrInvalidInput = errors.New("invalid input")
)
