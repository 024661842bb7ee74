package config

import "errors"

var (
	// ErrInvalidConfig reports a value outside its allowed range, such as a
	// non-positive queue size or an unknown log format.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig reports a config file or environment layer that could
	// not be read.
	ErrLoadConfig = errors.New("load config failed")
)
