// Package worker drains the measurement queue into the column store.
package worker

import (
	"github.com/okian/spc/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMonitor inspects each column after a measurement lands in it.
func WithMonitor(m Monitor) Option {
	return func(w *InMemoryWorker) {
		w.monitor = m
	}
}
