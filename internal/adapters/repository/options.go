package repository

import "time"

// Option applies a configuration option to the ColumnStore.
type Option func(*ColumnStore)

// WithShardCount sets the number of lock shards columns are spread over.
func WithShardCount(n int) Option {
	return func(s *ColumnStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMaxPoints bounds each column to its latest n values. n <= 0 keeps
// every value.
func WithMaxPoints(n int) Option {
	return func(s *ColumnStore) {
		s.maxPoints = n
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *ColumnStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
