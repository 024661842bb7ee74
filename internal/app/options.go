package service

import (
	"time"

	"github.com/okian/spc/internal/adapters/mq/worker"
	"github.com/okian/spc/internal/config"
	"github.com/okian/spc/internal/domain/rules"
	"github.com/okian/spc/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingest workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the measurement queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of column store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMaxPoints sets the rolling window kept per column; 0 keeps all points.
func WithMaxPoints(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxPoints = n
		}
	}
}

// WithCache sizes the in-process result cache; a size of 0 disables it.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size >= 0 {
			s.cacheSize = size
		}
		if ttl >= 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithRedisAddr enables the shared Redis result cache.
func WithRedisAddr(addr string) Option {
	return func(s *Service) {
		s.redisAddr = addr
	}
}

// WithHistogramPadSigma widens capability histograms to mean ± k·sigma.
func WithHistogramPadSigma(k float64) Option {
	return func(s *Service) {
		if k >= 0 {
			s.padSigma = k
		}
	}
}

// WithMaxRequestValues caps the number of values accepted per call.
func WithMaxRequestValues(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRequestValues = n
		}
	}
}

// WithRuleMonitoring toggles rule evaluation after every measurement.
func WithRuleMonitoring(enabled bool) Option {
	return func(s *Service) {
		s.monitorRules = enabled
	}
}

// WithRuleSet replaces the default rule set for charts and monitoring.
func WithRuleSet(set *rules.Set) Option {
	return func(s *Service) {
		if set != nil {
			s.ruleSet = set
		}
	}
}

// WithAlarmFunc registers a callback for out-of-control measurements.
func WithAlarmFunc(fn worker.AlarmFunc) Option {
	return func(s *Service) {
		s.onAlarm = fn
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// FromConfig translates a loaded Config into options.
func FromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithShardCount(cfg.ShardCount),
		WithMaxPoints(cfg.MaxPoints),
		WithCache(cfg.CacheSize, cfg.CacheTTL()),
		WithRedisAddr(cfg.RedisAddr),
		WithHistogramPadSigma(cfg.HistogramPadSigma),
		WithMaxRequestValues(cfg.MaxRequestValues),
		WithRuleMonitoring(cfg.MonitorRules),
	}
}
