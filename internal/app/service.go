// Package service provides the SPC service that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/okian/spc/internal/adapters/cache"
	"github.com/okian/spc/internal/adapters/mq/queue"
	"github.com/okian/spc/internal/adapters/mq/worker"
	"github.com/okian/spc/internal/adapters/repository"
	"github.com/okian/spc/internal/domain/capability"
	"github.com/okian/spc/internal/domain/controlchart"
	"github.com/okian/spc/internal/domain/dedupe"
	"github.com/okian/spc/internal/domain/model"
	"github.com/okian/spc/internal/domain/rules"
	"github.com/okian/spc/internal/domain/types"
	"github.com/okian/spc/pkg/logger"
	"github.com/okian/spc/pkg/metrics"
)

// Result kinds used for cache keys and computation metrics.
const (
	KindIChart     = "ichart"
	KindCapability = "capability"
	KindRules      = "rules"
)

const stopTimeout = 30 * time.Second

// Ack acknowledges a submitted measurement.
type Ack struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// ChartReport is an I-Chart together with its rule evaluation.
type ChartReport struct {
	ColumnID string              `json:"column_id"`
	Chart    controlchart.Result `json:"chart"`
	Rules    []rules.Result      `json:"rules"`
	Flagged  []int               `json:"flagged"`
}

// Service wires the column store, the ingest pipeline and the result cache.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   *repository.ColumnStore
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	cache   *cache.Cache
	redis   *redis.Client

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	shardCount       int
	maxPoints        int
	cacheSize        int
	cacheTTL         time.Duration
	redisAddr        string
	padSigma         float64
	maxRequestValues int
	monitorRules     bool
	ruleSet          *rules.Set
	onAlarm          worker.AlarmFunc

	started bool
	logger  logger.Logger
}

// New constructs a Service. Components are built by Start; the stateless
// computations work before that, uncached.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU(),
		queueSize:        10_000,
		dedupeSize:       100_000,
		shardCount:       16,
		maxPoints:        1000,
		cacheSize:        4096,
		cacheTTL:         5 * time.Minute,
		maxRequestValues: 100_000,
		monitorRules:     true,
		ruleSet:          rules.Default(),
		cache:            cache.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting spc service...")

	var layers []cache.Option
	if s.cacheSize > 0 {
		layers = append(layers, cache.WithLayer(cache.NewMemory(s.cacheSize, s.cacheTTL)))
	}
	if s.redisAddr != "" {
		client, err := cache.DialRedis(ctx, s.redisAddr)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		s.redis = client
		layers = append(layers, cache.WithLayer(cache.NewRedis(client, s.cacheTTL)))
		s.logger.Info(ctx, "using redis result cache", logger.String("addr", s.redisAddr))
	}
	s.cache = cache.New(layers...)

	s.store = repository.NewColumnStore(ctx,
		repository.WithShardCount(s.shardCount),
		repository.WithMaxPoints(s.maxPoints),
	)
	s.deduper = dedupe.New(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))

	wopts := []worker.Option{worker.WithLogger(s.logger.Named("worker"))}
	if s.monitorRules {
		monitor := worker.NewRuleMonitor(
			worker.WithRuleSet(s.ruleSet),
			worker.WithAlarmFunc(s.onAlarm),
		)
		wopts = append(wopts, worker.WithMonitor(monitor))
	}
	s.pool = worker.NewPool(s.workerCount, s.queue, s.store, wopts...)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "spc service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("max_points", s.maxPoints),
		logger.Int("cache_layers", len(layers)),
		logger.Bool("monitor_rules", s.monitorRules),
	)
	return nil
}

// Stop drains the queue and releases every component.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping spc service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "column store close failed", logger.Error(err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn(ctx, "redis close failed", logger.Error(err))
		}
		s.redis = nil
	}

	s.started = false
	s.logger.Info(ctx, "spc service stopped")
}

// Enqueue submits a measurement for asynchronous ingestion. A measurement
// without an event ID gets a generated one. A duplicate is acknowledged
// without being queued; a full queue returns ErrBackpressure and forgets
// the event ID so the client can retry.
func (s *Service) Enqueue(ctx context.Context, m model.Measurement) (Ack, error) {
	if strings.TrimSpace(m.ColumnID) == "" {
		return Ack{}, fmt.Errorf("%w: missing column_id", types.ErrInvalidInput)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return Ack{}, fmt.Errorf("%w: value must be finite", types.ErrInvalidInput)
	}
	if m.EventID == "" {
		m.EventID = uuid.NewString()
	}
	if m.TS.IsZero() {
		m.TS = time.Now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return Ack{}, ErrNotStarted
	}

	if s.deduper.SeenAndRecord(ctx, m.EventID) {
		metrics.RecordMeasurementDuplicate()
		s.logger.Debug(ctx, "duplicate measurement", logger.String("event_id", m.EventID))
		return Ack{EventID: m.EventID, Duplicate: true}, nil
	}

	if err := s.queue.Enqueue(ctx, m); err != nil {
		s.deduper.Unrecord(ctx, m.EventID)
		if errors.Is(err, queue.ErrFull) {
			return Ack{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return Ack{}, fmt.Errorf("enqueue measurement: %w", err)
	}
	metrics.RecordMeasurementAccepted()
	return Ack{EventID: m.EventID}, nil
}

// ReplaceColumn overwrites a column with values.
func (s *Service) ReplaceColumn(ctx context.Context, columnID string, values []float64) error {
	if err := s.checkSize(values); err != nil {
		return err
	}
	store, err := s.columns()
	if err != nil {
		return err
	}
	return store.Replace(ctx, columnID, values)
}

// Column returns the current values of a column.
func (s *Service) Column(ctx context.Context, columnID string) (model.Series, error) {
	store, err := s.columns()
	if err != nil {
		return model.Series{}, err
	}
	return store.Snapshot(ctx, columnID)
}

// Columns lists every stored column.
func (s *Service) Columns(ctx context.Context) ([]repository.ColumnInfo, error) {
	store, err := s.columns()
	if err != nil {
		return nil, err
	}
	return store.Columns(ctx), nil
}

// DeleteColumn removes a column.
func (s *Service) DeleteColumn(ctx context.Context, columnID string) error {
	store, err := s.columns()
	if err != nil {
		return err
	}
	return store.Delete(ctx, columnID)
}

// IChart computes the I-Chart and rule results for a stored column.
func (s *Service) IChart(ctx context.Context, columnID string) (ChartReport, error) {
	series, err := s.Column(ctx, columnID)
	if err != nil {
		return ChartReport{}, err
	}
	return s.chart(ctx, series)
}

// IChartValues computes the I-Chart and rule results for posted values.
func (s *Service) IChartValues(ctx context.Context, values []float64) (ChartReport, error) {
	if err := s.checkValues(values); err != nil {
		return ChartReport{}, err
	}
	return s.chart(ctx, model.NewSeries("", values))
}

// Capability analyses a stored column against limits.
func (s *Service) Capability(ctx context.Context, columnID string, limits capability.SpecLimits) (capability.Result, error) {
	series, err := s.Column(ctx, columnID)
	if err != nil {
		return capability.Result{}, err
	}
	return s.capability(ctx, series, limits)
}

// CapabilityValues analyses posted values against limits.
func (s *Service) CapabilityValues(ctx context.Context, values []float64, limits capability.SpecLimits) (capability.Result, error) {
	if err := s.checkValues(values); err != nil {
		return capability.Result{}, err
	}
	return s.capability(ctx, model.NewSeries("", values), limits)
}

// EvaluateRules runs the rule set over values. An undefined mean or sigma
// is taken from the values' I-Chart.
func (s *Service) EvaluateRules(ctx context.Context, values []float64, mean, sd types.Number) ([]rules.Result, error) {
	if err := s.checkValues(values); err != nil {
		return nil, err
	}
	series := model.NewSeries("", values)
	key := cache.Key{
		Kind:        KindRules,
		Fingerprint: series.Fingerprint(),
		Params:      "mean=" + param(mean) + ";sigma=" + param(sd),
	}
	return cache.Fetch(ctx, s.resultCache(), key, func(context.Context) ([]rules.Result, error) {
		defer observe(KindRules, time.Now())
		if !mean.Defined() || !sd.Defined() {
			chart, err := controlchart.ComputeIChart(series.Values)
			if err != nil {
				metrics.RecordComputationError(KindRules)
				return nil, err
			}
			if !mean.Defined() {
				mean = types.Some(chart.Mean)
			}
			if !sd.Defined() {
				sd = types.Some(chart.Sigma)
			}
		}
		return s.ruleSet.RunAll(series.Values, mean.Float64(), sd.Float64()), nil
	})
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"maxPoints":    s.maxPoints,
		"monitorRules": s.monitorRules,
		"cache":        s.cache.Stats(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		columns := s.store.Columns(ctx)
		points := 0
		for _, c := range columns {
			points += c.Points
		}

		stats["queueLength"] = queueLen
		stats["totalColumns"] = len(columns)
		stats["totalPoints"] = points
		stats["seenEvents"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateRepositoryTotals(len(columns), points)
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}

func (s *Service) chart(ctx context.Context, series model.Series) (ChartReport, error) {
	key := cache.Key{Kind: KindIChart, ColumnID: series.ColumnID, Fingerprint: series.Fingerprint()}
	return cache.Fetch(ctx, s.resultCache(), key, func(context.Context) (ChartReport, error) {
		defer observe(KindIChart, time.Now())
		chart, err := controlchart.ComputeIChart(series.Values)
		if err != nil {
			metrics.RecordComputationError(KindIChart)
			return ChartReport{}, err
		}
		results := s.ruleSet.RunAll(chart.Values, chart.Mean, chart.Sigma)
		return ChartReport{
			ColumnID: series.ColumnID,
			Chart:    chart,
			Rules:    results,
			Flagged:  rules.Flagged(results),
		}, nil
	})
}

func (s *Service) capability(ctx context.Context, series model.Series, limits capability.SpecLimits) (capability.Result, error) {
	key := cache.Key{
		Kind:        KindCapability,
		ColumnID:    series.ColumnID,
		Fingerprint: series.Fingerprint(),
		Params: fmt.Sprintf("lsl=%s;usl=%s;target=%s;pad=%s",
			param(limits.LSL), param(limits.USL), param(limits.Target),
			strconv.FormatFloat(s.padSigma, 'g', -1, 64)),
	}
	return cache.Fetch(ctx, s.resultCache(), key, func(context.Context) (capability.Result, error) {
		defer observe(KindCapability, time.Now())
		res, err := capability.Compute(series.Values, limits, series.ColumnID,
			capability.WithHistogramPadding(s.padSigma))
		if err != nil {
			metrics.RecordComputationError(KindCapability)
		}
		return res, err
	})
}

func (s *Service) columns() (*repository.ColumnStore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) resultCache() *cache.Cache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

// checkValues validates a posted series.
func (s *Service) checkValues(values []float64) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: empty series", types.ErrInvalidInput)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is not finite", types.ErrInvalidInput, i)
		}
	}
	return s.checkSize(values)
}

func (s *Service) checkSize(values []float64) error {
	if len(values) > s.maxRequestValues {
		return fmt.Errorf("%w: %w: %d > %d", types.ErrInvalidInput, ErrTooManyValues, len(values), s.maxRequestValues)
	}
	return nil
}

func observe(kind string, start time.Time) {
	metrics.RecordComputation(kind, float64(time.Since(start).Microseconds())/1000)
}

// param renders an optional number for a cache key.
func param(n types.Number) string {
	v, ok := n.Value()
	if !ok {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
