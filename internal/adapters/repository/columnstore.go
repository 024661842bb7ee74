package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/spc/internal/domain/model"
	"github.com/okian/spc/pkg/metrics"
)

const (
	defaultShardCount            = 16
	defaultMaxPoints             = 1000
	defaultMetricsUpdateInterval = 5 * time.Second
)

type column struct {
	window    *window
	updatedAt time.Time
}

type shard struct {
	mu      sync.RWMutex
	columns map[string]*column
}

// ColumnStore is an in-memory Store. Columns are spread over shards by a
// hash of their id so writers to different columns rarely contend.
type ColumnStore struct {
	shards                []*shard
	shardCount            int
	maxPoints             int
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewColumnStore constructs a column store and starts its metrics updater,
// which stops when ctx is done or Close is called.
func NewColumnStore(ctx context.Context, opts ...Option) *ColumnStore {
	s := &ColumnStore{
		shardCount:            defaultShardCount,
		maxPoints:             defaultMaxPoints,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{columns: make(map[string]*column)}
	}

	metrics.UpdateRepositoryShardCount(s.shardCount)
	s.startMetricsUpdater(ctx)
	return s
}

func (s *ColumnStore) shardFor(columnID string) *shard {
	return s.shards[xxhash.Sum64String(columnID)%uint64(len(s.shards))]
}

// Append implements Store.Append.
func (s *ColumnStore) Append(_ context.Context, m model.Measurement) (model.Series, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if m.ColumnID == "" {
		return model.Series{}, ErrEmptyColumnID
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return model.Series{}, fmt.Errorf("append %q: %w", m.ColumnID, ErrNonFinite)
	}

	sh := s.shardFor(m.ColumnID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.columns[m.ColumnID]
	if !ok {
		c = &column{window: newWindow(s.maxPoints)}
		sh.columns[m.ColumnID] = c
	}
	c.window.push(m.Value)
	c.updatedAt = updatedAt(m.TS)
	return model.Series{ColumnID: m.ColumnID, Values: c.window.ordered()}, nil
}

// Replace implements Store.Replace.
func (s *ColumnStore) Replace(_ context.Context, columnID string, values []float64) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if columnID == "" {
		return ErrEmptyColumnID
	}
	if len(values) == 0 {
		return fmt.Errorf("replace %q: %w", columnID, ErrEmptySeries)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("replace %q at index %d: %w", columnID, i, ErrNonFinite)
		}
	}

	c := &column{window: newWindow(s.maxPoints), updatedAt: time.Now().UTC()}
	c.window.reset(values)

	sh := s.shardFor(columnID)
	sh.mu.Lock()
	sh.columns[columnID] = c
	sh.mu.Unlock()
	return nil
}

// Snapshot implements Store.Snapshot.
func (s *ColumnStore) Snapshot(_ context.Context, columnID string) (model.Series, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	sh := s.shardFor(columnID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.columns[columnID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Series{}, ErrNotFound
	}
	return model.Series{ColumnID: columnID, Values: c.window.ordered()}, nil
}

// Delete implements Store.Delete.
func (s *ColumnStore) Delete(_ context.Context, columnID string) error {
	sh := s.shardFor(columnID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.columns[columnID]; !ok {
		return ErrNotFound
	}
	delete(sh.columns, columnID)
	return nil
}

// Columns implements Store.Columns.
func (s *ColumnStore) Columns(_ context.Context) []ColumnInfo {
	out := make([]ColumnInfo, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, c := range sh.columns {
			out = append(out, ColumnInfo{
				ColumnID:  id,
				Points:    c.window.len(),
				Total:     c.window.total,
				UpdatedAt: c.updatedAt,
			})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ColumnID < out[j].ColumnID })
	return out
}

// Count implements Store.Count.
func (s *ColumnStore) Count(_ context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.columns)
		sh.mu.RUnlock()
	}
	return n
}

// Close stops the background metrics updater.
func (s *ColumnStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *ColumnStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *ColumnStore) updateMetrics() {
	columns, points := 0, 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		columns += len(sh.columns)
		for _, c := range sh.columns {
			points += c.window.len()
		}
		sh.mu.RUnlock()
	}
	metrics.UpdateRepositoryTotals(columns, points)
}

func updatedAt(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}
