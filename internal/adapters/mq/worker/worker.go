package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/spc/internal/domain/model"
	"github.com/okian/spc/pkg/logger"
	"github.com/okian/spc/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Appender stores a measurement in its column and returns the column as
// it stood right after the append.
type Appender interface {
	Append(ctx context.Context, m model.Measurement) (model.Series, error)
}

// Queue defines how workers receive measurements.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Measurement
}

// Monitor inspects a column snapshot whose newest value is the
// measurement that was just stored.
type Monitor interface {
	Inspect(ctx context.Context, series model.Series) error
}

// Worker processes queued measurements.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is
	// called, or the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining the queue.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker appends each measurement to the store and, when a
// Monitor is set, inspects the column afterwards.
type InMemoryWorker struct {
	queue    Queue
	appender Appender
	monitor  Monitor
	name     string
	active   *atomic.Int64

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, appender Appender, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		appender: appender,
		name:     "worker",
		active:   &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run implements Worker.Run.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-items:
			if !ok {
				return
			}
			if err := w.process(ctx, m); err != nil {
				w.logger.Error(ctx, "error processing measurement",
					logger.String("worker", w.name), logger.Error(err))
			}
		}
	}
}

// Shutdown implements Worker.Shutdown.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, m model.Measurement) error {
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	start := time.Now()
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	series, err := w.appender.Append(ctx, m)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "append")
		return fmt.Errorf("append measurement %s: %w", m.EventID, err)
	}
	if w.monitor == nil {
		return nil
	}
	if err := w.monitor.Inspect(ctx, series); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "monitor")
		return fmt.Errorf("inspect column %s: %w", m.ColumnID, err)
	}
	return nil
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers; a non-positive count means one per CPU.
func NewPool(workerCount int, q Queue, appender Appender, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	active := &atomic.Int64{}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, appender, wopts...)
		w.active = active
		p.workers[i] = w
	}
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets the workers drain what is already
// queued, and stops any that are still busy when ctx (or the pool's own
// timeout) expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-drainCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			_ = w.Shutdown(context.Background())
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not drain: %w", timedOut, drainCtx.Err())
	}
	return nil
}
