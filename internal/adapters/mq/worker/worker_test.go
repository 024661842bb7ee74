package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/spc/internal/adapters/mq/queue"
	"github.com/okian/spc/internal/adapters/mq/worker"
	"github.com/okian/spc/internal/adapters/repository"
	"github.com/okian/spc/internal/domain/model"
	"github.com/okian/spc/internal/domain/rules"
	logging "github.com/okian/spc/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	items chan model.Measurement
}

func newMockQueue() *mockQueue {
	return &mockQueue{items: make(chan model.Measurement, 16)}
}

func (q *mockQueue) Dequeue(context.Context) <-chan model.Measurement { return q.items }

func (q *mockQueue) Close() error {
	close(q.items)
	return nil
}

type mockAppender struct {
	mu   sync.Mutex
	got  []model.Measurement
	fail map[string]error
}

func (a *mockAppender) Append(_ context.Context, m model.Measurement) (model.Series, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.fail[m.ColumnID]; err != nil {
		return model.Series{}, err
	}
	a.got = append(a.got, m)
	return model.NewSeries(m.ColumnID, []float64{m.Value}), nil
}

func (a *mockAppender) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.got)
}

type countingMonitor struct {
	mu      sync.Mutex
	columns []string
	err     error
}

func (m *countingMonitor) Inspect(_ context.Context, series model.Series) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.columns = append(m.columns, series.ColumnID)
	return m.err
}

func (m *countingMonitor) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.columns...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a mock queue", t, func() {
		convey.So(logging.Init(), convey.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := newMockQueue()
		appender := &mockAppender{fail: map[string]error{"broken": errors.New("disk on fire")}}
		monitor := &countingMonitor{}
		w := worker.NewInMemoryWorker(q, appender, worker.WithName("w-test"), worker.WithMonitor(monitor))
		go w.Run(ctx)

		convey.Convey("When measurements are queued", func() {
			q.items <- model.Measurement{EventID: "1", ColumnID: "a", Value: 1}
			q.items <- model.Measurement{EventID: "2", ColumnID: "broken", Value: 2}
			q.items <- model.Measurement{EventID: "3", ColumnID: "b", Value: 3}
			convey.So(q.Close(), convey.ShouldBeNil)

			convey.Convey("Then stored ones should be inspected and failures skipped", func() {
				select {
				case <-w.Done():
				case <-time.After(2 * time.Second):
					convey.So("worker did not finish", convey.ShouldBeEmpty)
				}
				convey.So(appender.count(), convey.ShouldEqual, 2)
				convey.So(monitor.seen(), convey.ShouldResemble, []string{"a", "b"})
			})
		})

		convey.Convey("When shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then Run should return and a second shutdown should be harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool draining a real queue into a column store", t, func() {
		convey.So(logging.Init(), convey.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		store := repository.NewColumnStore(ctx)
		defer func() { _ = store.Close() }()

		pool := worker.NewPool(4, q, store)
		convey.So(pool.Size(), convey.ShouldEqual, 4)
		pool.Start(ctx)

		for i := 0; i < 300; i++ {
			m := model.Measurement{EventID: fmt.Sprint(i), ColumnID: fmt.Sprintf("c%d", i%3), Value: float64(i)}
			convey.So(q.Enqueue(ctx, m), convey.ShouldBeNil)
		}

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued measurement should be stored first", func() {
				convey.So(err, convey.ShouldBeNil)
				total := 0
				for _, c := range store.Columns(ctx) {
					total += c.Points
				}
				convey.So(total, convey.ShouldEqual, 300)
				convey.So(store.Count(ctx), convey.ShouldEqual, 3)
			})
		})
	})
}

func mustAppend(ctx context.Context, store *repository.ColumnStore, columnID string, v float64) model.Series {
	series, err := store.Append(ctx, model.Measurement{ColumnID: columnID, Value: v})
	convey.So(err, convey.ShouldBeNil)
	return series
}

func TestRuleMonitor(t *testing.T) {
	convey.Convey("Given a column store and a rule monitor", t, func() {
		convey.So(logging.Init(), convey.ShouldBeNil)
		ctx := context.Background()
		store := repository.NewColumnStore(ctx)
		defer func() { _ = store.Close() }()

		var alarms []worker.Alarm
		monitor := worker.NewRuleMonitor(worker.WithAlarmFunc(func(_ context.Context, a worker.Alarm) {
			alarms = append(alarms, a)
		}))
		stable := []float64{10, 11, 10, 9, 10, 11, 9, 10, 11, 10, 9, 10, 11, 10, 9, 10}
		convey.So(store.Replace(ctx, "diameter", stable), convey.ShouldBeNil)

		convey.Convey("When an in-control point arrives", func() {
			err := monitor.Inspect(ctx, mustAppend(ctx, store, "diameter", 10))

			convey.Convey("Then no alarm should be raised", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(alarms, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When an outlier arrives", func() {
			err := monitor.Inspect(ctx, mustAppend(ctx, store, "diameter", 1000))

			convey.Convey("Then rule 1 should raise an alarm on the newest point", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(alarms, convey.ShouldHaveLength, 1)
				convey.So(alarms[0].ColumnID, convey.ShouldEqual, "diameter")
				convey.So(alarms[0].Index, convey.ShouldEqual, len(stable))
				convey.So(alarms[0].Value, convey.ShouldEqual, 1000)
				convey.So(alarms[0].Rules, convey.ShouldContain, 1)
			})
		})

		convey.Convey("When another point lands between an outlier's append and its inspection", func() {
			outlier := mustAppend(ctx, store, "diameter", 1000)
			follower := mustAppend(ctx, store, "diameter", 10.5)
			convey.So(monitor.Inspect(ctx, follower), convey.ShouldBeNil)
			convey.So(monitor.Inspect(ctx, outlier), convey.ShouldBeNil)

			convey.Convey("Then the outlier should still raise exactly one alarm", func() {
				var hits []worker.Alarm
				for _, a := range alarms {
					if a.Value == 1000 {
						hits = append(hits, a)
					}
				}
				convey.So(hits, convey.ShouldHaveLength, 1)
				convey.So(hits[0].Index, convey.ShouldEqual, len(stable))
				for _, a := range alarms {
					convey.So(a.Value, convey.ShouldNotEqual, 10.5)
				}
			})
		})

		convey.Convey("When the monitor only runs a rule that never fires", func() {
			quiet := worker.NewRuleMonitor(
				worker.WithRuleSet(rules.NewSet(rules.SameSide{Run: 1000})),
				worker.WithAlarmFunc(func(_ context.Context, a worker.Alarm) { alarms = append(alarms, a) }))

			convey.Convey("Then the outlier should pass", func() {
				convey.So(quiet.Inspect(ctx, mustAppend(ctx, store, "diameter", 1000)), convey.ShouldBeNil)
				convey.So(alarms, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the series is too short to chart", func() {
			err := monitor.Inspect(ctx, model.NewSeries("fresh", []float64{1000}))

			convey.Convey("Then it should be skipped without an alarm", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(alarms, convey.ShouldBeEmpty)
			})
		})
	})
}

func TestPoolRuleMonitor(t *testing.T) {
	convey.Convey("Given a pool of workers monitoring one busy column", t, func() {
		convey.So(logging.Init(), convey.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store := repository.NewColumnStore(ctx)
		defer func() { _ = store.Close() }()
		history := []float64{10, 11, 10, 9, 10, 11, 9, 10, 11, 10, 9, 10, 11, 10, 9, 10}
		convey.So(store.Replace(ctx, "diameter", history), convey.ShouldBeNil)

		var mu sync.Mutex
		outlierAlarms := 0
		monitor := worker.NewRuleMonitor(
			worker.WithRuleSet(rules.NewSet(rules.BeyondLimits{K: 3})),
			worker.WithAlarmFunc(func(_ context.Context, a worker.Alarm) {
				mu.Lock()
				defer mu.Unlock()
				if a.Value == 1000 {
					outlierAlarms++
				}
			}))

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		pool := worker.NewPool(8, q, store, worker.WithMonitor(monitor))
		pool.Start(ctx)

		for i := 0; i < 200; i++ {
			v := 10 + float64(i%3)/2
			if i == 100 {
				v = 1000
			}
			m := model.Measurement{EventID: fmt.Sprint(i), ColumnID: "diameter", Value: v}
			convey.So(q.Enqueue(ctx, m), convey.ShouldBeNil)
		}

		convey.Convey("When the queue drains", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then the outlier should be alarmed exactly once", func() {
				mu.Lock()
				defer mu.Unlock()
				convey.So(outlierAlarms, convey.ShouldEqual, 1)
			})
		})
	})
}
