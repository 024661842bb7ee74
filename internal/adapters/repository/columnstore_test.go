package repository_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/spc/internal/adapters/repository"
	"github.com/okian/spc/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func appendAll(ctx context.Context, s repository.Store, columnID string, values ...float64) {
	for _, v := range values {
		_, err := s.Append(ctx, model.Measurement{ColumnID: columnID, Value: v})
		So(err, ShouldBeNil)
	}
}

func TestColumnStore(t *testing.T) {
	Convey("Given a column store with a window of 5 points", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		store := repository.NewColumnStore(ctx, repository.WithMaxPoints(5), repository.WithShardCount(4))
		Reset(func() {
			cancel()
			_ = store.Close()
		})

		Convey("When appending fewer values than the window", func() {
			appendAll(ctx, store, "diameter", 1, 2, 3)

			Convey("Then the snapshot should hold them in order", func() {
				s, err := store.Snapshot(ctx, "diameter")
				So(err, ShouldBeNil)
				So(s.ColumnID, ShouldEqual, "diameter")
				So(s.Values, ShouldResemble, []float64{1, 2, 3})
				So(store.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When appending past the window", func() {
			appendAll(ctx, store, "diameter", 1, 2, 3, 4, 5, 6, 7)

			Convey("Then only the latest values should remain, oldest first", func() {
				s, err := store.Snapshot(ctx, "diameter")
				So(err, ShouldBeNil)
				So(s.Values, ShouldResemble, []float64{3, 4, 5, 6, 7})
			})

			Convey("And the column listing should report the lifetime total", func() {
				cols := store.Columns(ctx)
				So(cols, ShouldHaveLength, 1)
				So(cols[0].Points, ShouldEqual, 5)
				So(cols[0].Total, ShouldEqual, 7)
			})
		})

		Convey("When appending returns the column", func() {
			appendAll(ctx, store, "c", 1, 2, 3, 4, 5)
			got, err := store.Append(ctx, model.Measurement{ColumnID: "c", Value: 6})
			So(err, ShouldBeNil)
			appendAll(ctx, store, "c", 7)

			Convey("Then it should be the window as of that append, ending with its value", func() {
				So(got.ColumnID, ShouldEqual, "c")
				So(got.Values, ShouldResemble, []float64{2, 3, 4, 5, 6})
			})
		})

		Convey("When a snapshot is modified by the caller", func() {
			appendAll(ctx, store, "c", 1, 2)
			s, _ := store.Snapshot(ctx, "c")
			s.Values[0] = 99

			Convey("Then the stored values should be unaffected", func() {
				again, _ := store.Snapshot(ctx, "c")
				So(again.Values, ShouldResemble, []float64{1, 2})
			})
		})

		Convey("When replacing a column with more values than the window", func() {
			appendAll(ctx, store, "c", 100)
			err := store.Replace(ctx, "c", []float64{1, 2, 3, 4, 5, 6, 7, 8})

			Convey("Then it should keep the tail and continue rolling from it", func() {
				So(err, ShouldBeNil)
				s, _ := store.Snapshot(ctx, "c")
				So(s.Values, ShouldResemble, []float64{4, 5, 6, 7, 8})
				So(store.Columns(ctx)[0].Total, ShouldEqual, 8)
				appendAll(ctx, store, "c", 9)
				s, _ = store.Snapshot(ctx, "c")
				So(s.Values, ShouldResemble, []float64{5, 6, 7, 8, 9})
			})
		})

		Convey("When input is invalid", func() {
			Convey("Then it should be rejected with a sentinel", func() {
				_, err := store.Append(ctx, model.Measurement{Value: 1})
				So(errors.Is(err, repository.ErrEmptyColumnID), ShouldBeTrue)
				_, err = store.Append(ctx, model.Measurement{ColumnID: "c", Value: math.NaN()})
				So(errors.Is(err, repository.ErrNonFinite), ShouldBeTrue)
				So(errors.Is(store.Replace(ctx, "c", nil), repository.ErrEmptySeries), ShouldBeTrue)
				So(errors.Is(store.Replace(ctx, "c", []float64{1, math.Inf(1)}), repository.ErrNonFinite), ShouldBeTrue)
				So(errors.Is(store.Replace(ctx, "", []float64{1}), repository.ErrEmptyColumnID), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 0)
			})
		})

		Convey("When reading or deleting an unknown column", func() {
			_, err := store.Snapshot(ctx, "missing")

			Convey("Then it should return ErrNotFound", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(store.Delete(ctx, "missing"), repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When deleting a column", func() {
			appendAll(ctx, store, "a", 1)
			appendAll(ctx, store, "b", 2)
			So(store.Delete(ctx, "a"), ShouldBeNil)

			Convey("Then only the other column should remain", func() {
				cols := store.Columns(ctx)
				So(cols, ShouldHaveLength, 1)
				So(cols[0].ColumnID, ShouldEqual, "b")
			})
		})

		Convey("When a measurement carries a timestamp", func() {
			ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			_, err := store.Append(ctx, model.Measurement{ColumnID: "c", Value: 1, TS: ts})
			So(err, ShouldBeNil)

			Convey("Then the column should report it as its update time", func() {
				So(store.Columns(ctx)[0].UpdatedAt, ShouldEqual, ts)
			})
		})
	})

	Convey("Given an unbounded store", t, func() {
		ctx := context.Background()
		store := repository.NewColumnStore(ctx, repository.WithMaxPoints(0))
		Reset(func() { _ = store.Close() })

		Convey("Then every appended value should be kept", func() {
			for i := 0; i < 2500; i++ {
				_, err := store.Append(ctx, model.Measurement{ColumnID: "c", Value: float64(i)})
				So(err, ShouldBeNil)
			}
			s, _ := store.Snapshot(ctx, "c")
			So(s.Len(), ShouldEqual, 2500)
			So(s.Values[2499], ShouldEqual, 2499)
		})
	})

	Convey("Given concurrent writers to many columns", t, func() {
		ctx := context.Background()
		store := repository.NewColumnStore(ctx, repository.WithMaxPoints(100), repository.WithShardCount(8))
		Reset(func() { _ = store.Close() })

		var wg sync.WaitGroup
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				id := fmt.Sprintf("col-%d", g)
				for i := 0; i < 50; i++ {
					_, _ = store.Append(ctx, model.Measurement{ColumnID: id, Value: float64(i)})
				}
			}(g)
		}
		wg.Wait()

		Convey("Then every column should hold all of its points", func() {
			So(store.Count(ctx), ShouldEqual, 10)
			for _, c := range store.Columns(ctx) {
				So(c.Points, ShouldEqual, 50)
			}
		})
	})
}
