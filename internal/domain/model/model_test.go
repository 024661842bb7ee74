package model_test

import (
	"testing"
	"time"

	model "github.com/okian/spc/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestMeasurement(t *testing.T) {
	convey.Convey("Given a Measurement struct", t, func() {
		ts := time.Now()
		m := model.Measurement{EventID: "evt-1", ColumnID: "diameter", Value: 10.2, TS: ts}

		convey.Convey("Then it should keep the submitted values", func() {
			convey.So(m.EventID, convey.ShouldEqual, "evt-1")
			convey.So(m.ColumnID, convey.ShouldEqual, "diameter")
			convey.So(m.Value, convey.ShouldEqual, 10.2)
			convey.So(m.TS, convey.ShouldEqual, ts)
		})
	})
}

func TestSeries(t *testing.T) {
	convey.Convey("Given a series built from a slice", t, func() {
		values := []float64{10, 12, 11}
		s := model.NewSeries("col-a", values)

		convey.Convey("When the source slice changes", func() {
			values[0] = 99

			convey.Convey("Then the series should keep its own copy", func() {
				convey.So(s.Values[0], convey.ShouldEqual, 10)
				convey.So(s.Len(), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When fingerprinting equal data", func() {
			other := model.NewSeries("col-b", []float64{10, 12, 11})

			convey.Convey("Then the fingerprints should match", func() {
				convey.So(s.Fingerprint(), convey.ShouldEqual, other.Fingerprint())
			})
		})

		convey.Convey("When fingerprinting reordered data", func() {
			other := model.NewSeries("col-a", []float64{12, 10, 11})

			convey.Convey("Then the fingerprints should differ", func() {
				convey.So(s.Fingerprint(), convey.ShouldNotEqual, other.Fingerprint())
			})
		})
	})
}
