package sigma_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/spc/internal/domain/sigma"
	"github.com/okian/spc/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

const tolerance = 1e-4

func TestMovingRanges(t *testing.T) {
	Convey("Given the series 10, 12, 11, 13, 9", t, func() {
		values := []float64{10, 12, 11, 13, 9}

		Convey("Then the moving ranges should be the absolute successive differences", func() {
			So(sigma.MovingRanges(values), ShouldResemble, []float64{2, 1, 2, 4})
			So(sigma.MRBar(values), ShouldEqual, 2.25)
		})

		Convey("And the within estimate should divide MRBar by d2", func() {
			within, err := sigma.Within(values)
			So(err, ShouldBeNil)
			So(within, ShouldAlmostEqual, 2.25/1.128, tolerance)
			So(within, ShouldAlmostEqual, 1.9947, tolerance)
		})
	})

	Convey("Given fewer than two values", t, func() {
		Convey("Then there should be no moving ranges", func() {
			So(sigma.MovingRanges([]float64{4}), ShouldBeEmpty)
			So(sigma.MRBar([]float64{4}), ShouldEqual, 0)
		})
	})
}

func TestOverall(t *testing.T) {
	Convey("Given a series with known variance", t, func() {
		values := []float64{1, 1, 1, 2, 2, 2}

		Convey("Then overall should use the n-1 denominator", func() {
			overall, err := sigma.Overall(values)
			So(err, ShouldBeNil)
			So(overall, ShouldAlmostEqual, math.Sqrt(0.3), 1e-12)
		})
	})
}

func TestCompute(t *testing.T) {
	Convey("Given a single observation", t, func() {
		est, err := sigma.Compute([]float64{7})

		Convey("Then both estimates should be zero without error", func() {
			So(err, ShouldBeNil)
			So(est.Overall, ShouldEqual, 0)
			So(est.Within, ShouldEqual, 0)
		})
	})

	Convey("Given a constant series", t, func() {
		est, err := sigma.Compute([]float64{5, 5, 5, 5})

		Convey("Then both estimates should be zero", func() {
			So(err, ShouldBeNil)
			So(est, ShouldResemble, sigma.Estimate{})
		})
	})

	Convey("Given an empty series", t, func() {
		_, err := sigma.Compute(nil)

		Convey("Then it should fail with invalid input", func() {
			So(errors.Is(err, types.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("And each estimator should fail the same way", func() {
			_, errOverall := sigma.Overall([]float64{})
			_, errWithin := sigma.Within([]float64{})
			So(errors.Is(errOverall, types.ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(errWithin, types.ErrInvalidInput), ShouldBeTrue)
		})
	})
}
