package types_test

import (
	"encoding/json"
	"math"
	"testing"

	types "github.com/okian/spc/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNumber(t *testing.T) {
	Convey("Given optional numbers", t, func() {
		Convey("When a finite value is wrapped", func() {
			n := types.Some(2.5)

			Convey("Then it should be defined", func() {
				v, ok := n.Value()
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 2.5)
				So(n.Float64(), ShouldEqual, 2.5)
			})
		})

		Convey("When NaN or an infinity is wrapped", func() {
			Convey("Then it should be undefined", func() {
				So(types.Some(math.NaN()).Defined(), ShouldBeFalse)
				So(types.Some(math.Inf(1)).Defined(), ShouldBeFalse)
				So(types.Some(math.Inf(-1)).Defined(), ShouldBeFalse)
			})
		})

		Convey("When an undefined number reaches a presentation edge", func() {
			n := types.None()

			Convey("Then it should convert to NaN, never zero", func() {
				So(math.IsNaN(n.Float64()), ShouldBeTrue)
				So(n.Or(-1), ShouldEqual, -1)
			})
		})
	})
}

func TestNumberJSON(t *testing.T) {
	Convey("Given a struct with optional numbers", t, func() {
		type payload struct {
			A types.Number `json:"a"`
			B types.Number `json:"b"`
			C types.Number `json:"c"`
		}

		Convey("When marshalling", func() {
			b, err := json.Marshal(payload{A: types.Some(1.25), B: types.None(), C: types.Some(0)})

			Convey("Then undefined should encode as null", func() {
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"a":1.25,"b":null,"c":0}`)
			})
		})

		Convey("When unmarshalling with null and missing fields", func() {
			var p payload
			err := json.Unmarshal([]byte(`{"a":3,"b":null}`), &p)

			Convey("Then only present numbers should be defined", func() {
				So(err, ShouldBeNil)
				So(p.A.Defined(), ShouldBeTrue)
				So(p.A.Float64(), ShouldEqual, 3)
				So(p.B.Defined(), ShouldBeFalse)
				So(p.C.Defined(), ShouldBeFalse)
			})
		})

		Convey("When the value is not a number", func() {
			var p payload
			err := json.Unmarshal([]byte(`{"a":"x"}`), &p)

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestMinAndSum(t *testing.T) {
	Convey("Given a mix of defined and undefined numbers", t, func() {
		ns := []types.Number{types.None(), types.Some(4), types.Some(-2), types.None()}

		Convey("Then Min should ignore undefined values", func() {
			So(types.Min(ns...).Float64(), ShouldEqual, -2)
		})

		Convey("And Sum should add only defined values", func() {
			So(types.Sum(ns...).Float64(), ShouldEqual, 2)
		})

		Convey("And both should be undefined when nothing is defined", func() {
			So(types.Min(types.None(), types.None()).Defined(), ShouldBeFalse)
			So(types.Sum().Defined(), ShouldBeFalse)
		})
	})
}
