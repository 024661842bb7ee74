package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/spc/internal/adapters/http/api"
	"github.com/okian/spc/internal/adapters/repository"
	service "github.com/okian/spc/internal/app"
	"github.com/okian/spc/internal/domain/capability"
	"github.com/okian/spc/internal/domain/model"
	"github.com/okian/spc/internal/domain/rules"
	"github.com/okian/spc/internal/domain/types"
	"github.com/okian/spc/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// failingDeps returns err from every call.
type failingDeps struct {
	err error
}

func (f failingDeps) Enqueue(context.Context, model.Measurement) (service.Ack, error) {
	return service.Ack{}, f.err
}
func (f failingDeps) Columns(context.Context) ([]repository.ColumnInfo, error) { return nil, f.err }
func (f failingDeps) Column(context.Context, string) (model.Series, error) {
	return model.Series{}, f.err
}
func (f failingDeps) ReplaceColumn(context.Context, string, []float64) error { return f.err }
func (f failingDeps) DeleteColumn(context.Context, string) error             { return f.err }
func (f failingDeps) IChart(context.Context, string) (service.ChartReport, error) {
	return service.ChartReport{}, f.err
}
func (f failingDeps) IChartValues(context.Context, []float64) (service.ChartReport, error) {
	return service.ChartReport{}, f.err
}
func (f failingDeps) Capability(context.Context, string, capability.SpecLimits) (capability.Result, error) {
	return capability.Result{}, f.err
}
func (f failingDeps) CapabilityValues(context.Context, []float64, capability.SpecLimits) (capability.Result, error) {
	return capability.Result{}, f.err
}
func (f failingDeps) EvaluateRules(context.Context, []float64, types.Number, types.Number) ([]rules.Result, error) {
	return nil, f.err
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps api.Dependencies, stats api.StatsProvider) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, stats).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server over a started service", t, func() {
		svc := service.New(service.WithWorkerCount(1), service.WithRuleMonitoring(false))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		mux := newMux(svc, svc)

		Convey("Then health should serve Prometheus metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats should report a started service", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then an unknown route should be not found", func() {
			w := do(mux, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a wrong method should be rejected", func() {
			w := do(mux, http.MethodGet, "/measurements", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When a column is stored", func() {
			w := do(mux, http.MethodPut, "/columns/diameter", `{"values":[10,12,11,13,9]}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			Convey("Then it should be listed and readable", func() {
				list := do(mux, http.MethodGet, "/columns", "")
				So(list.Code, ShouldEqual, http.StatusOK)
				So(list.Body.String(), ShouldContainSubstring, `"column_id":"diameter"`)

				get := do(mux, http.MethodGet, "/columns/diameter", "")
				So(get.Code, ShouldEqual, http.StatusOK)
				So(decode(get)["values"], ShouldResemble, []any{10.0, 12.0, 11.0, 13.0, 9.0})
			})

			Convey("Then its I-Chart should include display strings", func() {
				w := do(mux, http.MethodGet, "/columns/diameter/ichart", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				display := body["display"].(map[string]any)
				So(display["mean"], ShouldEqual, "11")
				So(display["mr_bar"], ShouldEqual, "2.25")
				So(display["ucl"], ShouldEqual, "16.98")
				So(body["rules"], ShouldHaveLength, 8)
			})

			Convey("Then its capability should honor the query limits", func() {
				w := do(mux, http.MethodGet, "/columns/diameter/capability?lsl=5&usl=17&target=11", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["cp"], ShouldNotBeNil)
				display := body["display"].(map[string]any)
				So(display["cp"], ShouldNotEqual, "*")
				So(display["ppm"], ShouldHaveLength, 3)
			})

			Convey("Then capability without limits should render undefined indices", func() {
				w := do(mux, http.MethodGet, "/columns/diameter/capability", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["cp"], ShouldBeNil)
				So(body["display"].(map[string]any)["cp"], ShouldEqual, "*")
			})

			Convey("Then a malformed limit should be a bad request", func() {
				w := do(mux, http.MethodGet, "/columns/diameter/capability?lsl=abc", "")
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then deleting it should remove it", func() {
				So(do(mux, http.MethodDelete, "/columns/diameter", "").Code, ShouldEqual, http.StatusNoContent)
				So(do(mux, http.MethodGet, "/columns/diameter", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("Then an unknown column should be not found", func() {
			So(do(mux, http.MethodGet, "/columns/nope/ichart", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodDelete, "/columns/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then an empty column body should be a bad request", func() {
			w := do(mux, http.MethodPut, "/columns/empty", `{"values":[]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When measurements are posted", func() {
			first := do(mux, http.MethodPost, "/measurements", `{"event_id":"e1","column_id":"c","value":1.5}`)
			again := do(mux, http.MethodPost, "/measurements", `{"event_id":"e1","column_id":"c","value":1.5}`)

			Convey("Then the first should be accepted and the repeat a duplicate", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(decode(first)["status"], ShouldEqual, "accepted")
				So(again.Code, ShouldEqual, http.StatusOK)
				So(decode(again)["duplicate"], ShouldEqual, true)
			})

			Convey("Then the value should reach the column", func() {
				deadline := time.Now().Add(time.Second)
				code := 0
				for time.Now().Before(deadline) {
					if code = do(mux, http.MethodGet, "/columns/c", "").Code; code == http.StatusOK {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("Then invalid measurements should be bad requests", func() {
			cases := []string{
				`{"column_id":"c"}`,
				`{"value":1}`,
				`{"column_id":"c","value":1,"ts":"yesterday"}`,
				`{"column_id":"c","value":1,"extra":true}`,
				`not json`,
			}
			for _, body := range cases {
				w := do(mux, http.MethodPost, "/measurements", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("Then POST /ichart should chart posted values", func() {
			w := do(mux, http.MethodPost, "/ichart", `{"values":[1,2,3]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["chart"].(map[string]any)["mean"], ShouldEqual, 2.0)
		})

		Convey("Then POST /ichart should reject an empty series", func() {
			So(do(mux, http.MethodPost, "/ichart", `{"values":[]}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then POST /capability should accept null limits", func() {
			w := do(mux, http.MethodPost, "/capability", `{"values":[10,12,11,13,9],"lsl":5,"usl":null}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["cpl"], ShouldNotBeNil)
			So(body["cpu"], ShouldBeNil)
		})

		Convey("Then POST /rules should flag an outlier", func() {
			w := do(mux, http.MethodPost, "/rules", `{"values":[10,10,10,10,30],"mean":10,"sigma":1}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["flagged"], ShouldResemble, []any{4.0})
		})
	})
}

func TestServer_ErrorMapping(t *testing.T) {
	Convey("Given handlers whose dependencies fail", t, func() {
		stats := &mockStatsProvider{stats: map[string]interface{}{"started": false}}
		cases := []struct {
			err  error
			code int
		}{
			{fmt.Errorf("wrapped: %w", service.ErrBackpressure), http.StatusTooManyRequests},
			{service.ErrNotStarted, http.StatusServiceUnavailable},
			{repository.ErrNotFound, http.StatusNotFound},
			{types.ErrInvalidInput, http.StatusBadRequest},
			{fmt.Errorf("boom"), http.StatusInternalServerError},
		}

		for _, c := range cases {
			mux := newMux(failingDeps{err: c.err}, stats)

			w := do(mux, http.MethodPost, "/measurements", `{"column_id":"c","value":1}`)
			So(w.Code, ShouldEqual, c.code)
			w = do(mux, http.MethodGet, "/columns/c/ichart", "")
			So(w.Code, ShouldEqual, c.code)
		}

		Convey("Then error bodies should carry a code and message", func() {
			mux := newMux(failingDeps{err: service.ErrBackpressure}, stats)
			w := do(mux, http.MethodPost, "/measurements", `{"column_id":"c","value":1}`)
			body := decode(w)
			So(body["code"], ShouldEqual, "backpressure")
			So(body["message"], ShouldContainSubstring, "api.post_measurement")
		})
	})
}
