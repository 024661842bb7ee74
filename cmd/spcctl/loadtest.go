package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/okian/spc/internal/domain/controlchart"
	"github.com/okian/spc/internal/domain/format"
	"github.com/okian/spc/pkg/logger"
)

// Sentinel kinds for load test failures.
var (
	ErrVerification = errors.New("verification failed")
	ErrStatus       = errors.New("unexpected status")
	ErrWindow       = errors.New("count exceeds the service's column window")
)

const (
	defaultRequestTimeout = 5 * time.Second
	chartTolerance        = 1e-9
)

type loadTestConfig struct {
	addr        string
	column      string
	count       int
	mean        float64
	sigma       float64
	shiftAt     int
	shift       float64
	seed        uint64
	maxRetries  uint
	rps         float64
	settleAfter time.Duration
}

func newLoadTestCmd() *cobra.Command {
	cfg := loadTestConfig{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Post synthetic measurements with a mean shift and verify the service's I-Chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.column == "" {
				cfg.column = "loadtest-" + uuid.NewString()[:8]
			}
			report, err := runLoadTest(cmd.Context(), http.DefaultClient, cfg)
			if err != nil {
				return err
			}
			report.print(cmd.OutOrStdout())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.addr, "addr", "http://localhost:9080", "service base URL")
	f.StringVar(&cfg.column, "column", "", "column to write (default: random)")
	f.IntVar(&cfg.count, "count", 200, "number of measurements")
	f.Float64Var(&cfg.mean, "mean", 10, "process mean before the shift")
	f.Float64Var(&cfg.sigma, "sigma", 1, "process standard deviation")
	f.IntVar(&cfg.shiftAt, "shift-at", 150, "index of the first shifted measurement")
	f.Float64Var(&cfg.shift, "shift", 4, "mean shift in sigmas")
	f.Uint64Var(&cfg.seed, "seed", 1, "random seed")
	f.Float64Var(&cfg.rps, "rate", 0, "maximum requests per second, retries included (0 = unlimited)")
	f.UintVar(&cfg.maxRetries, "max-retries", 8, "attempts per request on backpressure or server errors")
	f.DurationVar(&cfg.settleAfter, "settle", 10*time.Second, "how long to wait for the service to ingest everything")
	return cmd
}

// loadTestReport summarizes a run.
type loadTestReport struct {
	Column     string
	Sent       int
	Duplicates int
	Retries    int
	Elapsed    time.Duration
	Mean       float64
	UCL        float64
	LCL        float64
	Flagged    int
	Shifted    int
}

func (r loadTestReport) print(w io.Writer) {
	fmt.Fprintf(w, "column %s: sent %d (%d duplicates, %d retries) in %s\n",
		r.Column, r.Sent, r.Duplicates, r.Retries, r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "mean %s  ucl %s  lcl %s\n", format.Float(r.Mean), format.Float(r.UCL), format.Float(r.LCL))
	fmt.Fprintf(w, "flagged %d points; %d shifted values above the pre-shift mean\n", r.Flagged, r.Shifted)
}

// generate draws count normal values; from shiftAt on the mean moves by
// shift sigmas.
func generate(cfg loadTestConfig) []float64 {
	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	out := make([]float64, cfg.count)
	for i := range out {
		mu := cfg.mean
		if cfg.shiftAt >= 0 && i >= cfg.shiftAt {
			mu += cfg.shift * cfg.sigma
		}
		out[i] = mu + rng.NormFloat64()*cfg.sigma
	}
	return out
}

func runLoadTest(ctx context.Context, client *http.Client, cfg loadTestConfig) (loadTestReport, error) {
	log := logger.Get().Named("loadtest")
	if cfg.count < 1 {
		return loadTestReport{}, fmt.Errorf("count must be positive, got %d", cfg.count)
	}
	lt := &loadTester{client: client, base: cfg.addr, maxRetries: cfg.maxRetries, limiter: newLimiter(cfg.rps)}

	// Workers ingest concurrently, so which points a full window evicts
	// depends on arrival order; the run must fit in one window.
	window, err := lt.window(ctx)
	if err != nil {
		return loadTestReport{}, err
	}
	if window > 0 && cfg.count > window {
		return loadTestReport{}, fmt.Errorf("%w: %d > %d", ErrWindow, cfg.count, window)
	}
	if err := lt.resetColumn(ctx, cfg.column); err != nil {
		return loadTestReport{}, err
	}

	values := generate(cfg)
	report := loadTestReport{Column: cfg.column}

	start := time.Now()
	for i, v := range values {
		dup, err := lt.post(ctx, cfg.column, v)
		if err != nil {
			return report, fmt.Errorf("measurement %d: %w", i, err)
		}
		if dup {
			report.Duplicates++
		}
		report.Sent++
	}
	report.Elapsed = time.Since(start)
	report.Retries = lt.retries
	log.Info(ctx, "measurements sent",
		logger.String("column", cfg.column),
		logger.Int("count", report.Sent),
		logger.Any("seed", cfg.seed),
		logger.Duration("elapsed", report.Elapsed),
	)

	stored, err := lt.awaitColumn(ctx, cfg.column, len(values), cfg.settleAfter)
	if err != nil {
		return report, err
	}
	chart, flagged, err := lt.chart(ctx, cfg.column)
	if err != nil {
		return report, err
	}
	if err := verify(values, stored, chart); err != nil {
		return report, err
	}

	report.Mean, report.UCL, report.LCL = chart.Mean, chart.UCL, chart.LCL
	report.Flagged = len(flagged)
	for _, v := range values[min(max(cfg.shiftAt, 0), len(values)):] {
		if v > cfg.mean {
			report.Shifted++
		}
	}
	return report, nil
}

// verify checks that the service stored exactly the posted values (in any
// order, since workers ingest concurrently) and that its chart agrees with
// a local computation over the stored order.
func verify(posted, stored []float64, remote controlchart.Result) error {
	if len(stored) != len(posted) {
		return fmt.Errorf("%w: stored %d values, posted %d", ErrVerification, len(stored), len(posted))
	}
	a, b := slices.Clone(posted), slices.Clone(stored)
	slices.Sort(a)
	slices.Sort(b)
	if !slices.Equal(a, b) {
		return fmt.Errorf("%w: stored values differ from posted values", ErrVerification)
	}
	local, err := controlchart.ComputeIChart(stored)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		name          string
		local, remote float64
	}{
		{"mean", local.Mean, remote.Mean},
		{"ucl", local.UCL, remote.UCL},
		{"lcl", local.LCL, remote.LCL},
	} {
		if math.Abs(c.local-c.remote) > chartTolerance*math.Max(1, math.Abs(c.local)) {
			return fmt.Errorf("%w: %s is %v, expected %v", ErrVerification, c.name, c.remote, c.local)
		}
	}
	return nil
}

// loadTester talks to the service over HTTP.
type loadTester struct {
	client     *http.Client
	base       string
	maxRetries uint
	limiter    *rate.Limiter
	retries    int
}

type measurementBody struct {
	EventID  string  `json:"event_id"`
	ColumnID string  `json:"column_id"`
	Value    float64 `json:"value"`
	TS       string  `json:"ts"`
}

// post submits one measurement, retrying on backpressure and server errors
// with exponential backoff. The event ID is fixed across retries so the
// service never stores a retried value twice.
func (lt *loadTester) post(ctx context.Context, column string, v float64) (bool, error) {
	body, err := json.Marshal(measurementBody{
		EventID:  uuid.NewString(),
		ColumnID: column,
		Value:    v,
		TS:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	attempt := 0
	op := func() (bool, error) {
		if attempt > 0 {
			lt.retries++
		}
		attempt++
		if err := lt.limiter.Wait(ctx); err != nil {
			return false, backoff.Permanent(err)
		}
		status, _, err := lt.do(ctx, http.MethodPost, "/measurements", body)
		if err != nil {
			return false, err
		}
		switch {
		case status == http.StatusAccepted:
			return false, nil
		case status == http.StatusOK:
			return true, nil
		case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
			return false, fmt.Errorf("%w %d", ErrStatus, status)
		default:
			return false, backoff.Permanent(fmt.Errorf("%w %d", ErrStatus, status))
		}
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(lt.maxRetries),
	)
}

// window reads the per-column point limit from the service stats; 0 means
// unbounded.
func (lt *loadTester) window(ctx context.Context) (int, error) {
	status, body, err := lt.do(ctx, http.MethodGet, "/stats", nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("%w %d from /stats", ErrStatus, status)
	}
	var stats struct {
		MaxPoints int `json:"maxPoints"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		return 0, fmt.Errorf("decode stats: %w", err)
	}
	return stats.MaxPoints, nil
}

// resetColumn deletes any values a previous run left in column.
func (lt *loadTester) resetColumn(ctx context.Context, column string) error {
	status, _, err := lt.do(ctx, http.MethodDelete, "/columns/"+url.PathEscape(column), nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusNotFound {
		return fmt.Errorf("%w %d deleting column %s", ErrStatus, status, column)
	}
	return nil
}

// awaitColumn polls the column until it holds want values or settle passes.
func (lt *loadTester) awaitColumn(ctx context.Context, column string, want int, settle time.Duration) ([]float64, error) {
	deadline := time.Now().Add(settle)
	var values []float64
	op := func() ([]float64, error) {
		status, body, err := lt.do(ctx, http.MethodGet, "/columns/"+url.PathEscape(column), nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK && status != http.StatusNotFound {
			return nil, backoff.Permanent(fmt.Errorf("%w %d", ErrStatus, status))
		}
		if status == http.StatusOK {
			var s struct {
				Values []float64 `json:"values"`
			}
			if err := json.Unmarshal(body, &s); err != nil {
				return nil, backoff.Permanent(err)
			}
			values = s.Values
			if len(values) >= want {
				return values, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, backoff.Permanent(fmt.Errorf("%w: column holds %d of %d values after %s",
				ErrVerification, len(values), want, settle))
		}
		return nil, errors.New("column still filling")
	}
	b := backoff.NewConstantBackOff(50 * time.Millisecond)
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(settle+time.Second))
}

func (lt *loadTester) chart(ctx context.Context, column string) (controlchart.Result, []int, error) {
	status, body, err := lt.do(ctx, http.MethodGet, "/columns/"+url.PathEscape(column)+"/ichart", nil)
	if err != nil {
		return controlchart.Result{}, nil, err
	}
	if status != http.StatusOK {
		return controlchart.Result{}, nil, fmt.Errorf("%w %d: %s", ErrStatus, status, bytes.TrimSpace(body))
	}
	var report struct {
		Chart   controlchart.Result `json:"chart"`
		Flagged []int               `json:"flagged"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		return controlchart.Result{}, nil, err
	}
	return report.Chart, report.Flagged, nil
}

func (lt *loadTester) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()
	var rd io.Reader = http.NoBody
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, lt.base+path, rd)
	if err != nil {
		return 0, nil, backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := lt.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out, nil
}

// newLimiter paces posts at rps per second; rps <= 0 disables pacing.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}
