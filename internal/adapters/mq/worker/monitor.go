package worker

import (
	"context"
	"fmt"
	"slices"

	"github.com/okian/spc/internal/domain/controlchart"
	"github.com/okian/spc/internal/domain/model"
	"github.com/okian/spc/internal/domain/rules"
	"github.com/okian/spc/pkg/logger"
	"github.com/okian/spc/pkg/metrics"
)

// minMonitorPoints is the smallest column the monitor evaluates; fewer
// points give no meaningful moving range.
const minMonitorPoints = 2

// Alarm describes a newest point flagged by one or more rules.
type Alarm struct {
	ColumnID string
	Index    int
	Value    float64
	Rules    []int
	Chart    controlchart.Result
}

// AlarmFunc receives alarms raised by a RuleMonitor.
type AlarmFunc func(ctx context.Context, a Alarm)

// RuleMonitor recomputes a column's I-Chart after each measurement and
// raises an alarm when a rule flags the newest point. It works on the
// snapshot taken at append time, so every point is judged exactly once
// against the values that preceded it.
type RuleMonitor struct {
	rules   *rules.Set
	onAlarm AlarmFunc
	logger  logger.Logger
}

// MonitorOption configures a RuleMonitor.
type MonitorOption func(*RuleMonitor)

// WithRuleSet replaces the default rule set.
func WithRuleSet(s *rules.Set) MonitorOption {
	return func(m *RuleMonitor) {
		if s != nil {
			m.rules = s
		}
	}
}

// WithAlarmFunc registers a callback invoked for every alarm.
func WithAlarmFunc(fn AlarmFunc) MonitorOption {
	return func(m *RuleMonitor) {
		m.onAlarm = fn
	}
}

// NewRuleMonitor returns a monitor using the default rule set.
func NewRuleMonitor(opts ...MonitorOption) *RuleMonitor {
	m := &RuleMonitor{
		rules:  rules.Default(),
		logger: logger.Get().Named("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Inspect implements Monitor.
func (m *RuleMonitor) Inspect(ctx context.Context, series model.Series) error {
	if series.Len() < minMonitorPoints {
		return nil
	}
	chart, err := controlchart.ComputeIChart(series.Values)
	if err != nil {
		return fmt.Errorf("chart %s: %w", series.ColumnID, err)
	}

	newest := series.Len() - 1
	var hit []int
	for _, r := range m.rules.RunAll(chart.Values, chart.Mean, chart.Sigma) {
		if slices.Contains(r.FailedIndices, newest) {
			hit = append(hit, r.RuleNumber)
		}
	}
	if len(hit) == 0 {
		return nil
	}

	alarm := Alarm{
		ColumnID: series.ColumnID,
		Index:    newest,
		Value:    chart.Values[newest],
		Rules:    hit,
		Chart:    chart,
	}
	metrics.RecordOutOfControl(series.ColumnID)
	m.logger.Warn(ctx, "point out of control",
		logger.String("column_id", series.ColumnID),
		logger.Int("index", newest),
		logger.Float64("value", alarm.Value),
		logger.Any("rules", hit),
		logger.Float64("ucl", chart.UCL),
		logger.Float64("lcl", chart.LCL),
	)
	if m.onAlarm != nil {
		m.onAlarm(ctx, alarm)
	}
	return nil
}
