package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/spc/internal/domain/capability"
	"github.com/okian/spc/internal/domain/controlchart"
	"github.com/okian/spc/internal/domain/format"
	"github.com/okian/spc/internal/domain/rules"
	"github.com/okian/spc/internal/domain/types"
)

// numberFlag is an optional float flag; unset means undefined.
type numberFlag struct {
	n types.Number
}

func (f *numberFlag) String() string {
	if !f.n.Defined() {
		return ""
	}
	return strconv.FormatFloat(f.n.Float64(), 'g', -1, 64)
}

func (f *numberFlag) Set(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a finite number: %q", s)
	}
	f.n = types.Some(v)
	return nil
}

func (f *numberFlag) Type() string { return "float" }

type analyzeOptions struct {
	column string
	json   bool
}

func (o *analyzeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.column, "column", "c", "", "column to analyse (default: first column)")
	cmd.Flags().BoolVar(&o.json, "json", false, "print the raw result as JSON")
}

func newIChartCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "ichart FILE",
		Short: "Compute Individuals control limits and rule results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := loadSeries(args[0], opts.column)
			if err != nil {
				return err
			}
			chart, err := controlchart.ComputeIChart(series.Values)
			if err != nil {
				return err
			}
			results := rules.RunControlRules(chart.Values, chart.Mean, chart.Sigma)
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"column_id": series.ColumnID,
					"chart":     chart,
					"rules":     results,
					"flagged":   rules.Flagged(results),
				})
			}
			return printIChart(cmd.OutOrStdout(), series.ColumnID, chart, results)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newCapabilityCmd() *cobra.Command {
	var (
		opts             analyzeOptions
		lsl, usl, target numberFlag
		padSigma         float64
	)
	cmd := &cobra.Command{
		Use:   "capability FILE",
		Short: "Compute capability indices and the PPM table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := loadSeries(args[0], opts.column)
			if err != nil {
				return err
			}
			limits := capability.SpecLimits{LSL: lsl.n, USL: usl.n, Target: target.n}
			res, err := capability.Compute(series.Values, limits, series.ColumnID,
				capability.WithHistogramPadding(padSigma))
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			return printCapability(cmd.OutOrStdout(), res)
		},
	}
	opts.bind(cmd)
	cmd.Flags().Var(&lsl, "lsl", "lower specification limit")
	cmd.Flags().Var(&usl, "usl", "upper specification limit")
	cmd.Flags().Var(&target, "target", "process target")
	cmd.Flags().Float64Var(&padSigma, "pad-sigma", 0, "widen the histogram to mean ± k·sigma")
	return cmd
}

func newRulesCmd() *cobra.Command {
	var (
		opts      analyzeOptions
		mean, std numberFlag
	)
	cmd := &cobra.Command{
		Use:   "rules FILE",
		Short: "Evaluate the out-of-control rules",
		Long:  "Evaluate the out-of-control rules. Mean and sigma default to the I-Chart center line and sigma.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := loadSeries(args[0], opts.column)
			if err != nil {
				return err
			}
			chart, err := controlchart.ComputeIChart(series.Values)
			if err != nil {
				return err
			}
			results := rules.RunControlRules(series.Values, mean.n.Or(chart.Mean), std.n.Or(chart.Sigma))
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return printRules(cmd.OutOrStdout(), results)
		},
	}
	opts.bind(cmd)
	cmd.Flags().Var(&mean, "mean", "center line (default: series mean)")
	cmd.Flags().Var(&std, "sigma", "sigma (default: moving-range sigma)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printIChart(w io.Writer, column string, c controlchart.Result, results []rules.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "column\t%s\n", column)
	fmt.Fprintf(tw, "n\t%d\n", len(c.Values))
	fmt.Fprintf(tw, "mean\t%s\n", format.Float(c.Mean))
	fmt.Fprintf(tw, "mr bar\t%s\n", format.Float(c.MRBar))
	fmt.Fprintf(tw, "sigma\t%s\n", format.Float(c.Sigma))
	fmt.Fprintf(tw, "ucl\t%s\n", format.Float(c.UCL))
	fmt.Fprintf(tw, "lcl\t%s\n", format.Float(c.LCL))
	fmt.Fprintf(tw, "out of control\t%v\n", c.OutOfControl)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)
	return printRules(w, results)
}

func printRules(w io.Writer, results []rules.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "rule\tresult\tdescription\tfailed")
	for _, r := range results {
		status := "pass"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", r.RuleNumber, status, r.Description, r.FailedIndices)
	}
	return tw.Flush()
}

func printCapability(w io.Writer, r capability.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "column\t%s\n", r.Input.ColumnID)
	fmt.Fprintf(tw, "lsl / target / usl\t%s / %s / %s\n",
		format.Number(r.Input.LSL), format.Number(r.Input.Target), format.Number(r.Input.USL))
	fmt.Fprintf(tw, "n\t%d\n", r.N)
	fmt.Fprintf(tw, "mean\t%s\n", format.Float(r.Mean))
	fmt.Fprintf(tw, "sigma within / overall\t%s / %s\n", format.Float(r.Sigma.Within), format.Float(r.Sigma.Overall))
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "index\tvalue\tindex\tvalue")
	fmt.Fprintf(tw, "Cp\t%s\tPp\t%s\n", format.Number(r.Cp), format.Number(r.Pp))
	fmt.Fprintf(tw, "Cpl\t%s\tPpl\t%s\n", format.Number(r.Cpl), format.Number(r.Ppl))
	fmt.Fprintf(tw, "Cpu\t%s\tPpu\t%s\n", format.Number(r.Cpu), format.Number(r.Ppu))
	fmt.Fprintf(tw, "Cpk\t%s\tPpk\t%s\n", format.Number(r.Cpk), format.Number(r.Ppk))
	fmt.Fprintf(tw, "Cpm\t%s\t\t\n", format.Number(r.Cpm))
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "ppm\tobserved\texpected overall\texpected within")
	for _, row := range r.PPM {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Label,
			format.Number(row.Observed), format.Number(row.ExpectedOverall), format.Number(row.ExpectedWithin))
	}
	return tw.Flush()
}
