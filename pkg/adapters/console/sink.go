// Package console prints trial reports for the operator.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/runner"
	"github.com/aretw0/pidtune/pkg/trace"
	"github.com/muesli/termenv"
)

// Sink implements ports.ReportSink by writing a summary, and optionally every sample,
// to a terminal or any writer.
type Sink struct {
	out     *termenv.Output
	unit    runner.DisplayUnit
	samples bool
	profile *termenv.Profile
}

type Option func(*Sink)

// WithUnit sets the unit positions are printed in.
func WithUnit(u runner.DisplayUnit) Option {
	return func(s *Sink) {
		if u.Meters > 0 {
			s.unit = u
		}
	}
}

// WithSamples prints one line per recorded sample after the summary.
func WithSamples(enabled bool) Option {
	return func(s *Sink) {
		s.samples = enabled
	}
}

// WithColor forces the color profile, e.g. termenv.Ascii for plain output.
func WithColor(p termenv.Profile) Option {
	return func(s *Sink) {
		s.profile = &p
	}
}

// New creates a console sink writing to w (stdout when nil).
func New(w io.Writer, opts ...Option) *Sink {
	if w == nil {
		w = os.Stdout
	}
	s := &Sink{
		unit: runner.Micrometer,
	}
	for _, opt := range opts {
		opt(s)
	}
	var outOpts []termenv.OutputOption
	if s.profile != nil {
		outOpts = append(outOpts, termenv.WithProfile(*s.profile))
	}
	s.out = termenv.NewOutput(w, outOpts...)
	return s
}

var _ ports.ReportSink = (*Sink)(nil)

// Publish prints the report.
func (s *Sink) Publish(ctx context.Context, report *ports.TrialReport) error {
	var samples []trace.Sample
	if report.Trace != nil {
		samples = trace.Collect(report.Trace.Samples())
	}
	var acc trace.Accumulator
	for _, sm := range samples {
		acc.Add(sm)
	}
	stats := acc.Stats()

	fmt.Fprintf(s.out, "Trial %d (axis %s): %s\n", report.Trial, report.Axis.ID, s.outcome(report.Outcome))
	if report.Fault != "" {
		fmt.Fprintf(s.out, "  fault: %s\n", report.Fault)
	}
	fmt.Fprintf(s.out, "  distance %s, divisor %d, estimated %s, recording %s, elapsed %s\n",
		s.unit.Format(report.Distance), report.Divisor,
		report.Estimated, report.Recording, report.Elapsed)
	fmt.Fprintf(s.out, "  gains P=%g I=%g D=%g\n", report.Gains.P, report.Gains.I, report.Gains.D)
	if stats.Count == 0 {
		_, err := fmt.Fprintln(s.out, "  no samples recorded")
		return err
	}
	fmt.Fprintf(s.out, "  %d samples over %s: max |error| %s, rms %s, final %s, overshoot %s\n",
		stats.Count, stats.Duration,
		s.unit.Format(stats.MaxAbsError), s.unit.Format(stats.RMSError),
		s.unit.Format(stats.FinalError), s.unit.Format(stats.Overshoot))

	if !s.samples {
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "index\ttime\tcommanded [%s]\tactual [%s]\terror [%s]\t\n", s.unit.Name, s.unit.Name, s.unit.Name)
	for _, sm := range samples {
		fmt.Fprintf(tw, "%d\t%s\t%.6g\t%.6g\t%.6g\t\n", sm.Index, sm.Time,
			s.unit.FromMeters(sm.Commanded), s.unit.FromMeters(sm.Actual), s.unit.FromMeters(sm.Error))
	}
	return tw.Flush()
}

func (s *Sink) outcome(o domain.Outcome) termenv.Style {
	style := s.out.String(string(o)).Bold()
	switch o {
	case domain.OutcomeOnTarget:
		return style.Foreground(s.out.Color("#22c55e"))
	case domain.OutcomeTimeout:
		return style.Foreground(s.out.Color("#f59e0b"))
	default:
		return style.Foreground(s.out.Color("#ef4444"))
	}
}
