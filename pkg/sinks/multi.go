// Package sinks composes ports.ReportSink implementations.
package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/pidtune/pkg/ports"
	"github.com/aretw0/pidtune/pkg/trace"
)

type multi []ports.ReportSink

// Multi returns a sink that publishes every report to all of sinks, in order.
//
// The sample sequence of a report can be read only once: Multi reads it and gives each
// sink its own copy. A failing sink does not prevent the others from running; all errors
// are returned joined.
func Multi(sinks ...ports.ReportSink) ports.ReportSink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return multi(sinks)
}

func (m multi) Publish(ctx context.Context, report *ports.TrialReport) error {
	var samples []trace.Sample
	if report.Trace != nil {
		samples = trace.Collect(report.Trace.Samples())
	}

	var errs []error
	for i, sink := range m {
		cp := *report
		if report.Trace != nil {
			cp.Trace = trace.FromSamples(report.Trace.Period, samples)
		}
		if err := sink.Publish(ctx, &cp); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, sink, err))
		}
	}
	return errors.Join(errs...)
}

type journalSink struct {
	journal ports.Journal
}

// Journal returns a sink that appends the summary of every report to j.
func Journal(j ports.Journal) ports.ReportSink {
	return journalSink{journal: j}
}

func (s journalSink) Publish(ctx context.Context, report *ports.TrialReport) error {
	var stats trace.Stats
	if report.Trace != nil {
		stats = trace.Summarize(report.Trace.Samples())
	}
	return s.journal.Append(ctx, report.Entry(stats))
}

// Func adapts a function to ports.ReportSink.
type Func func(ctx context.Context, report *ports.TrialReport) error

func (f Func) Publish(ctx context.Context, report *ports.TrialReport) error {
	return f(ctx, report)
}
