package ports

import (
	"context"
	"time"

	"github.com/aretw0/pidtune/pkg/domain"
	"github.com/aretw0/pidtune/pkg/trace"
)

// TrialReport is everything a sink receives about one completed trial.
type TrialReport struct {
	Trial     int            `json:"trial"`
	StartedAt time.Time      `json:"started_at"`
	Axis      domain.Axis    `json:"axis"`
	Gains     domain.Gains   `json:"gains"`
	Distance  float64        `json:"distance"`
	Outcome   domain.Outcome `json:"outcome"`
	Fault     string         `json:"fault,omitempty"`
	Divisor   int            `json:"divisor"`
	Estimated time.Duration  `json:"estimated"`
	Recording time.Duration  `json:"recording"`
	Elapsed   time.Duration  `json:"elapsed"`

	// Trace is the processed recorder buffer. Its samples can be read once.
	Trace *trace.Report `json:"-"`
}

// Entry builds the journal summary of the report.
func (r *TrialReport) Entry(stats trace.Stats) JournalEntry {
	return JournalEntry{
		Trial:     r.Trial,
		StartedAt: r.StartedAt,
		Axis:      r.Axis.ID,
		Gains:     r.Gains,
		Distance:  r.Distance,
		Outcome:   r.Outcome,
		Fault:     r.Fault,
		Divisor:   r.Divisor,
		Estimated: r.Estimated,
		Recording: r.Recording,
		Stats:     stats,
	}
}

// ReportSink consumes the report of a trial (plot, print, archive...).
type ReportSink interface {
	Publish(ctx context.Context, report *TrialReport) error
}

// JournalEntry is the trace-free summary of a trial.
type JournalEntry struct {
	Trial     int            `json:"trial"`
	StartedAt time.Time      `json:"started_at"`
	Axis      string         `json:"axis"`
	Gains     domain.Gains   `json:"gains"`
	Distance  float64        `json:"distance"`
	Outcome   domain.Outcome `json:"outcome"`
	Fault     string         `json:"fault,omitempty"`
	Divisor   int            `json:"divisor"`
	Estimated time.Duration  `json:"estimated"`
	Recording time.Duration  `json:"recording"`
	Stats     trace.Stats    `json:"stats"`
}

// Journal stores trial summaries, oldest first.
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
	List(ctx context.Context) ([]JournalEntry, error)
}
