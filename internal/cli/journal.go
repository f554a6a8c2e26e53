package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/pidtune/internal/config"
)

// ListJournal prints the trial journal, oldest first, as a table or as JSON lines.
// Only the redis backend outlives a session, so it is the only one that can be listed.
func ListJournal(ctx context.Context, cfg config.Config, w io.Writer, asJSON bool) error {
	if cfg.Journal.Backend != config.JournalRedis {
		return Usagef("journal.backend must be %q to list past trials, got %q", config.JournalRedis, cfg.Journal.Backend)
	}
	unit, err := cfg.Unit()
	if err != nil {
		return &UsageError{Err: err}
	}

	journal, closeJournal := openJournal(cfg.Journal)
	defer closeJournal()

	entries, err := journal.List(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No trials recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tAXIS\tTRIAL\tP\tI\tD\tDISTANCE\tOUTCOME\tMAX ERROR\tRMS ERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%g\t%g\t%g\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Axis, e.Trial,
			e.Gains.P, e.Gains.I, e.Gains.D,
			unit.Format(e.Distance), e.Outcome,
			unit.Format(e.Stats.MaxAbsError), unit.Format(e.Stats.RMSError))
	}
	return tw.Flush()
}
