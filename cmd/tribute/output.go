package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/snapetech/tribute/internal/preload"
	"github.com/snapetech/tribute/internal/store"
)

// progressPrinter writes one line each time the percent changes.
func progressPrinter(w io.Writer) func(preload.Progress) {
	last := -1
	return func(p preload.Progress) {
		if p.Percent == last {
			return
		}
		last = p.Percent
		fmt.Fprintf(w, "progress: %3d%% (%d/%d bytes)\n", p.Percent, p.Loaded, p.Total)
	}
}

func printSummary(w io.Writer, sum preload.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tSTATUS\tVALIDATION\tBYTES\tSRC")
	for _, o := range sum.Outcomes {
		v := string(o.Validation)
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", o.Key, o.Kind, o.Status, v, o.Bytes, o.Locator)
	}
	tw.Flush()
	if !sum.Finished.IsZero() {
		fmt.Fprintf(w, "session %s: %d/%d ready in %s\n",
			sum.SessionID, sum.Ready(), len(sum.Outcomes), sum.Finished.Sub(sum.Started).Round(time.Millisecond))
	}
}

func printSessions(w io.Writer, sessions []store.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tASSETS\tREADY\tFALLBACK")
	for _, s := range sessions {
		dur := "running"
		if !s.Finished.IsZero() {
			dur = s.Finished.Sub(s.Started).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			s.ID, s.Started.Format(time.RFC3339), dur, s.Assets, s.Ready, s.Fallback)
	}
	tw.Flush()
}
