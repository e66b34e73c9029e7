package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
)

// PlainFormatter formats output as an aligned table without colors,
// followed by totals.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if _, err := fmt.Fprintln(tw, "ID\tSIZE\tFEE\tTYPE\tSTATE\tPATH"); err != nil {
		return err
	}
	for _, it := range r.Items {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID, humanize.IBytes(uint64(it.Size)), AR(it.Reward), it.Type, it.State, it.Path)
		if err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nitems: %d  size: %s  fee: %s", len(r.Items), humanize.IBytes(uint64(r.TotalSize())), AR(r.Reward))
	if r.ServiceFee != "" {
		fmt.Fprintf(w, "  service fee: %s", AR(r.ServiceFee))
	}
	if r.BalanceAfter != "" {
		fmt.Fprintf(w, "  balance after: %s", AR(r.BalanceAfter))
	}
	if n := r.Count(StateFailed); n > 0 {
		fmt.Fprintf(w, "  failed: %d", n)
	}
	w.WriteString("\n")

	if r.ManifestURL != "" {
		fmt.Fprintf(w, "manifest: %s\n", r.ManifestURL)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
