package output

import (
	"bytes"
	"fmt"
)

// TSVFormatter formats items as tab-separated values with a header row.
// Sizes are bytes and fees are winston so the output is easy to script.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString("ID\tSIZE\tREWARD\tTYPE\tSTATE\tPATH\n")
	for _, it := range r.Items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", it.ID, it.Size, it.Reward, it.Type, it.State, it.Path)
	}
	return nil
}

func init() {
	Register("tsv", func() Formatter {
		return &TSVFormatter{}
	})
}

// Ensure TSVFormatter implements Formatter.
var _ Formatter = (*TSVFormatter)(nil)
