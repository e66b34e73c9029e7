package output

import (
	"bytes"
	"encoding/json"
)

// document is the structure written by the json and yaml formatters.
type document struct {
	Result   `yaml:",inline"`
	Size     int64  `json:"size" yaml:"size"`
	Uploaded int    `json:"uploaded" yaml:"uploaded"`
	Cached   int    `json:"cached" yaml:"cached"`
	Failed   int    `json:"failed" yaml:"failed"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func newDocument(r *Result) document {
	doc := document{
		Result:   *r,
		Size:     r.TotalSize(),
		Uploaded: r.Count(StateUploaded),
		Cached:   r.Count(StateCached),
		Failed:   r.Count(StateFailed),
	}
	if r.Duration > 0 {
		doc.Duration = r.Duration.String()
	}
	if doc.Items == nil {
		doc.Items = []Item{}
	}
	return doc
}

// JSONFormatter formats output as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newDocument(r))
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
