package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleResult() *Result {
	return &Result{
		Source:  "/srv/site",
		Gateway: "https://arweave.net",
		Address: "addr",
		Items: []Item{
			{Path: "a.txt", ID: "AAA", Type: "file", Size: 2, Reward: "1000", State: StateUploaded, Strategy: "chunked"},
			{Path: "b.txt", ID: "BBB", Type: "file", Size: 3, State: StateCached},
			{Path: "c.bin", ID: "CCC", Type: "file", Size: 2048, Reward: "2000", State: StateFailed, Error: "boom"},
			{ID: "MMM", Type: "manifest", Size: 100, Reward: "500", State: StateUploaded},
		},
		Reward:       "3500",
		ServiceFee:   "350",
		Balance:      "1000000000000",
		BalanceAfter: "999999996150",
		ManifestID:   "MMM",
		ManifestURL:  "https://arweave.net/MMM",
		Duration:     1500 * time.Millisecond,
		Warnings:     []string{"platform fee skipped"},
	}
}

func TestResultTotals(t *testing.T) {
	r := sampleResult()
	assert.Equal(t, int64(2+2048+100), r.TotalSize(), "cached files cost nothing")
	assert.Equal(t, 2, r.Count(StateUploaded))
	assert.Equal(t, 1, r.Count(StateFailed))
}

func TestAR(t *testing.T) {
	assert.Equal(t, "-", AR(""))
	assert.Equal(t, "1 AR", AR("1000000000000"))
	assert.Equal(t, "0.0000000035 AR", AR("3500"))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "plain", "pretty", "tsv", "yaml"}, Available())

	_, err := Get("xml")
	assert.Error(t, err)

	reg := NewRegistry()
	reg.Register("tsv", func() Formatter { return &TSVFormatter{} })
	f, err := reg.Get("tsv")
	require.NoError(t, err)
	assert.IsType(t, &TSVFormatter{}, f)
}

func format(t *testing.T, name string, r *Result) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestPrettyFormatter(t *testing.T) {
	out := format(t, "pretty", sampleResult())
	for _, want := range []string{"/srv/site", "AAA", "MMM", "a.txt", "boom", "https://arweave.net/MMM", "platform fee skipped"} {
		assert.Contains(t, out, want)
	}
}

func TestPrettyFormatterEmpty(t *testing.T) {
	out := format(t, "pretty", &Result{Source: "x", AlreadyDeployed: true})
	assert.Contains(t, out, "Nothing to deploy")
	assert.Contains(t, out, "Already deployed")
}

func TestPlainFormatter(t *testing.T) {
	out := format(t, "plain", sampleResult())
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "AAA")
	assert.Contains(t, lines[1], "2 B")
	assert.Contains(t, out, "failed: 1")
	assert.Contains(t, out, "manifest: https://arweave.net/MMM")
	assert.Contains(t, out, "warning: platform fee skipped")
}

func TestTSVFormatter(t *testing.T) {
	out := format(t, "tsv", sampleResult())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "ID\tSIZE\tREWARD\tTYPE\tSTATE\tPATH", lines[0])
	assert.Equal(t, "AAA\t2\t1000\tfile\tuploaded\ta.txt", lines[1])
	assert.Equal(t, "MMM\t100\t500\tmanifest\tuploaded\t", lines[4])
}

func TestJSONFormatter(t *testing.T) {
	out := format(t, "json", sampleResult())

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "/srv/site", doc["source"])
	assert.Equal(t, "MMM", doc["manifest_id"])
	assert.Equal(t, float64(2), doc["uploaded"])
	assert.Equal(t, float64(1), doc["cached"])
	assert.Equal(t, "1.5s", doc["duration"])
	items, ok := doc["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 4)
}

func TestJSONFormatterEmptyItems(t *testing.T) {
	out := format(t, "json", &Result{})
	assert.Contains(t, out, `"items": []`)
}

func TestYAMLFormatter(t *testing.T) {
	out := format(t, "yaml", sampleResult())

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "https://arweave.net", doc["gateway"])
	assert.Equal(t, "3500", doc["reward"])
	assert.Equal(t, 1, doc["failed"])
	assert.Equal(t, "1.5s", doc["duration"])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))
}
