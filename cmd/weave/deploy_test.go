package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/arweave/gatewaytest"
	"github.com/jamesainslie/weave/pkg/weave/cache"
	"github.com/jamesainslie/weave/pkg/weave/config"
	"github.com/jamesainslie/weave/pkg/weave/deploy"
	"github.com/jamesainslie/weave/pkg/weave/retry"
)

func deploySite(t *testing.T, files map[string]string, opts deploy.Options) (*deploy.Plan, *deploy.Report) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	gw := gatewaytest.New(t)
	orch := deploy.NewOrchestrator(gw.Client(t), gatewaytest.Wallet(t), cache.New(cache.NewMemoryStorage()))
	orch.Policy = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	ctx := context.Background()
	plan, err := orch.Prepare(ctx, deploy.Request{Path: dir, Options: opts})
	require.NoError(t, err)
	report, err := orch.Deploy(ctx, plan)
	require.NoError(t, err)
	return plan, report
}

func TestHistoryEntry(t *testing.T) {
	plan, report := deploySite(t, map[string]string{"index.html": "<h1>hi</h1>", "css/site.css": "body{}"}, deploy.Options{})

	entry := historyEntry("https://arweave.net", plan, report)

	assert.Equal(t, "https://arweave.net", entry.Gateway)
	assert.Equal(t, plan.Root, entry.Root)
	assert.Equal(t, plan.ManifestItem().ID(), entry.ManifestID)
	require.Len(t, entry.Files, 2)
	assert.Equal(t, "css/site.css", entry.Files[0].Path)
	assert.Equal(t, "index.html", entry.Files[1].Path)
	assert.Equal(t, int64(2), entry.Summary.TotalFiles)
	assert.Equal(t, int64(len("<h1>hi</h1>")+len("body{}")), entry.Summary.TotalBytes)
	assert.Zero(t, entry.Summary.Failed)
	assert.Equal(t, plan.Reward().String(), entry.Summary.Reward)
}

func TestProgressItems(t *testing.T) {
	plan, _ := deploySite(t, map[string]string{"a.txt": "a", "b.txt": "bb"}, deploy.Options{})

	items := progressItems(plan)
	require.Len(t, items, 3)
	assert.Equal(t, "a.txt", items[0].Label)
	assert.Equal(t, int64(1), items[0].Size)
	assert.Equal(t, "manifest", items[2].Label)
}

func TestProgressItemsBundle(t *testing.T) {
	plan, _ := deploySite(t, map[string]string{"a.txt": "a"}, deploy.Options{LocalBundle: true})

	items := progressItems(plan)
	require.Len(t, items, 1)
	assert.Equal(t, "bundle", items[0].Label)
	assert.Equal(t, plan.BundleTx.Chunks.DataSize, items[0].Size)
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "abc: pending", formatStatus("abc", &arweave.TxStatus{Pending: true}))
	assert.Equal(t, "abc: confirmed at height 1,234,567 (12 confirmations)",
		formatStatus("abc", &arweave.TxStatus{BlockHeight: 1234567, NumberOfConfirmations: 12}))
}

func TestFormatConfig(t *testing.T) {
	cfg := &config.Config{
		Gateway:     "https://arweave.net",
		Timeout:     20 * time.Second,
		Concurrency: 5,
	}
	cfg.Cache.Backend = "badger"

	out := formatConfig(cfg)
	assert.Contains(t, out, "gateway:                  https://arweave.net\n")
	assert.Contains(t, out, "wallet:                   (saved wallet)\n")
	assert.Contains(t, out, "cache.backend:            badger\n")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdef...", truncateString("abcdefghijkl", 9))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}
