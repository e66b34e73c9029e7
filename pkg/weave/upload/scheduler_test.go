package upload_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/arweave/gatewaytest"
	"github.com/jamesainslie/weave/pkg/weave/bundle"
	"github.com/jamesainslie/weave/pkg/weave/merkle"
	"github.com/jamesainslie/weave/pkg/weave/retry"
	"github.com/jamesainslie/weave/pkg/weave/upload"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newScheduler(t *testing.T, gw *gatewaytest.Gateway) *upload.Scheduler {
	t.Helper()
	client := gw.Client(t)
	s := upload.NewScheduler(client, bundle.NewClient(client))
	s.Policy = fastPolicy()
	return s
}

func signedTx(t *testing.T, data []byte) *arweave.Transaction {
	t.Helper()
	tx := arweave.NewTransaction([]arweave.Tag{{Name: "Content-Type", Value: "application/octet-stream"}})
	require.NoError(t, tx.SetData(data))
	tx.LastTx = gatewaytest.Anchor
	require.NoError(t, tx.Sign(gatewaytest.Wallet(t)))
	return tx
}

// fileJob writes data to disk and returns a job whose transaction does
// not hold the payload in memory.
func fileJob(t *testing.T, name string, data []byte) upload.Job {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tx := signedTx(t, data)
	tx.Data = nil
	return upload.Job{
		Label: name,
		Tx:    tx,
		Open:  func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

func payload(size int) []byte {
	return bytes.Repeat([]byte("weave-"), size/6+1)[:size]
}

func TestRunChunkedUpload(t *testing.T) {
	gw := gatewaytest.New(t)
	s := newScheduler(t, gw)

	data := payload(3*merkle.MaxChunkSize + 1234)
	job := fileJob(t, "big.bin", data)

	var mu sync.Mutex
	var events []upload.Event
	s.OnEvent = func(e upload.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	results := s.Run(context.Background(), []upload.Job{job})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, upload.StateUploaded, results[0].State)
	assert.Equal(t, upload.StrategyChunked, results[0].Strategy)

	stored, ok := gw.Tx(job.Tx.ID)
	require.True(t, ok)
	assert.Equal(t, data, stored.Data)
	assert.Equal(t, len(job.Tx.Chunks.Chunks), gw.AcceptedChunks())

	var sawChunks, sawUploaded bool
	for _, e := range events {
		if e.ChunksTotal == len(job.Tx.Chunks.Chunks) && e.ChunksDone > 0 {
			sawChunks = true
		}
		if e.State == upload.StateUploaded {
			sawUploaded = true
		}
	}
	assert.True(t, sawChunks)
	assert.True(t, sawUploaded)
}

func TestRunInMemoryTransaction(t *testing.T) {
	gw := gatewaytest.New(t)
	s := newScheduler(t, gw)

	tx := signedTx(t, []byte(`{"manifest":"arweave/paths"}`))
	results := s.Run(context.Background(), []upload.Job{{Label: "manifest", Tx: tx}})
	require.NoError(t, results[0].Err)

	stored, ok := gw.Tx(tx.ID)
	require.True(t, ok)
	assert.True(t, stored.Complete())
}

func TestTransientChunkFailureHitsCeilingThenFallsBack(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.FailChunks(-1, http.StatusBadGateway)
	s := newScheduler(t, gw)

	job := fileJob(t, "small.txt", []byte("hi"))
	results := s.Run(context.Background(), []upload.Job{job})

	assert.Equal(t, 5, gw.ChunkAttempts(), "transient chunk failures are retried up to the ceiling")
	require.NoError(t, results[0].Err)
	assert.Equal(t, upload.StrategyWhole, results[0].Strategy)

	stored, ok := gw.Tx(job.Tx.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), stored.Data)
}

func TestProtocolChunkRejectionIsNotRetried(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.RejectChunks("chunk_too_big")
	s := newScheduler(t, gw)

	job := fileJob(t, "small.txt", []byte("hi"))
	results := s.Run(context.Background(), []upload.Job{job})

	assert.Equal(t, 1, gw.ChunkAttempts())
	require.NoError(t, results[0].Err, "whole-payload fallback succeeds")
	assert.Equal(t, upload.StrategyWhole, results[0].Strategy)
}

func TestTransientChunkFailureRecovers(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.FailChunks(2, http.StatusServiceUnavailable)
	s := newScheduler(t, gw)

	job := fileJob(t, "small.txt", []byte("hello"))
	results := s.Run(context.Background(), []upload.Job{job})

	require.NoError(t, results[0].Err)
	assert.Equal(t, upload.StrategyChunked, results[0].Strategy)
	assert.Equal(t, 3, gw.ChunkAttempts())
}

func TestBothStrategiesFailMarksItemFailed(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.FailTx(100, http.StatusInternalServerError)
	s := newScheduler(t, gw)

	bad := fileJob(t, "bad.txt", []byte("bad"))
	results := s.Run(context.Background(), []upload.Job{bad})

	require.Error(t, results[0].Err)
	assert.Equal(t, upload.StateFailed, results[0].State)
	assert.ErrorIs(t, results[0].Err, retry.ErrExhausted)
	// Header posts and whole posts each hit the ceiling.
	assert.Equal(t, 10, gw.TxAttempts())
}

func TestFailuresAreIsolated(t *testing.T) {
	gw := gatewaytest.New(t)
	s := newScheduler(t, gw)

	good := fileJob(t, "good.txt", []byte("good"))
	missing := fileJob(t, "gone.txt", []byte("gone"))
	missing.Open = func() (io.ReadCloser, error) { return nil, os.ErrNotExist }

	results := s.Run(context.Background(), []upload.Job{missing, good})
	assert.Equal(t, upload.StateFailed, results[0].State)
	assert.Equal(t, upload.StateUploaded, results[1].State)
}

func TestCorruptedSourceFailsLocalProofCheck(t *testing.T) {
	gw := gatewaytest.New(t)
	s := newScheduler(t, gw)

	job := fileJob(t, "a.txt", []byte("original"))
	job.Open = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte("tampered"))), nil }

	results := s.Run(context.Background(), []upload.Job{job})
	assert.Equal(t, 0, gw.ChunkAttempts(), "invalid chunks never reach the gateway")
	// The fallback posts the tampered bytes, which the gateway rejects.
	assert.Equal(t, upload.StateFailed, results[0].State)
	assert.ErrorIs(t, results[0].Err, merkle.ErrInvalidProof)
}

func TestRunBundlerItems(t *testing.T) {
	gw := gatewaytest.New(t)
	s := newScheduler(t, gw)
	w := gatewaytest.Wallet(t)

	var jobs []upload.Job
	for _, body := range []string{"one", "two", "three"} {
		item, err := bundle.CreateItem(w, []byte(body), nil)
		require.NoError(t, err)
		jobs = append(jobs, upload.Job{Label: body, Item: item, Endpoint: gw.URL})
	}

	results := s.Run(context.Background(), jobs)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, upload.StrategyBundler, r.Strategy)
	}
	assert.Len(t, gw.Posts(), 3)
}

func TestRunBundlerItemFailureIsPerItem(t *testing.T) {
	gw := gatewaytest.New(t)
	// A 400 is not retried, so exactly one post fails.
	gw.FailTx(1, http.StatusBadRequest)
	s := newScheduler(t, gw)
	s.Workers = 1
	w := gatewaytest.Wallet(t)

	var jobs []upload.Job
	for _, body := range []string{"one", "two", "three"} {
		item, err := bundle.CreateItem(w, []byte(body), nil)
		require.NoError(t, err)
		jobs = append(jobs, upload.Job{Label: body, Item: item, Endpoint: gw.URL})
	}

	results := s.Run(context.Background(), jobs)
	require.Len(t, results, 3)

	assert.Equal(t, upload.StateFailed, results[0].State)
	assert.Error(t, results[0].Err)
	for _, r := range results[1:] {
		assert.Equal(t, upload.StateUploaded, r.State, r.Job.Label)
		assert.NoError(t, r.Err)
		assert.Equal(t, upload.StrategyBundler, r.Strategy)
	}
	assert.Len(t, gw.Posts(), 2)
	assert.Equal(t, 3, gw.TxAttempts())
}

func TestRunManyJobsWithBoundedWorkers(t *testing.T) {
	gw := gatewaytest.New(t)
	s := newScheduler(t, gw)
	s.Workers = 2

	var jobs []upload.Job
	for i := 0; i < 6; i++ {
		jobs = append(jobs, upload.Job{Label: "m", Tx: signedTx(t, []byte{byte(i), 1, 2})})
	}
	results := s.Run(context.Background(), jobs)
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, jobs[i].Tx.ID, r.Job.ID(), "results keep job order")
	}
	assert.Len(t, gw.Transactions(), 6)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", upload.StatePending.String())
	assert.Equal(t, "failed", upload.StateFailed.String())
	assert.Equal(t, "unknown", upload.State(42).String())
}
