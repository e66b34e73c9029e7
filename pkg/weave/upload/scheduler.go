// Package upload submits signed records to the network with a fixed pool
// of workers. Transactions are streamed as proven chunks and fall back to
// a single whole-payload post; data items go to a remote bundler. Every
// network call is retried on transient failures.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/bundle"
	"github.com/jamesainslie/weave/pkg/weave/logging"
	"github.com/jamesainslie/weave/pkg/weave/retry"
)

// DefaultWorkers is the item concurrency used when Workers is zero.
const DefaultWorkers = 5

// DefaultChunkConcurrency bounds in-flight chunk posts per item.
const DefaultChunkConcurrency = 8

// State is the lifecycle position of a job.
type State int

const (
	StatePending State = iota
	StateUploading
	StateUploaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateUploading:
		return "uploading"
	case StateUploaded:
		return "uploaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Strategy records how a job was finally submitted.
type Strategy string

const (
	StrategyChunked Strategy = "chunked"
	StrategyWhole   Strategy = "whole"
	StrategyBundler Strategy = "bundler"
)

// Job is one record to submit. Exactly one of Tx or Item is set.
type Job struct {
	// Label identifies the job in events and logs, usually a path.
	Label string

	Tx *arweave.Transaction
	// Open re-reads the payload of Tx from its source. Nil means the
	// payload is held in Tx.Data.
	Open func() (io.ReadCloser, error)

	Item     *bundle.DataItem
	Endpoint string
}

// ID returns the record id.
func (j Job) ID() string {
	if j.Item != nil {
		return j.Item.ID()
	}
	if j.Tx != nil {
		return j.Tx.ID
	}
	return ""
}

// Result is the outcome of one job.
type Result struct {
	Job      Job
	State    State
	Strategy Strategy
	Err      error
}

// Event reports progress. Chunk counters are set while a job streams.
type Event struct {
	Label       string
	ID          string
	State       State
	ChunksDone  int
	ChunksTotal int
	Bytes       int64
	Err         error
}

// Gateway is the subset of the gateway client used for transactions.
type Gateway interface {
	PostTransaction(ctx context.Context, tx *arweave.Transaction) error
	PostChunk(ctx context.Context, chunk *arweave.ChunkUpload) error
}

// Bundler posts data items to a remote bundler.
type Bundler interface {
	Post(ctx context.Context, item *bundle.DataItem, endpoint string) error
}

// Scheduler drives uploads.
type Scheduler struct {
	Gateway          Gateway
	Bundler          Bundler
	Policy           retry.Policy
	Workers          int
	ChunkConcurrency int
	// OnEvent, if set, is called from worker goroutines.
	OnEvent func(Event)

	logger *logging.Logger
}

// NewScheduler returns a scheduler with default concurrency and policy.
func NewScheduler(gw Gateway, bundler Bundler) *Scheduler {
	return &Scheduler{
		Gateway:          gw,
		Bundler:          bundler,
		Policy:           retry.DefaultPolicy(),
		Workers:          DefaultWorkers,
		ChunkConcurrency: DefaultChunkConcurrency,
	}
}

// Run uploads every job and returns one result per job, in job order.
// A failing job never cancels the others.
func (s *Scheduler) Run(ctx context.Context, jobs []Job) []Result {
	if s.logger == nil {
		s.logger = logging.Get("upload")
	}
	results := make([]Result, len(jobs))
	for i, job := range jobs {
		results[i] = Result{Job: job, State: StatePending}
		s.emit(Event{Label: job.Label, ID: job.ID(), State: StatePending})
	}

	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	workers = min(workers, len(jobs))

	queue := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = s.runJob(ctx, jobs[i])
			}
		}()
	}
	for i := range jobs {
		queue <- i
	}
	close(queue)
	wg.Wait()

	return results
}

func (s *Scheduler) runJob(ctx context.Context, job Job) Result {
	log := s.logger.With("label", job.Label, "id", job.ID())
	s.emit(Event{Label: job.Label, ID: job.ID(), State: StateUploading})

	var (
		strategy Strategy
		err      error
	)
	switch {
	case job.Item != nil:
		strategy = StrategyBundler
		err = s.postItem(ctx, job)
	case job.Tx != nil:
		strategy, err = s.postTransaction(ctx, job, log)
	default:
		err = errors.New("job has no record")
	}

	if err != nil {
		log.Error("upload failed", "strategy", strategy, "error", err)
		s.emit(Event{Label: job.Label, ID: job.ID(), State: StateFailed, Err: err})
		return Result{Job: job, State: StateFailed, Strategy: strategy, Err: err}
	}
	log.Info("uploaded", "strategy", strategy)
	s.emit(Event{Label: job.Label, ID: job.ID(), State: StateUploaded})
	return Result{Job: job, State: StateUploaded, Strategy: strategy}
}

func (s *Scheduler) postItem(ctx context.Context, job Job) error {
	if s.Bundler == nil {
		return errors.New("no bundler configured")
	}
	_, err := retry.Do(ctx, s.policy(), func(ctx context.Context, _ int) error {
		return s.Bundler.Post(ctx, job.Item, job.Endpoint)
	})
	return err
}

// postTransaction streams chunks and falls back to posting the whole
// payload in the transaction body.
func (s *Scheduler) postTransaction(ctx context.Context, job Job, log *logging.Logger) (Strategy, error) {
	chunkErr := s.streamChunks(ctx, job)
	if chunkErr == nil {
		return StrategyChunked, nil
	}
	if ctx.Err() != nil {
		return StrategyChunked, chunkErr
	}
	log.Warn("chunked upload failed, posting whole payload", "error", chunkErr)

	wholeErr := s.postWhole(ctx, job)
	if wholeErr == nil {
		return StrategyWhole, nil
	}
	return StrategyWhole, fmt.Errorf("chunked upload: %w; whole upload: %w", chunkErr, wholeErr)
}

func (s *Scheduler) postWhole(ctx context.Context, job Job) error {
	tx := job.Tx
	if tx.Data == nil && job.Open != nil {
		data, err := readAll(job.Open)
		if err != nil {
			return err
		}
		tx = withPayload(tx, data)
	}
	_, err := retry.Do(ctx, s.policy(), func(ctx context.Context, _ int) error {
		return s.Gateway.PostTransaction(ctx, tx.WithData())
	})
	return err
}

func (s *Scheduler) policy() retry.Policy {
	p := s.Policy
	if p.Retryable == nil {
		p.Retryable = arweave.IsTransient
	}
	return p
}

func (s *Scheduler) emit(e Event) {
	if s.OnEvent != nil {
		s.OnEvent(e)
	}
}

func readAll(open func() (io.ReadCloser, error)) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, fmt.Errorf("reopening payload: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return data, nil
}

// withPayload returns a copy of tx carrying data, leaving the original
// without the payload in memory.
func withPayload(tx *arweave.Transaction, data []byte) *arweave.Transaction {
	cp := *tx
	cp.Data = data
	return &cp
}
