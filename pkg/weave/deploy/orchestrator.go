package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/bundle"
	"github.com/jamesainslie/weave/pkg/weave/cache"
	"github.com/jamesainslie/weave/pkg/weave/hashindex"
	"github.com/jamesainslie/weave/pkg/weave/logging"
	"github.com/jamesainslie/weave/pkg/weave/manifest"
	"github.com/jamesainslie/weave/pkg/weave/retry"
	"github.com/jamesainslie/weave/pkg/weave/upload"
	"github.com/jamesainslie/weave/pkg/weave/walker"
)

// DefaultConcurrency bounds preparation and upload workers.
const DefaultConcurrency = 5

// Network is the gateway surface a deploy uses.
type Network interface {
	FeeNetwork
	cache.StatusChecker
	upload.Gateway
	bundle.Poster
}

// Request describes one deploy.
type Request struct {
	// Path is the file or directory to publish.
	Path string

	// Index is the manifest index path. Empty selects index.html or the
	// first path.
	Index string

	Exclude []string

	// Force ignores the dedup cache.
	Force bool

	Options Options
}

// Duplicate is a file whose content is already confirmed on the network.
type Duplicate struct {
	FilePath string
	RelPath  string
	Hash     string
	ID       string
	Size     int64
}

// Plan is the prepared, signed, not yet published deploy.
type Plan struct {
	Request Request
	Root    string
	IsFile  bool

	// Items are the fresh files in path order, then the manifest.
	Items      []*ContentItem
	Duplicates []Duplicate
	Empty      []string

	Manifest *manifest.Manifest

	// Bundle and BundleTx are set for local bundling.
	Bundle   *bundle.Bundle
	BundleTx *arweave.Transaction

	// AlreadyDeployed is set when a single file is answered from the
	// cache. Nothing is uploaded.
	AlreadyDeployed bool
}

// ManifestItem returns the manifest item, or nil for single-file deploys.
func (p *Plan) ManifestItem() *ContentItem {
	if n := len(p.Items); n > 0 && p.Items[n-1].IsManifest() {
		return p.Items[n-1]
	}
	return nil
}

// TargetID is the id a reader should open: the manifest, the single file,
// or the cached id of an already deployed file.
func (p *Plan) TargetID() string {
	if m := p.ManifestItem(); m != nil {
		return m.ID()
	}
	if len(p.Items) > 0 {
		return p.Items[0].ID()
	}
	if len(p.Duplicates) > 0 {
		return p.Duplicates[0].ID
	}
	return ""
}

// Reward returns the total network fee in winston.
func (p *Plan) Reward() *big.Int {
	if p.BundleTx != nil {
		return arweave.SumWinston(p.BundleTx.Reward)
	}
	total := new(big.Int)
	for _, item := range p.Items {
		switch item.Record.Kind {
		case RecordTransaction:
			total.Add(total, arweave.SumWinston(item.Record.Reward()))
		case RecordDataItem:
		}
	}
	return total
}

// Size returns the bytes this plan uploads.
func (p *Plan) Size() int64 {
	if p.BundleTx != nil {
		return p.BundleTx.Chunks.DataSize
	}
	var total int64
	for _, item := range p.Items {
		total += item.Record.DataSize()
	}
	return total
}

// FreeBundler reports whether every file fits a remote bundler's free tier.
func (p *Plan) FreeBundler() bool {
	if p.Request.Options.Bundler == "" {
		return false
	}
	for _, item := range p.Items {
		if !item.IsManifest() && item.FileSize > FreeBundlerLimit {
			return false
		}
	}
	return true
}

// FreeBundlerLimit is the largest file a remote bundler accepts for free.
const FreeBundlerLimit = 100 * 1000

// ItemResult is the upload outcome of one record.
type ItemResult struct {
	Item     *ContentItem
	State    upload.State
	Strategy upload.Strategy
	Err      error
}

// Report is the outcome of Deploy.
type Report struct {
	Plan    *Plan
	Results []ItemResult
	// Bundle is the upload outcome of the bundle transaction, if any.
	Bundle   *ItemResult
	Fee      *Payment
	Duration time.Duration
	Warnings []string
}

// Failed returns the number of records that failed to upload.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.State == upload.StateFailed {
			n++
		}
	}
	return n
}

// Err joins every upload failure.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			label := res.Item.RelPath
			if label == "" {
				label = res.Item.ID()
			}
			errs = append(errs, fmt.Errorf("%s: %w", label, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Orchestrator prepares and publishes deploys.
type Orchestrator struct {
	Client Network
	Wallet *arweave.Wallet
	Cache  *cache.Cache

	// Fee pays the platform fee. Nil disables it.
	Fee *FeeSelector

	Concurrency      int
	ChunkConcurrency int
	Policy           retry.Policy

	// OnPrepare, if set, is called from worker goroutines as each file is
	// hashed and signed.
	OnPrepare func(done, total int)
	// OnEvent receives upload progress.
	OnEvent func(upload.Event)

	logger *logging.Logger
}

// NewOrchestrator returns an orchestrator with default concurrency and
// retry policy.
func NewOrchestrator(client Network, wallet *arweave.Wallet, c *cache.Cache) *Orchestrator {
	return &Orchestrator{
		Client:           client,
		Wallet:           wallet,
		Cache:            c,
		Concurrency:      DefaultConcurrency,
		ChunkConcurrency: upload.DefaultChunkConcurrency,
		Policy:           retry.DefaultPolicy(),
		logger:           logging.Get("deploy"),
	}
}

func (o *Orchestrator) log() *logging.Logger {
	if o.logger == nil {
		o.logger = logging.Get("deploy")
	}
	return o.logger
}

func (o *Orchestrator) factory() *Factory {
	return &Factory{Client: o.Client, Wallet: o.Wallet, Cache: o.Cache}
}

// prepared is the per-file result slot filled by one prepare worker.
type prepared struct {
	item *ContentItem
	dup  *Duplicate
}

// Prepare walks the request path, dedups against the cache and signs a
// record for every new file plus the manifest. Any read or signing error
// aborts before anything is uploaded.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*Plan, error) {
	log := o.log()
	walked, err := walker.Walk(ctx, walker.Options{Root: req.Path, Exclude: req.Exclude})
	if err != nil {
		return nil, err
	}
	if len(walked.Files) == 0 {
		return nil, walker.ErrNoFiles
	}

	plan := &Plan{Request: req, Root: walked.Root, IsFile: !walked.IsDir, Empty: walked.Empty}
	slots := make([]prepared, len(walked.Files))
	factory := o.factory()

	limit := o.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var progress atomic.Int64
	for i, file := range walked.Files {
		g.Go(func() error {
			hash, err := hashindex.SumFile(file.Path)
			if err != nil {
				return err
			}

			if !req.Force && o.Cache != nil {
				if entry, ok := o.Cache.Confirm(gctx, hash, o.Client); ok && entry.Confirmed {
					slots[i] = prepared{dup: &Duplicate{
						FilePath: file.Path,
						RelPath:  file.RelPath,
						Hash:     hash,
						ID:       entry.ID,
						Size:     file.Size,
					}}
					o.reportPrepared(&progress, len(walked.Files))
					return nil
				}
			}

			item, err := factory.BuildFile(gctx, FileInput{
				Path:    file.Path,
				RelPath: file.RelPath,
				Size:    file.Size,
				Hash:    hash,
			}, req.Options)
			if err != nil {
				return err
			}
			slots[i] = prepared{item: item}
			o.reportPrepared(&progress, len(walked.Files))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("preparing %s: %w", req.Path, err)
	}

	for _, slot := range slots {
		switch {
		case slot.dup != nil:
			plan.Duplicates = append(plan.Duplicates, *slot.dup)
		case slot.item != nil:
			plan.Items = append(plan.Items, slot.item)
		}
	}

	if plan.IsFile {
		if len(plan.Duplicates) > 0 {
			plan.AlreadyDeployed = true
			log.Info("file already deployed", "id", plan.Duplicates[0].ID)
			return plan, nil
		}
	} else {
		if err := o.addManifest(ctx, plan); err != nil {
			return nil, err
		}
	}

	if req.Options.LocalBundle {
		if err := o.bundle(ctx, plan); err != nil {
			return nil, err
		}
	}

	log.Info("deploy prepared",
		"root", plan.Root,
		"items", len(plan.Items),
		"duplicates", len(plan.Duplicates),
		"empty", len(plan.Empty),
	)
	return plan, nil
}

// addManifest builds the path table from duplicates, then fresh files,
// and appends the signed manifest item last.
func (o *Orchestrator) addManifest(ctx context.Context, plan *Plan) error {
	b := manifest.NewBuilder()
	for _, dup := range plan.Duplicates {
		b.AddDuplicate(dup.RelPath, dup.ID)
	}
	for _, item := range plan.Items {
		b.AddItem(item.RelPath, item.ID())
	}

	m, err := b.Build(plan.Request.Index)
	if err != nil {
		return fmt.Errorf("building manifest: %w", err)
	}
	item, err := o.factory().BuildManifest(ctx, m, plan.Request.Options)
	if err != nil {
		return err
	}
	plan.Manifest = m
	plan.Items = append(plan.Items, item)
	return nil
}

// bundle packs every data item into one signed bundle transaction.
func (o *Orchestrator) bundle(ctx context.Context, plan *Plan) error {
	items := make([]*bundle.DataItem, 0, len(plan.Items))
	for _, item := range plan.Items {
		switch item.Record.Kind {
		case RecordDataItem:
			items = append(items, item.Record.Item)
		case RecordTransaction:
			return fmt.Errorf("cannot bundle transaction %s", item.ID())
		}
	}

	b, err := bundle.BundleAndSign(o.Wallet, items)
	if err != nil {
		return fmt.Errorf("bundling: %w", err)
	}
	tx, err := b.ToTransaction()
	if err != nil {
		return err
	}
	if err := o.factory().Finalize(ctx, tx, plan.Request.Options.FeeMultiplier); err != nil {
		return fmt.Errorf("signing bundle: %w", err)
	}
	plan.Bundle = b
	plan.BundleTx = tx
	return nil
}

// Deploy pays the platform fee, uploads every record and saves the cache
// once. Per-record failures are reported, not returned.
func (o *Orchestrator) Deploy(ctx context.Context, plan *Plan) (*Report, error) {
	start := time.Now()
	log := o.log()
	report := &Report{Plan: plan}
	if plan.AlreadyDeployed {
		// Prepare may have confirmed the cached entry.
		o.saveCache(report)
		return report, nil
	}

	if o.Fee != nil {
		pay, err := o.Fee.Pay(ctx, plan.Reward(), o.feeMessage(plan))
		if err != nil {
			log.Debug("platform fee skipped", "error", err)
		}
		report.Fee = pay
	}

	sched := upload.NewScheduler(o.Client, bundle.NewClient(o.Client))
	sched.Policy = o.Policy
	if o.Concurrency > 0 {
		sched.Workers = o.Concurrency
	}
	if o.ChunkConcurrency > 0 {
		sched.ChunkConcurrency = o.ChunkConcurrency
	}
	sched.OnEvent = o.OnEvent

	jobs := o.jobs(plan)
	results := sched.Run(ctx, jobs)

	if plan.BundleTx != nil {
		res := results[0]
		report.Bundle = &ItemResult{State: res.State, Strategy: res.Strategy, Err: res.Err}
		for _, item := range plan.Items {
			report.Results = append(report.Results, ItemResult{Item: item, State: res.State, Strategy: res.Strategy, Err: res.Err})
		}
	} else {
		for i, res := range results {
			report.Results = append(report.Results, ItemResult{Item: plan.Items[i], State: res.State, Strategy: res.Strategy, Err: res.Err})
		}
	}

	if o.Cache != nil {
		for _, res := range report.Results {
			if res.State == upload.StateFailed && res.Item.ContentHash != "" {
				o.Cache.Delete(res.Item.ContentHash)
			}
		}
	}
	o.saveCache(report)

	report.Duration = time.Since(start)
	log.Info("deploy finished",
		"target", plan.TargetID(),
		"records", len(report.Results),
		"failed", report.Failed(),
		"duration", report.Duration,
	)
	return report, nil
}

// saveCache persists the cache once. A failure is a report warning.
func (o *Orchestrator) saveCache(report *Report) {
	if o.Cache == nil {
		return
	}
	if err := o.Cache.Save(); err != nil {
		o.log().Warn("saving cache", "error", err)
		report.Warnings = append(report.Warnings, fmt.Sprintf("cache not saved: %v", err))
	}
}

// jobs maps the plan to upload jobs: one bundle transaction, or one job
// per record.
func (o *Orchestrator) jobs(plan *Plan) []upload.Job {
	if plan.BundleTx != nil {
		return []upload.Job{{Label: "bundle", Tx: plan.BundleTx}}
	}

	jobs := make([]upload.Job, 0, len(plan.Items))
	for _, item := range plan.Items {
		label := item.RelPath
		if item.IsManifest() {
			label = "manifest"
		}
		job := upload.Job{Label: label}
		switch item.Record.Kind {
		case RecordDataItem:
			job.Item = item.Record.Item
			job.Endpoint = plan.Request.Options.Bundler
		case RecordTransaction:
			job.Tx = item.Record.Tx
			if path := item.FilePath; path != "" {
				job.Open = func() (io.ReadCloser, error) { return os.Open(path) }
			}
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (o *Orchestrator) feeMessage(plan *Plan) string {
	n := len(plan.Items)
	if plan.ManifestItem() != nil {
		n--
	}
	noun := "files"
	if plan.Request.Options.Bundler != "" {
		noun = "data items"
	}
	if n == 1 {
		noun = noun[:len(noun)-1]
	}
	msg := fmt.Sprintf("Deployed %d %s on https://arweave.net/%s", n, noun, plan.TargetID())
	if plan.BundleTx != nil {
		msg = fmt.Sprintf("Deployed a bundle with %d %s, bundle ID %s on https://arweave.net/%s", n, noun, plan.BundleTx.ID, plan.TargetID())
	}
	return msg
}

func (o *Orchestrator) reportPrepared(done *atomic.Int64, total int) {
	n := done.Add(1)
	if o.OnPrepare != nil {
		o.OnPrepare(int(n), total)
	}
}
