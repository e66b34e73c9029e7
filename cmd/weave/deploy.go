package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jamesainslie/weave/cmd/weave/tui"
	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/config"
	"github.com/jamesainslie/weave/pkg/weave/deploy"
	"github.com/jamesainslie/weave/pkg/weave/history"
	"github.com/jamesainslie/weave/pkg/weave/output"
	"github.com/jamesainslie/weave/pkg/weave/upload"
	"github.com/jamesainslie/weave/pkg/weave/wallet"
)

// ErrInsufficientBalance is returned when the wallet cannot pay for a deploy.
var ErrInsufficientBalance = errors.New("insufficient balance")

var deployOpts deployFlags

var deployCmd = &cobra.Command{
	Use:   "deploy <path>",
	Short: "Deploy a file or directory",
	Long: `Deploy uploads a file, or every file under a directory, to the permaweb.

A directory deploy publishes a path manifest last, so the site is reachable at
<gateway>/<manifest id>/<relative path>. Files whose content is already
confirmed on the network are reused instead of uploaded again.

A summary with fees and the resulting balance is shown before anything is
sent. Answer the prompt, or pass --yes to skip it. When stdin is not a
terminal, --yes is required.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func init() {
	deployOpts.register(deployCmd.Flags())
	rootCmd.AddCommand(deployCmd)
}

// runDeploy prepares, confirms, and publishes a deploy.
func runDeploy(cmd *cobra.Command, args []string) error {
	if err := deployOpts.validate(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	formatter, err := output.Get(deployOpts.output)
	if err != nil {
		return err
	}

	expanded, err := config.ExpandPath(args[0])
	if err != nil {
		return fmt.Errorf("failed to expand path: %w", err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
	if !deployOpts.yes && !stdinTTY {
		return errors.New("stdin is not a terminal: pass --yes to deploy without confirmation")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	w, err := wallet.Resolve(cfg.Wallet, wallet.NewStore(""), promptPassphrase)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	orch := deploy.NewOrchestrator(client, w, c)
	orch.Concurrency = cfg.Concurrency
	if deployOpts.concurrency > 0 {
		orch.Concurrency = deployOpts.concurrency
	}
	orch.ChunkConcurrency = cfg.Upload.ChunkConcurrency
	orch.Policy = cfg.RetryPolicy()

	feeRate := 0.0
	if cfg.Fee.Enabled && !client.IsLocal() {
		fee := deploy.NewFeeSelector(client, w, cfg.Fee.CommunityTx, cfg.Fee.Rate)
		fee.Version = version
		orch.Fee = fee
		feeRate = cfg.Fee.Rate
	}

	req := deploy.Request{
		Path:    absPath,
		Index:   deployOpts.index,
		Exclude: append(append([]string{}, cfg.Exclude...), deployOpts.exclude...),
		Force:   deployOpts.force,
		Options: deploy.Options{
			Tags:          deployOpts.tags.Tags(),
			License:       deployOpts.license,
			ContentType:   deployOpts.contentType,
			FeeMultiplier: deployOpts.feeMultiplier,
			Bundler:       deployOpts.bundler,
			LocalBundle:   deployOpts.localBundle,
			Version:       version,
		},
	}

	printStatus("Preparing %s...", absPath)
	orch.OnPrepare = func(done, total int) {
		printVerbose("prepared %d/%d", done, total)
	}
	plan, err := orch.Prepare(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to prepare deploy: %w", err)
	}

	info := deploy.SummaryInfo{
		Gateway: cfg.Gateway,
		Address: w.Address(),
		FeeRate: feeRate,
	}
	if balance, err := client.Balance(ctx, w.Address()); err != nil {
		printVerbose("balance lookup failed: %v", err)
	} else {
		info.Balance = balance
	}

	if err := render(formatter, deploy.Summarize(plan, nil, info)); err != nil {
		return err
	}
	if plan.AlreadyDeployed {
		// Nothing is sent; this only persists the refreshed cache entry.
		if _, err := orch.Deploy(ctx, plan); err != nil {
			return fmt.Errorf("deploy failed: %w", err)
		}
		return nil
	}

	if info.Balance != "" && !deploy.CanAfford(plan, info.Balance, feeRate) {
		return fmt.Errorf("%w: have %s AR, deploy needs %s AR plus fees",
			ErrInsufficientBalance, arweave.WinstonToAR(info.Balance), arweave.WinstonToAR(plan.Reward().String()))
	}

	if !deployOpts.yes {
		ok, err := confirm(fmt.Sprintf("Deploy %d records to %s?", len(plan.Items), cfg.Gateway))
		if err != nil {
			return err
		}
		if !ok {
			printStatus("Deploy canceled.")
			return nil
		}
	}

	interactive := !deployOpts.noInteractive && deployOpts.output == "pretty" &&
		term.IsTerminal(int(os.Stderr.Fd()))

	var report *deploy.Report
	run := func(ctx context.Context, onEvent func(upload.Event)) error {
		orch.OnEvent = onEvent
		var err error
		report, err = orch.Deploy(ctx, plan)
		return err
	}

	if interactive {
		if err := initTUILogging(); err != nil {
			return fmt.Errorf("failed to initialize TUI logging: %w", err)
		}
		err = tui.Run(ctx, tui.Options{
			Title:  "weave " + version,
			Source: absPath,
			Items:  progressItems(plan),
			Deploy: run,
		})
		if errors.Is(err, tui.ErrInterrupted) {
			printStatus("Deploy interrupted; unfinished records were not published.")
			err = nil
		}
	} else {
		err = run(ctx, plainProgress)
	}
	if err != nil {
		return fmt.Errorf("deploy failed: %w", err)
	}
	if report == nil {
		return errors.New("deploy did not complete")
	}

	if err := render(formatter, deploy.Summarize(plan, report, info)); err != nil {
		return err
	}

	if cfg.History.Enabled {
		recordHistory(cfg, plan, report)
	}

	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d records failed to upload: %w", failed, len(report.Results), report.Err())
	}
	return nil
}

// render writes a summary to stdout.
func render(formatter output.Formatter, res *output.Result) error {
	var buf bytes.Buffer
	if err := formatter.Format(&buf, res); err != nil {
		return fmt.Errorf("failed to format summary: %w", err)
	}
	fmt.Print(buf.String())
	return nil
}

// plainProgress prints one line per finished record.
func plainProgress(e upload.Event) {
	switch e.State {
	case upload.StateUploaded:
		printStatus("uploaded  %s  %s", e.ID, e.Label)
	case upload.StateFailed:
		printStatus("failed    %s  %s: %v", e.ID, e.Label, e.Err)
	case upload.StateUploading:
		if e.ChunksTotal > 0 {
			printVerbose("%s: chunk %d/%d", e.Label, e.ChunksDone, e.ChunksTotal)
		}
	}
}

// progressItems lists the upload jobs of plan in the order they run.
func progressItems(plan *deploy.Plan) []tui.Item {
	if plan.BundleTx != nil {
		return []tui.Item{{Label: "bundle", Size: plan.BundleTx.Chunks.DataSize}}
	}
	items := make([]tui.Item, 0, len(plan.Items))
	for _, it := range plan.Items {
		label := it.RelPath
		if it.IsManifest() {
			label = "manifest"
		}
		items = append(items, tui.Item{Label: label, Size: it.Record.DataSize()})
	}
	return items
}

// confirm asks a yes/no question on stdin. The default is no.
func confirm(question string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// promptPassphrase reads the saved wallet passphrase without echo.
func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if pass := os.Getenv("WEAVE_WALLET_PASSPHRASE"); pass != "" {
			return pass, nil
		}
		return "", errors.New("saved wallet needs a passphrase: run in a terminal, set WEAVE_WALLET_PASSPHRASE, or pass --wallet")
	}
	fmt.Fprint(os.Stderr, "Wallet passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(pass), nil
}

// recordHistory writes the deploy to the local history. Failures are
// reported and otherwise ignored.
func recordHistory(cfg *config.Config, plan *deploy.Plan, report *deploy.Report) {
	h, err := history.New(cfg.History.Path)
	if err != nil {
		printVerbose("history unavailable: %v", err)
		return
	}
	if err := h.Record(historyEntry(cfg.Gateway, plan, report)); err != nil {
		printVerbose("failed to record history: %v", err)
	}
}

// historyEntry summarizes a finished deploy.
func historyEntry(gateway string, plan *deploy.Plan, report *deploy.Report) *history.Entry {
	entry := &history.Entry{
		Timestamp: time.Now(),
		Gateway:   gateway,
		Root:      plan.Root,
		Summary: history.Summary{
			Reward: plan.Reward().String(),
		},
	}
	if m := plan.ManifestItem(); m != nil {
		entry.ManifestID = m.ID()
	}
	if plan.BundleTx != nil {
		entry.BundleID = plan.BundleTx.ID
	}

	for _, dup := range plan.Duplicates {
		entry.Files = append(entry.Files, history.FileRecord{
			Path: dup.RelPath, ID: dup.ID, Hash: dup.Hash, Size: dup.Size, Duplicate: true,
		})
		entry.Summary.Duplicates++
		entry.Summary.TotalFiles++
		entry.Summary.TotalBytes += dup.Size
	}
	for _, res := range report.Results {
		if res.Item.IsManifest() {
			continue
		}
		failed := res.State == upload.StateFailed
		entry.Files = append(entry.Files, history.FileRecord{
			Path: res.Item.RelPath, ID: res.Item.ID(), Hash: res.Item.ContentHash, Size: res.Item.FileSize, Failed: failed,
		})
		entry.Summary.TotalFiles++
		entry.Summary.TotalBytes += res.Item.FileSize
		if failed {
			entry.Summary.Failed++
		}
	}
	return entry
}
