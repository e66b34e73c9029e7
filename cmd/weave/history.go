package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/config"
	"github.com/jamesainslie/weave/pkg/weave/history"
	"github.com/jamesainslie/weave/pkg/weave/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View deploy history",
	Long: `View the history of deploys made from this machine.

Every deploy records its manifest id and the id of each file, so past
deploys can be looked up without querying the network.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show details of a specific deploy",
	Long:  `Display the files and ids of one deploy by its history ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getHistory returns the history at the configured directory.
func getHistory() (*history.History, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	h, err := history.New(cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return h, cfg, nil
}

// runHistory lists recent deploys.
func runHistory(cmd *cobra.Command, args []string) error {
	h, _, err := getHistory()
	if err != nil {
		return err
	}

	entries, err := h.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'weave deploy <path>' to publish files.")
		return nil
	}

	fmt.Printf("\n%-36s  %-16s  %-6s  %-10s  %s\n", "ID", "DATE", "FILES", "SIZE", "TARGET")
	fmt.Println(strings.Repeat("-", 120))

	for _, entry := range entries {
		target := entry.ManifestID
		if target == "" && len(entry.Files) > 0 {
			target = entry.Files[0].ID
		}
		fmt.Printf("%-36s  %-16s  %-6d  %-10s  %s\n",
			truncateString(entry.ID, 36),
			entry.Timestamp.Format("2006-01-02 15:04"),
			entry.Summary.TotalFiles,
			types.FormatSize(entry.Summary.TotalBytes),
			target,
		)
	}

	fmt.Println(strings.Repeat("-", 120))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'weave history show <id>' for details on a specific entry.")

	return nil
}

// runHistoryShow displays details of a specific deploy.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, _, err := getHistory()
	if err != nil {
		return err
	}

	entry, err := h.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	fmt.Println("\nDeploy Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Gateway:    %s\n", entry.Gateway)
	fmt.Printf("Root:       %s\n", entry.Root)
	if entry.ManifestID != "" {
		fmt.Printf("Manifest:   %s\n", entry.ManifestID)
	}
	if entry.BundleID != "" {
		fmt.Printf("Bundle:     %s\n", entry.BundleID)
	}
	fmt.Printf("Files:      %d (%d reused, %d failed)\n",
		entry.Summary.TotalFiles, entry.Summary.Duplicates, entry.Summary.Failed)
	fmt.Printf("Total Size: %s\n", types.FormatSize(entry.Summary.TotalBytes))
	if entry.Summary.Reward != "" {
		fmt.Printf("Reward:     %s AR\n", arweave.WinstonToAR(entry.Summary.Reward))
	}

	if len(entry.Files) > 0 {
		fmt.Println("\nFiles:")
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("%-43s  %-10s  %s\n", "ID", "SIZE", "PATH")
		fmt.Println(strings.Repeat("-", 60))

		// Limit display to 50 files
		limit := min(len(entry.Files), 50)
		for _, file := range entry.Files[:limit] {
			note := ""
			switch {
			case file.Failed:
				note = " (failed)"
			case file.Duplicate:
				note = " (reused)"
			}
			fmt.Printf("%-43s  %-10s  %s%s\n", file.ID, types.FormatSize(file.Size), file.Path, note)
		}

		if len(entry.Files) > limit {
			fmt.Printf("\n... and %d more files\n", len(entry.Files)-limit)
		}
	}

	return nil
}

// runHistoryClean removes old history entries.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	h, cfg, err := getHistory()
	if err != nil {
		return err
	}

	retentionDays := cfg.History.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	removed, err := h.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("History cleanup complete: %d removed.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
