package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/wallet"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the confirmation status of a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Show the balance of an address or of the signing wallet",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBalance,
}

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show gateway network information",
	Args:  cobra.NoArgs,
	RunE:  runNetwork,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(networkCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	id := args[0]
	status, err := client.Status(cmd.Context(), id)
	if arweave.IsNotFound(err) {
		fmt.Printf("%s: not found\n", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	fmt.Println(formatStatus(id, status))
	if !status.Pending {
		printVerbose("block %s", status.BlockIndepHash)
	}
	return nil
}

// formatStatus renders a one-line status report.
func formatStatus(id string, s *arweave.TxStatus) string {
	if s.Pending {
		return fmt.Sprintf("%s: pending", id)
	}
	return fmt.Sprintf("%s: confirmed at height %s (%s confirmations)",
		id, humanize.Comma(s.BlockHeight), humanize.Comma(s.NumberOfConfirmations))
}

func runBalance(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	address := ""
	if len(args) == 1 {
		address = args[0]
	} else {
		w, err := wallet.Resolve(cfg.Wallet, wallet.NewStore(""), promptPassphrase)
		if err != nil {
			return err
		}
		address = w.Address()
	}

	balance, err := client.Balance(cmd.Context(), address)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s AR (%s winston)\n", address, arweave.WinstonToAR(balance), balance)
	return nil
}

func runNetwork(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	return printNetwork(cmd.Context(), client)
}

func printNetwork(ctx context.Context, client *arweave.Client) error {
	info, err := client.Info(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Gateway:\t%s\n", client.URL())
	fmt.Fprintf(tw, "Network:\t%s\n", info.Network)
	fmt.Fprintf(tw, "Height:\t%s\n", humanize.Comma(info.Height))
	fmt.Fprintf(tw, "Current block:\t%s\n", info.Current)
	fmt.Fprintf(tw, "Blocks:\t%s\n", humanize.Comma(info.Blocks))
	fmt.Fprintf(tw, "Peers:\t%s\n", humanize.Comma(info.Peers))
	fmt.Fprintf(tw, "Queue length:\t%s\n", humanize.Comma(info.QueueLength))
	fmt.Fprintf(tw, "Node latency:\t%dms\n", info.NodeStateLatency)
	return tw.Flush()
}
