package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the deploy cache",
	Long: `Commands for managing the deploy cache.

The cache maps the content hash of every deployed file to the record that
carries it, so unchanged files are not uploaded twice. Entries are marked
confirmed once the network has mined them. Each gateway host gets its own
table; local development gateways never share it with production.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached entries",
	Long:  `Removes every entry. The next deploy uploads all files again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		if c.Len() == 0 {
			fmt.Println("Cache is already empty.")
			return nil
		}
		c.Clear()
		if err := c.Save(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Println("Cache cleared.")
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		confirmed, pending := c.Stats()
		fmt.Printf("Cache location: %s\n", c.Location())
		fmt.Printf("Backend:        %s\n", cfg.Cache.Backend)
		fmt.Printf("Entries:        %d\n", confirmed+pending)
		fmt.Printf("  confirmed:    %d\n", confirmed)
		fmt.Printf("  pending:      %d\n", pending)
		return nil
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		fmt.Println(c.Location())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}
