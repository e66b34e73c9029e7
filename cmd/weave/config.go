package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/weave/pkg/weave/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage weave configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/weave/config.yaml (if set)
  2. ~/.config/weave/config.yaml

Environment variables can override config file settings using the WEAVE_ prefix:
  WEAVE_GATEWAY=https://arweave.net
  WEAVE_CONCURRENCY=10
  WEAVE_CACHE_BACKEND=badger`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the environment variables config show reports.
var envOverrides = []string{
	"WEAVE_GATEWAY",
	"WEAVE_TIMEOUT",
	"WEAVE_CONCURRENCY",
	"WEAVE_WALLET",
	"WEAVE_CACHE_BACKEND",
	"WEAVE_CACHE_DIR",
	"WEAVE_UPLOAD_MAX_ATTEMPTS",
	"WEAVE_UPLOAD_CHUNK_CONCURRENCY",
	"WEAVE_FEE_ENABLED",
	"WEAVE_FEE_RATE",
	"WEAVE_HISTORY_ENABLED",
	"WEAVE_HISTORY_PATH",
	"WEAVE_LOGGING_LEVEL",
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("Config file: %s\n\n", configFile)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Print(formatConfig(cfg))

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, name := range envOverrides {
		if val := os.Getenv(name); val != "" {
			fmt.Printf("%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	return nil
}

// formatConfig renders cfg as aligned key: value lines.
func formatConfig(cfg *config.Config) string {
	wallet := cfg.Wallet
	if wallet == "" {
		wallet = "(saved wallet)"
	}
	rows := [][2]string{
		{"gateway", cfg.Gateway},
		{"timeout", cfg.Timeout.String()},
		{"concurrency", fmt.Sprint(cfg.Concurrency)},
		{"wallet", wallet},
		{"exclude", fmt.Sprint(cfg.Exclude)},
		{"cache.backend", cfg.Cache.Backend},
		{"cache.dir", cfg.Cache.Dir},
		{"upload.max_attempts", fmt.Sprint(cfg.Upload.MaxAttempts)},
		{"upload.base_delay", cfg.Upload.BaseDelay.String()},
		{"upload.max_delay", cfg.Upload.MaxDelay.String()},
		{"upload.chunk_concurrency", fmt.Sprint(cfg.Upload.ChunkConcurrency)},
		{"fee.enabled", fmt.Sprint(cfg.Fee.Enabled)},
		{"fee.rate", fmt.Sprint(cfg.Fee.Rate)},
		{"history.enabled", fmt.Sprint(cfg.History.Enabled)},
		{"history.path", cfg.History.Path},
		{"history.retention", fmt.Sprintf("%d days", cfg.History.RetentionDays)},
		{"logging.level", cfg.Logging.Level},
	}

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-26s%s\n", r[0]+":", r[1])
	}
	return b.String()
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, _, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, created, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if !created {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'weave config edit' to modify it.")
		return nil
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
