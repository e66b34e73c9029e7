package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/weave/pkg/weave/arweave"
	"github.com/jamesainslie/weave/pkg/weave/cache"
	"github.com/jamesainslie/weave/pkg/weave/config"
	"github.com/jamesainslie/weave/pkg/weave/logging"
	"github.com/jamesainslie/weave/pkg/weave/types"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "weave",
		Short: "Publish files and static sites to the Arweave permaweb",
		Long: `Weave uploads local files to Arweave and publishes a path manifest so a
directory can be browsed by relative path through any gateway.

Files already confirmed on the network are not uploaded again: weave keeps a
local table of content hashes and the records that carry them.

Examples:
  weave deploy ./site                   # Deploy a directory with a manifest
  weave deploy ./site --index home.html # Choose the manifest index
  weave deploy report.pdf --yes         # Deploy one file without confirmation
  weave deploy ./site --bundle          # Pack everything into one bundle
  weave status <id>                     # Check confirmation status
  weave wallet save key.json            # Save an encrypted wallet`,
		SilenceUsage:       true,
		PersistentPreRunE:  initializeLogging,
		PersistentPostRunE: closeLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/weave/config.yaml)")
	rootCmd.PersistentFlags().StringP("gateway", "g", "", "gateway URL (default: https://arweave.net)")
	rootCmd.PersistentFlags().StringP("wallet", "w", "", "path to a JWK wallet file (default: saved wallet)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "per-request timeout")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("gateway", rootCmd.PersistentFlags().Lookup("gateway"))
	_ = viper.BindPFlag("wallet", rootCmd.PersistentFlags().Lookup("wallet"))
	_ = viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	v := viper.GetViper()
	config.Configure(v, cfgFile)
	config.SetDefaults(v)

	if err := config.ReadIn(v); err != nil {
		printError("%v", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig decodes and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// newClient returns a gateway client for cfg.
func newClient(cfg *config.Config) (*arweave.Client, error) {
	client, err := arweave.NewClient(cfg.Gateway, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}
	return client, nil
}

// openCache opens the dedup cache for the configured gateway.
func openCache(cfg *config.Config) (*cache.Cache, error) {
	c, err := cache.Open(cfg.Cache.Backend, cfg.Cache.Dir, cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return c, nil
}

// initializeLogging creates the XDG directories and starts file logging
// with a console sink on stderr. It runs before every command.
func initializeLogging(_ *cobra.Command, _ []string) error {
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	return logging.Init(loggingConfig(false))
}

// initTUILogging re-initializes logging for the progress view: the
// console sink is disabled and recent records are kept in memory.
func initTUILogging() error {
	return logging.Init(loggingConfig(true))
}

func closeLogging(_ *cobra.Command, _ []string) error {
	return logging.Close()
}

// loggingConfig builds the logging configuration from viper.
func loggingConfig(interactive bool) logging.Config {
	level := viper.GetString("logging.level")
	if level == "" {
		level = "info"
	}

	path, err := config.ExpandPath(viper.GetString("logging.path"))
	if err != nil {
		path = ""
	}

	rotation := config.RotationConfig{
		MaxSize:    viper.GetString("logging.rotation.max_size"),
		MaxAge:     viper.GetInt("logging.rotation.max_age"),
		MaxBackups: viper.GetInt("logging.rotation.max_backups"),
		Daily:      viper.GetBool("logging.rotation.daily"),
	}

	console := "warn"
	switch {
	case getVerbose():
		console = "debug"
	case getQuiet():
		console = "error"
	}

	return logging.Config{
		Level:        level,
		Path:         path,
		Rotation:     parseRotationConfig(rotation),
		Components:   viper.GetStringMapString("logging.components"),
		ConsoleLevel: console,
		Interactive:  interactive,
	}
}

// parseRotationConfig converts the config file rotation settings. An empty
// or invalid max_size falls back to the default.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	maxSize := logging.DefaultRotationConfig().MaxSize
	if rc.MaxSize != "" {
		if n, err := types.ParseSize(rc.MaxSize); err == nil && n > 0 {
			maxSize = n
		}
	}
	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printStatus prints progress to stderr so stdout stays machine-readable.
func printStatus(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
