// Package config provides configuration management for the weave publisher.
package config

import "time"

// Default configuration values for weave.
const (
	// DefaultGateway is the gateway used when none is configured.
	DefaultGateway = "https://arweave.net"

	// DefaultTimeout bounds each gateway request.
	DefaultTimeout = 20 * time.Second

	// DefaultConcurrency is the number of files prepared and uploaded at once.
	DefaultConcurrency = 5

	// DefaultCacheBackend stores the dedup table as a JSON file.
	DefaultCacheBackend = "json"

	// DefaultMaxAttempts is the retry ceiling for each network call.
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the first retry delay.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxDelay caps retry delays.
	DefaultMaxDelay = 30 * time.Second

	// DefaultChunkConcurrency bounds in-flight chunk posts per file.
	DefaultChunkConcurrency = 8

	// DefaultCommunityTx holds the token balances used to pick the
	// platform fee recipient.
	DefaultCommunityTx = "cEQLlWFkoeFuO7dIsdFbMhsGPvkmRI9cuBxv0mdn0xU"

	// DefaultFeeRate is the platform fee as a fraction of the deploy reward.
	DefaultFeeRate = 0.1

	// DefaultConfigDir is the default configuration directory path.
	DefaultConfigDir = "~/.config/weave"

	// DefaultHistoryDir is the default directory for deploy history.
	DefaultHistoryDir = "~/.config/weave/.history"

	// DefaultRetentionDays is the default number of days to keep history.
	DefaultRetentionDays = 90
)

