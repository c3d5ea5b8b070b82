// Package config loads the coordinator's tunables from flags, environment
// variables, and defaults, following the wider code family's viper/pflag
// convention.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultChainID                = 1
	defaultRequiredConfirmations  = 12
	defaultConcurrencyLimit       = 8
	defaultMinGas                 = 21_000
	defaultMaxGas                 = 5_000_000
	defaultSafetyBps              = 1000
	defaultGasFallback            = 300_000
	defaultGasTimeout             = 20 * time.Second
	defaultJournalBackend         = "pebble"
	defaultDatadir                = ".coordinator"
	defaultLogLevel               = "info"
	defaultLogOutput              = "stdout"

	envPrefix = "COORDINATOR"
)

// Web3Config holds the RPC transport configuration (component A).
type Web3Config struct {
	ChainID uint64   `mapstructure:"chainID"`
	RPC     []string `mapstructure:"rpc"`
}

// SyncConfig holds the Nonce Sync Engine's tunables (component E).
type SyncConfig struct {
	RequiredConfirmations uint64 `mapstructure:"requiredConfirmations"`
	ConcurrencyLimit      int    `mapstructure:"concurrencyLimit"`
}

// GasConfig holds the layered gas estimator's tunables.
type GasConfig struct {
	MinGas    uint64        `mapstructure:"minGas"`
	MaxGas    uint64        `mapstructure:"maxGas"`
	SafetyBps int           `mapstructure:"safetyBps"`
	Fallback  uint64        `mapstructure:"fallback"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// JournalConfig selects and configures the Journal Sink backend (F).
type JournalConfig struct {
	Backend string `mapstructure:"backend"` // "pebble" or "memory"
	Path    string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// Config is the coordinator's full configuration tree.
type Config struct {
	Web3    Web3Config
	Sync    SyncConfig
	Gas     GasConfig
	Journal JournalConfig
	Log     LogConfig
	Datadir string
}

// Load reads configuration from command-line flags, COORDINATOR_*
// environment variables, and the defaults above, in that precedence order.
func Load() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("web3.chainID", defaultChainID)
	v.SetDefault("web3.rpc", []string{})
	v.SetDefault("sync.requiredConfirmations", defaultRequiredConfirmations)
	v.SetDefault("sync.concurrencyLimit", defaultConcurrencyLimit)
	v.SetDefault("gas.minGas", defaultMinGas)
	v.SetDefault("gas.maxGas", defaultMaxGas)
	v.SetDefault("gas.safetyBps", defaultSafetyBps)
	v.SetDefault("gas.fallback", defaultGasFallback)
	v.SetDefault("gas.timeout", defaultGasTimeout)
	v.SetDefault("journal.backend", defaultJournalBackend)
	v.SetDefault("journal.path", filepath.Join(defaultDatadirPath, "journal"))
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)

	flag.Uint64P("web3.chainID", "c", defaultChainID, "chain ID to coordinate transactions on")
	flag.StringSliceP("web3.rpc", "r", []string{}, "JSON-RPC endpoint(s), comma-separated")
	flag.Uint64("sync.requiredConfirmations", defaultRequiredConfirmations, "confirmations required before a replaced nonce is considered safe")
	flag.Int("sync.concurrencyLimit", defaultConcurrencyLimit, "max number of sender sync passes to run concurrently")
	flag.Uint64("gas.minGas", defaultMinGas, "minimum gas limit a sent transaction may use")
	flag.Uint64("gas.maxGas", defaultMaxGas, "maximum gas limit a sent transaction may use")
	flag.Int("gas.safetyBps", defaultSafetyBps, "safety margin applied to a successful gas estimate, in basis points")
	flag.Uint64("gas.fallback", defaultGasFallback, "gas limit used when direct estimation fails and the binary-search probe hits a transport error")
	flag.Duration("gas.timeout", defaultGasTimeout, "timeout for a single gas estimation attempt")
	flag.String("journal.backend", defaultJournalBackend, "journal sink backend (pebble, memory)")
	flag.String("journal.path", filepath.Join(defaultDatadirPath, "journal"), "path to the pebble-backed journal store")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for the coordinator's durable state")

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants Load cannot enforce through defaults alone.
func (c *Config) Validate() error {
	if len(c.Web3.RPC) == 0 {
		return fmt.Errorf("config: at least one web3.rpc endpoint is required")
	}
	if c.Journal.Backend != "pebble" && c.Journal.Backend != "memory" {
		return fmt.Errorf("config: invalid journal.backend %q, must be pebble or memory", c.Journal.Backend)
	}
	if c.Gas.MinGas > c.Gas.MaxGas {
		return fmt.Errorf("config: gas.minGas (%d) exceeds gas.maxGas (%d)", c.Gas.MinGas, c.Gas.MaxGas)
	}
	return nil
}
