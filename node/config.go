// Package node assembles a plasma operator from its configuration: the
// block store, the root-chain gateway, the chain engine and the HTTP API.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pelletier/go-toml/v2"

	"github.com/eth2030/plasma/core"
	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/log"
)

// Database backends.
const (
	DBMemory  = "memory"
	DBLevelDB = "leveldb"
)

// Gateway modes.
const (
	GatewayMemory = "memory"
	GatewayRPC    = "rpc"
)

// Config holds all configuration for a plasma operator node. It maps onto a
// TOML file with one table per section.
type Config struct {
	// DataDir is the root directory for all data storage.
	DataDir string `toml:"datadir"`

	DB        DBConfig        `toml:"db"`
	HTTP      HTTPConfig      `toml:"http"`
	Log       LogConfig       `toml:"log"`
	RootChain RootChainConfig `toml:"rootchain"`
	Chain     ChainConfig     `toml:"chain"`
}

// DBConfig selects and tunes the block store.
type DBConfig struct {
	Backend string `toml:"backend"` // memory or leveldb
	Cache   int    `toml:"cache"`   // leveldb cache in MiB
	Handles int    `toml:"handles"` // leveldb open files
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
	Timeout string `toml:"timeout"` // bound on root-chain calls per request
}

// LogConfig configures logging. An empty File logs to stderr only.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// RootChainConfig selects the root-chain gateway.
type RootChainConfig struct {
	// Gateway is memory for an in-process simulated contract or rpc for a
	// JSON-RPC node.
	Gateway   string   `toml:"gateway"`
	URL       string   `toml:"url"`
	Contract  string   `toml:"contract"`
	GasLimit  uint64   `toml:"gas_limit"`
	FromBlock uint64   `toml:"from_block"`
	Keys      []string `toml:"keys"` // hex private keys, development only
}

// ChainConfig configures the chain engine.
type ChainConfig struct {
	Operator string `toml:"operator"`
	Fee      string `toml:"fee"` // wei, decimal or 0x hex
	Staged   bool   `toml:"staged"`
	PoolSize int    `toml:"pool_size"`
	// BlockInterval runs a production cycle on a timer. Empty leaves block
	// production to the mineBlock route.
	BlockInterval string `toml:"block_interval"`
}

// DefaultConfig returns a Config for a local development operator.
func DefaultConfig() Config {
	return Config{
		DataDir: "plasma-data",
		DB: DBConfig{
			Backend: DBLevelDB,
			Cache:   16,
			Handles: 64,
		},
		HTTP: HTTPConfig{
			Host:    "127.0.0.1",
			Port:    3001,
			Metrics: true,
			Timeout: "60s",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		RootChain: RootChainConfig{
			Gateway:  GatewayMemory,
			URL:      "http://127.0.0.1:8545",
			GasLimit: 300000,
		},
		Chain: ChainConfig{
			Fee:      core.DefaultFee.Dec(),
			PoolSize: 4096,
		},
	}
}

// LoadConfig reads a TOML file over the defaults. Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return cfg, fmt.Errorf("config: %s: %s", path, strict.String())
		}
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.DB.Backend == DBLevelDB {
		return errors.New("config: datadir must not be empty")
	}
	switch c.DB.Backend {
	case DBMemory, DBLevelDB:
	default:
		return fmt.Errorf("config: unknown db backend %q", c.DB.Backend)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid http port: %d", c.HTTP.Port)
	}
	if _, err := parseDuration(c.HTTP.Timeout); err != nil {
		return fmt.Errorf("config: http timeout: %w", err)
	}
	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}

	switch c.RootChain.Gateway {
	case GatewayMemory:
	case GatewayRPC:
		if c.RootChain.URL == "" {
			return errors.New("config: rootchain url must be set for the rpc gateway")
		}
		if !common.IsHexAddress(c.RootChain.Contract) {
			return fmt.Errorf("config: invalid contract address %q", c.RootChain.Contract)
		}
		if c.Chain.Operator == "" {
			return errors.New("config: operator must be set for the rpc gateway")
		}
	default:
		return fmt.Errorf("config: unknown gateway %q", c.RootChain.Gateway)
	}

	if c.Chain.Operator != "" && !common.IsHexAddress(c.Chain.Operator) {
		return fmt.Errorf("config: invalid operator address %q", c.Chain.Operator)
	}
	if _, err := c.fee(); err != nil {
		return fmt.Errorf("config: fee: %w", err)
	}
	if c.Chain.PoolSize < 0 {
		return fmt.Errorf("config: invalid pool size: %d", c.Chain.PoolSize)
	}
	if _, err := parseDuration(c.Chain.BlockInterval); err != nil {
		return fmt.Errorf("config: block interval: %w", err)
	}
	return nil
}

// ResolvePath resolves a path relative to the data directory.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// HTTPAddr returns the API listen address.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func (c *Config) fee() (*uint256.Int, error) {
	if strings.TrimSpace(c.Chain.Fee) == "" {
		return nil, nil
	}
	return types.ParseAmount(c.Chain.Fee)
}

// parseDuration accepts an empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
