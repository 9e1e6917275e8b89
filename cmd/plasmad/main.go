// Command plasmad runs a plasma child-chain operator.
//
// Usage:
//
//	plasmad [flags]
//
// Settings are read from --config (TOML) when given; flags override the
// file. See --help for the full list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/eth2030/plasma/log"
	"github.com/eth2030/plasma/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. It takes the CLI
// arguments without the program name so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args, os.Stderr)
	if exit {
		return code
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create node: %v\n", err)
		return 1
	}
	defer n.Close()

	logger := log.Default().Module("main")
	logger.Info("plasmad starting", "version", version, "commit", commit)
	logger.Info("configuration",
		"datadir", cfg.DataDir,
		"db", cfg.DB.Backend,
		"http", cfg.HTTPAddr(),
		"metrics", cfg.HTTP.Metrics,
		"gateway", cfg.RootChain.Gateway,
		"operator", n.Chain().Config().Operator.Hex(),
		"staged", cfg.Chain.Staged,
		"blockInterval", cfg.Chain.BlockInterval,
	)

	if err := n.Run(ctx); err != nil {
		logger.Error("node failed", "err", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// parseFlags builds the configuration from defaults, the optional config
// file and the flags, in that order of precedence. It returns whether the
// caller should exit immediately and with which code.
func parseFlags(args []string, stderr io.Writer) (node.Config, bool, int) {
	// first pass only locates the config file
	var configPath string
	draft := node.DefaultConfig()
	pre := newFlagSet(&draft, &configPath, new(bool))
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	if err := pre.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			full := newFlagSet(&draft, &configPath, new(bool))
			full.SetOutput(stderr)
			full.PrintDefaults()
			return draft, true, 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return draft, true, 2
	}

	cfg := node.DefaultConfig()
	if configPath != "" {
		loaded, err := node.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return cfg, true, 1
		}
		cfg = loaded
	}

	var showVersion bool
	fs := newFlagSet(&cfg, &configPath, &showVersion)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return cfg, true, 2
	}
	if showVersion {
		fmt.Fprintf(stderr, "plasmad %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}
	return cfg, false, 0
}

// newFlagSet binds every CLI flag to cfg, using its current values as
// defaults.
func newFlagSet(cfg *node.Config, configPath *string, showVersion *bool) *pflag.FlagSet {
	fs := pflag.NewFlagSet("plasmad", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.StringVar(configPath, "config", *configPath, "TOML configuration file")
	fs.BoolVar(showVersion, "version", false, "print version and exit")

	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path")
	fs.StringVar(&cfg.DB.Backend, "db", cfg.DB.Backend, "block store backend (memory, leveldb)")
	fs.IntVar(&cfg.DB.Cache, "db.cache", cfg.DB.Cache, "leveldb cache size in MiB")

	fs.StringVar(&cfg.HTTP.Host, "http.host", cfg.HTTP.Host, "API listen host")
	fs.IntVar(&cfg.HTTP.Port, "http.port", cfg.HTTP.Port, "API listen port")
	fs.BoolVar(&cfg.HTTP.Metrics, "metrics", cfg.HTTP.Metrics, "serve Prometheus metrics on /metrics")

	fs.StringVar(&cfg.Log.Level, "log.level", cfg.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Log.File, "log.file", cfg.Log.File, "rotating log file, relative to datadir")

	fs.StringVar(&cfg.RootChain.Gateway, "gateway", cfg.RootChain.Gateway, "root-chain gateway (memory, rpc)")
	fs.StringVar(&cfg.RootChain.URL, "rpc.url", cfg.RootChain.URL, "root-chain JSON-RPC endpoint")
	fs.StringVar(&cfg.RootChain.Contract, "contract", cfg.RootChain.Contract, "PlasmaChainManager contract address")
	fs.StringSliceVar(&cfg.RootChain.Keys, "key", cfg.RootChain.Keys, "hex private key to unlock (repeatable, development only)")

	fs.StringVar(&cfg.Chain.Operator, "operator", cfg.Chain.Operator, "operator address signing block headers")
	fs.StringVar(&cfg.Chain.Fee, "fee", cfg.Chain.Fee, "transfer fee in wei")
	fs.BoolVar(&cfg.Chain.Staged, "staged", cfg.Chain.Staged, "commit ledger changes only after the header is submitted")
	fs.StringVar(&cfg.Chain.BlockInterval, "block.interval", cfg.Chain.BlockInterval, "produce a block on this interval (empty: on request)")
	return fs
}
