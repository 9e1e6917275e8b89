package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eth2030/plasma/node"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, exit, _ := parseFlags(nil, new(bytes.Buffer))
	if exit {
		t.Fatal("exit requested without flags")
	}
	def := node.DefaultConfig()
	if cfg.DataDir != def.DataDir || cfg.HTTP.Port != def.HTTP.Port || cfg.RootChain.Gateway != def.RootChain.Gateway {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	args := []string{
		"--datadir", "/tmp/p", "--db", "memory", "--http.port", "4100",
		"--gateway", "rpc", "--rpc.url", "http://geth:8545",
		"--key", "0x01", "--key", "0x02", "--staged", "--block.interval", "2s",
	}
	cfg, exit, _ := parseFlags(args, new(bytes.Buffer))
	if exit {
		t.Fatal("unexpected exit")
	}
	if cfg.DataDir != "/tmp/p" || cfg.DB.Backend != "memory" || cfg.HTTP.Port != 4100 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RootChain.Gateway != "rpc" || cfg.RootChain.URL != "http://geth:8545" {
		t.Fatalf("rootchain = %+v", cfg.RootChain)
	}
	if len(cfg.RootChain.Keys) != 2 || !cfg.Chain.Staged || cfg.Chain.BlockInterval != "2s" {
		t.Fatalf("keys %v staged %v interval %q", cfg.RootChain.Keys, cfg.Chain.Staged, cfg.Chain.BlockInterval)
	}
}

func TestParseFlagsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plasma.toml")
	data := "[http]\nport = 5000\nhost = \"0.0.0.0\"\n\n[chain]\nstaged = true\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, exit, _ := parseFlags([]string{"--config", path, "--http.port", "5001"}, new(bytes.Buffer))
	if exit {
		t.Fatal("unexpected exit")
	}
	// flags win over the file, the file over defaults
	if cfg.HTTP.Port != 5001 || cfg.HTTP.Host != "0.0.0.0" || !cfg.Chain.Staged {
		t.Fatalf("http %+v staged %v", cfg.HTTP, cfg.Chain.Staged)
	}
}

func TestRunExitCodes(t *testing.T) {
	if code := run([]string{"--version"}); code != 0 {
		t.Fatalf("--version exit = %d", code)
	}
	if code := run([]string{"--no-such-flag"}); code != 2 {
		t.Fatalf("unknown flag exit = %d", code)
	}
	if code := run([]string{"--db", "rocks"}); code != 1 {
		t.Fatalf("invalid config exit = %d", code)
	}
	if code := run([]string{"--config", filepath.Join(t.TempDir(), "missing.toml")}); code != 1 {
		t.Fatalf("missing config exit = %d", code)
	}
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	_, exit, code := parseFlags([]string{"--help"}, &out)
	if !exit || code != 0 {
		t.Fatalf("exit %v code %d", exit, code)
	}
	if !strings.Contains(out.String(), "--block.interval") {
		t.Fatalf("usage missing flags:\n%s", out.String())
	}
}
