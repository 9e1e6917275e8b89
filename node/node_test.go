package node

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/core"
	"github.com/eth2030/plasma/rootchain"
)

func hexKey(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(gethcrypto.FromECDSA(key)), gethcrypto.PubkeyToAddress(key.PublicKey)
}

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.DB.Backend = DBMemory
	cfg.HTTP.Port = 0
	cfg.Log.Level = "error"
	return cfg
}

func TestNewMemoryNode(t *testing.T) {
	opKey, op := hexKey(t)
	cfg := memoryConfig()
	cfg.RootChain.Keys = []string{opKey}

	n, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()
	if n.Chain().Config().Operator != op {
		t.Fatalf("operator = %s, want first key %s", n.Chain().Config().Operator.Hex(), op.Hex())
	}

	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mineBlock", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("mineBlock = %d: %s", rec.Code, rec.Body.String())
	}
	if n.Chain().Head().Number() != 1 {
		t.Fatalf("head = %d", n.Chain().Head().Number())
	}
}

func TestNewNodeErrors(t *testing.T) {
	cfg := memoryConfig()
	cfg.RootChain.Keys = []string{"not-a-key"}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("bad key accepted")
	}

	cfg = memoryConfig()
	cfg.Chain.Operator = "0x00000000000000000000000000000000000000aa"
	if _, err := New(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "no key for operator") {
		t.Fatalf("err = %v, want missing operator key", err)
	}

	cfg = memoryConfig()
	cfg.DB.Backend = "rocks"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestLevelDBNodeReopen(t *testing.T) {
	opKey, op := hexKey(t)
	userKey, user := hexKey(t)
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Port = 0
	cfg.Log.Level = "error"
	cfg.RootChain.Keys = []string{opKey, userKey}
	cfg.Chain.Operator = op.Hex()
	cfg.Chain.Fee = "1"

	ctx := context.Background()
	n, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Gateway().Deposit(ctx, user, uint256.NewInt(1_000)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := n.Chain().GenerateNextBlock(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	head := n.Chain().Head().Hash()
	if _, err := n.Chain().Transact(ctx, core.TransferRequest{From: user, To: op, Amount: uint256.NewInt(500)}); err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Chain().Head().Hash() != head {
		t.Fatal("head changed across restart")
	}
	// the journaled transfer is back in the pool and its input stays spent
	if n := len(reopened.Chain().Pending()); n != 1 {
		t.Fatalf("pending after restart = %d, want 1", n)
	}
	if utxos := reopened.Chain().UTXOs(); len(utxos) != 0 {
		t.Fatalf("utxos after restart = %v", utxos)
	}

	// production continues on top of the stored head
	gw := reopened.Gateway().(*rootchain.MemoryGateway)
	if gw.Height() != 2 {
		t.Fatalf("gateway height after restart = %d, want 2", gw.Height())
	}
	blk, err := reopened.Chain().GenerateNextBlock(ctx)
	if err != nil {
		t.Fatalf("cycle after restart: %v", err)
	}
	if blk.Number() != 3 || blk.TxCount() != 1 || gw.Height() != 3 {
		t.Fatalf("block %d with %d txs, gateway height %d", blk.Number(), blk.TxCount(), gw.Height())
	}
	if n := len(reopened.Chain().Pending()); n != 0 {
		t.Fatalf("pending after cycle = %d", n)
	}
	if err := reopened.Gateway().Deposit(ctx, user, uint256.NewInt(7)); err != nil {
		t.Fatal(err)
	}
	if _, err := reopened.Chain().GenerateNextBlock(ctx); err != nil {
		t.Fatalf("second cycle after restart: %v", err)
	}
	if got := reopened.Chain().Head().Number(); got != 4 {
		t.Fatalf("head = %d, want 4", got)
	}
}

func TestDefaultConfigSurvivesRestart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Port = 0
	cfg.Log.Level = "error"
	ctx := context.Background()

	for run := 0; run < 2; run++ {
		n, err := New(ctx, cfg)
		if err != nil {
			t.Fatalf("run %d: New: %v", run, err)
		}
		for i := 0; i < 2; i++ {
			if _, err := n.Chain().GenerateNextBlock(ctx); err != nil {
				n.Close()
				t.Fatalf("run %d cycle %d: %v", run, i, err)
			}
		}
		if err := n.Close(); err != nil {
			t.Fatalf("run %d: Close: %v", run, err)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.Chain.BlockInterval = "10ms"
	n, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for n.Chain().Head().Number() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no blocks produced on the interval")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if n.Running() {
		t.Fatal("node still marked running")
	}
}
