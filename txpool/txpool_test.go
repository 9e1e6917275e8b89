package txpool

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/core/types"
)

var (
	testSender = common.BytesToAddress([]byte{0x01, 0x02, 0x03})
	testTo     = common.BytesToAddress([]byte{0xde, 0xad})
)

func makeTx(blk uint64, amount uint64) *types.Transaction {
	return types.NewTransferTx(
		types.UTXOKey{BlkNum: blk},
		testTo, uint256.NewInt(amount),
		testSender, uint256.NewInt(1),
		uint256.NewInt(1),
	)
}

func TestAddPreservesOrder(t *testing.T) {
	pool := New(DefaultConfig())
	var hashes []common.Hash
	for blk := 5; blk >= 1; blk-- {
		h, err := pool.Add(makeTx(uint64(blk), 10))
		if err != nil {
			t.Fatalf("Add(%d): %v", blk, err)
		}
		hashes = append(hashes, h)
	}
	pending := pool.Pending()
	if len(pending) != 5 {
		t.Fatalf("pending = %d, want 5", len(pending))
	}
	for i, tx := range pending {
		h, _ := tx.Hash()
		if h != hashes[i] {
			t.Errorf("position %d: got %s, want %s", i, h.Hex(), hashes[i].Hex())
		}
	}
	if got := pool.Peek(2); len(got) != 2 || got[0].Inputs[0].BlkNum != 5 {
		t.Errorf("Peek(2) = %v", got)
	}
}

func TestAddRejections(t *testing.T) {
	pool := New(Config{MaxSize: 2})
	tx := makeTx(1, 10)
	if _, err := pool.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := pool.Add(tx); !errors.Is(err, ErrAlreadyKnown) {
		t.Errorf("duplicate: err = %v, want ErrAlreadyKnown", err)
	}
	if _, err := pool.Add(makeTx(1, 11)); !errors.Is(err, ErrInputConflict) {
		t.Errorf("conflict: err = %v, want ErrInputConflict", err)
	}
	if _, err := pool.Add(types.NewDepositTx(testSender, uint256.NewInt(1))); !errors.Is(err, ErrNotTransfer) {
		t.Errorf("deposit: err = %v, want ErrNotTransfer", err)
	}
	if _, err := pool.Add(makeTx(2, 10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := pool.Add(makeTx(3, 10)); !errors.Is(err, ErrTxPoolFull) {
		t.Errorf("full: err = %v, want ErrTxPoolFull", err)
	}
}

func TestRemoveReleasesInputs(t *testing.T) {
	pool := New(DefaultConfig())
	h1, _ := pool.Add(makeTx(1, 10))
	h2, _ := pool.Add(makeTx(2, 10))

	if !pool.Remove(h1) {
		t.Fatal("Remove returned false")
	}
	if pool.Remove(h1) {
		t.Error("second Remove returned true")
	}
	if pool.Has(h1) || !pool.Has(h2) || pool.Count() != 1 {
		t.Errorf("state after remove: has1=%v has2=%v count=%d", pool.Has(h1), pool.Has(h2), pool.Count())
	}
	if _, err := pool.Add(makeTx(1, 11)); err != nil {
		t.Errorf("input not released: %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	pool := New(DefaultConfig())
	h, _ := pool.Add(makeTx(1, 10))
	tx := pool.Get(h)
	tx.Outputs[0].Amount.SetUint64(999)
	if got := pool.Get(h); got.Outputs[0].Amount.Uint64() != 10 {
		t.Errorf("pool mutated through Get copy")
	}
	if pool.Get(common.Hash{}) != nil {
		t.Error("Get of unknown hash returned a transaction")
	}
}

func TestConcurrentAdd(t *testing.T) {
	pool := New(DefaultConfig())
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every pair of goroutines races for the same input
			if _, err := pool.Add(makeTx(uint64(i/2)+1, uint64(i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	rejected := 0
	for err := range errs {
		if !errors.Is(err, ErrInputConflict) {
			t.Errorf("unexpected error %v", err)
		}
		rejected++
	}
	if pool.Count() != 32 || rejected != 32 {
		t.Errorf("count %d rejected %d, want 32/32", pool.Count(), rejected)
	}
}
