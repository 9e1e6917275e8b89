package txpool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/eth2030/plasma/core/types"
)

func TestJournalInsertLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "transfers.journal")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	a, b := makeTx(1, 10), makeTx(2, 10)
	for _, tx := range []*types.Transaction{a, b} {
		if err := j.Insert(tx); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if j.Count() != 2 {
		t.Fatalf("count = %d", j.Count())
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
	if err := j.Insert(a); !errors.Is(err, ErrJournalClosed) {
		t.Fatalf("insert after close: %v", err)
	}

	txs, err := LoadJournal(path)
	if err != nil {
		t.Fatalf("LoadJournal: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("loaded %d, want 2", len(txs))
	}
	for i, want := range []*types.Transaction{a, b} {
		wh, _ := want.Hash()
		gh, _ := txs[i].Hash()
		if wh != gh {
			t.Fatalf("tx %d hash mismatch", i)
		}
	}
}

func TestJournalSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.journal")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Insert(makeTx(1, 10)); err != nil {
		t.Fatal(err)
	}
	j.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n{\"tx\":\"0x01\"}\n")
	f.Close()

	txs, err := LoadJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("loaded %d, want 1", len(txs))
	}
}

func TestJournalRotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.journal")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	a, b, c := makeTx(1, 10), makeTx(2, 10), makeTx(3, 10)
	for _, tx := range []*types.Transaction{a, b, c} {
		if err := j.Insert(tx); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Rotate([]*types.Transaction{c}); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if j.Count() != 1 {
		t.Fatalf("count after rotate = %d", j.Count())
	}
	// appends continue after rotation
	if err := j.Insert(a); err != nil {
		t.Fatal(err)
	}
	txs, err := LoadJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("loaded %d, want 2", len(txs))
	}
	ch, _ := c.Hash()
	if h, _ := txs[0].Hash(); h != ch {
		t.Fatal("rotated journal does not start with the pending transfer")
	}
}

func TestLoadMissingJournal(t *testing.T) {
	txs, err := LoadJournal(filepath.Join(t.TempDir(), "none"))
	if err != nil || txs != nil {
		t.Fatalf("txs %v err %v", txs, err)
	}
}
