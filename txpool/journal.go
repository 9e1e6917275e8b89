package txpool

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eth2030/plasma/core/types"
)

// Journal errors.
var (
	ErrJournalClosed = errors.New("txpool: journal is closed")
)

// JournalEntry is one journal line: a signed transfer and when it was
// admitted.
type JournalEntry struct {
	Tx        hexutil.Bytes `json:"tx"`
	Hash      common.Hash   `json:"hash"`
	Timestamp time.Time     `json:"timestamp"`
}

// Journal appends admitted transfers to a file so that the pool can be
// restored after a restart. Rotate compacts it to the current pool.
type Journal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
	count  int // entries written since the last rotation
}

// OpenJournal opens the journal at path for appending, creating the parent
// directory when needed.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{path: path, file: f}, nil
}

func encodeEntry(tx *types.Transaction) ([]byte, error) {
	enc, err := tx.Encode(true)
	if err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(JournalEntry{Tx: enc, Hash: hash, Timestamp: time.Now()})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Insert appends tx to the journal.
func (j *Journal) Insert(tx *types.Transaction) error {
	data, err := encodeEntry(tx)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	if _, err := j.file.Write(data); err != nil {
		return err
	}
	j.count++
	return nil
}

// LoadJournal reads the transfers recorded at path in admission order.
// Corrupt lines are skipped. A missing file yields no transfers.
func LoadJournal(path string) ([]*types.Transaction, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var txs []*types.Transaction
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		tx, err := types.DecodeTransactionWithType(entry.Tx, types.TxNormal)
		if err != nil {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, scanner.Err()
}

// Rotate replaces the journal with the given pending transfers.
func (j *Journal) Rotate(pending []*types.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	if err := j.file.Close(); err != nil {
		return err
	}

	tmpPath := j.path + ".tmp"
	written, err := writeEntries(tmpPath, pending)
	if err == nil {
		err = os.Rename(tmpPath, j.path)
	}
	if err != nil {
		os.Remove(tmpPath)
	}
	// reopen whatever is at path so Insert keeps working
	f, openErr := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if openErr != nil {
		j.closed = true
		return errors.Join(err, openErr)
	}
	j.file = f
	if err != nil {
		return err
	}
	j.count = written
	return nil
}

func writeEntries(path string, txs []*types.Transaction) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)
	written := 0
	for _, tx := range txs {
		data, err := encodeEntry(tx)
		if err != nil {
			continue
		}
		if _, err := w.Write(data); err != nil {
			f.Close()
			return 0, err
		}
		written++
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, err
	}
	return written, f.Close()
}

// Close syncs and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.file.Sync(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Count returns the number of entries written since the last rotation.
func (j *Journal) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}
