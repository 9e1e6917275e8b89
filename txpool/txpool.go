// Package txpool holds signed transfers admitted by the operator until the
// next block cycle includes them. Transactions leave the pool in admission
// order.
package txpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/log"
)

// MaxPoolSize is the default maximum number of pending transactions.
const MaxPoolSize = 4096

var (
	ErrAlreadyKnown  = errors.New("txpool: already known")
	ErrTxPoolFull    = errors.New("txpool: transaction pool is full")
	ErrNotTransfer   = errors.New("txpool: only transfers are pooled")
	ErrInputConflict = errors.New("txpool: input already spent by a pending transaction")
)

// Config holds TxPool configuration.
type Config struct {
	MaxSize int // maximum number of pending transactions, 0 for unlimited
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{MaxSize: MaxPoolSize}
}

// TxPool is an insertion-ordered set of pending transfers.
type TxPool struct {
	config Config
	log    *log.Logger

	mu     sync.RWMutex
	order  []common.Hash
	all    map[common.Hash]*types.Transaction
	inputs map[types.UTXOKey]common.Hash // spent input -> pending tx
}

// New creates an empty pool.
func New(config Config) *TxPool {
	return &TxPool{
		config: config,
		log:    log.Default().Module("txpool"),
		all:    make(map[common.Hash]*types.Transaction),
		inputs: make(map[types.UTXOKey]common.Hash),
	}
}

// Add appends tx to the end of the pending order and returns its hash.
func (pool *TxPool) Add(tx *types.Transaction) (common.Hash, error) {
	if tx.Type != types.TxNormal {
		return common.Hash{}, fmt.Errorf("%w: got %s", ErrNotTransfer, tx.Type)
	}
	hash, err := tx.Hash()
	if err != nil {
		return common.Hash{}, err
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if _, ok := pool.all[hash]; ok {
		return hash, ErrAlreadyKnown
	}
	if pool.config.MaxSize > 0 && len(pool.order) >= pool.config.MaxSize {
		return hash, ErrTxPoolFull
	}
	for _, in := range tx.Inputs {
		if in.IsEmpty() {
			continue
		}
		if other, ok := pool.inputs[in.Key()]; ok {
			return hash, fmt.Errorf("%w: %s by %s", ErrInputConflict, in.Key(), other.Hex())
		}
	}

	cpy := tx.Copy()
	pool.all[hash] = cpy
	pool.order = append(pool.order, hash)
	for _, in := range cpy.Inputs {
		if !in.IsEmpty() {
			pool.inputs[in.Key()] = hash
		}
	}
	pool.log.Debug("transaction pooled", "hash", hash.Hex(), "pending", len(pool.order))
	return hash, nil
}

// Get retrieves a pending transaction by hash.
func (pool *TxPool) Get(hash common.Hash) *types.Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	if tx, ok := pool.all[hash]; ok {
		return tx.Copy()
	}
	return nil
}

// Has reports whether hash is pending.
func (pool *TxPool) Has(hash common.Hash) bool {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	_, ok := pool.all[hash]
	return ok
}

// Pending returns copies of every pending transaction in admission order.
func (pool *TxPool) Pending() []*types.Transaction {
	return pool.Peek(0)
}

// Peek returns copies of the first n pending transactions, or all of them
// when n is not positive.
func (pool *TxPool) Peek(n int) []*types.Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	if n <= 0 || n > len(pool.order) {
		n = len(pool.order)
	}
	out := make([]*types.Transaction, n)
	for i, hash := range pool.order[:n] {
		out[i] = pool.all[hash].Copy()
	}
	return out
}

// Remove drops a transaction, typically after block inclusion. It reports
// whether the transaction was pending.
func (pool *TxPool) Remove(hash common.Hash) bool {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	tx, ok := pool.all[hash]
	if !ok {
		return false
	}
	delete(pool.all, hash)
	for _, in := range tx.Inputs {
		if !in.IsEmpty() && pool.inputs[in.Key()] == hash {
			delete(pool.inputs, in.Key())
		}
	}
	for i, h := range pool.order {
		if h == hash {
			pool.order = append(pool.order[:i], pool.order[i+1:]...)
			break
		}
	}
	return true
}

// Count returns the number of pending transactions.
func (pool *TxPool) Count() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return len(pool.order)
}
