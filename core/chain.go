// Package core implements the child-chain operator engine: block assembly,
// the block production cycle and transfer admission on top of the UTXO
// ledger.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/plasma/core/ledger"
	"github.com/eth2030/plasma/core/rawdb"
	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/log"
	"github.com/eth2030/plasma/merkle"
	"github.com/eth2030/plasma/metrics"
	"github.com/eth2030/plasma/rootchain"
	"github.com/eth2030/plasma/txpool"
)

// ProofResult is an inclusion proof for one transaction slot.
type ProofResult struct {
	Root  common.Hash
	Tx    []byte
	Proof []byte
}

// Chain owns the operator state: the block list, the ledger and the pool.
// Mutating operations (block cycles and transfer admission) are serialized
// by procMu; queries only take mu and proceed while a cycle waits on the
// root chain.
type Chain struct {
	config  ChainConfig
	gateway rootchain.Gateway
	db      rawdb.Database
	pool    *txpool.TxPool
	journal *txpool.Journal
	log     *log.Logger

	procMu sync.Mutex
	// deposits and withdrawals deferred by the last appended block; guarded
	// by procMu
	carryDeposits    []rootchain.DepositEvent
	carryWithdrawals []rootchain.WithdrawalEvent

	mu     sync.RWMutex
	blocks []*types.Block
	ledger *ledger.Ledger
	state  CycleState
}

// NewChain opens the chain stored in db, rebuilding the ledger from its
// blocks, or starts a new chain at genesis when db is empty. A nil db keeps
// everything in memory.
func NewChain(config ChainConfig, gateway rootchain.Gateway, db rawdb.Database) (*Chain, error) {
	if db == nil {
		db = rawdb.NewMemoryDB()
	}
	c := &Chain{
		config:  config,
		gateway: gateway,
		db:      db,
		pool:    txpool.New(config.Pool),
		log:     log.Default().Module("chain"),
		ledger:  ledger.New(),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	if config.Journal != "" {
		if err := c.openJournal(config.Journal); err != nil {
			return nil, err
		}
	}
	c.updateGauges()
	metrics.SetCycleState(cycleStateNames, StateIdle.String())
	return c, nil
}

// load replays stored blocks or writes genesis.
func (c *Chain) load() error {
	head, err := rawdb.ReadHeadNumber(c.db)
	if errors.Is(err, rawdb.ErrNotFound) {
		genesis := GenesisBlock()
		if err := c.persist(genesis); err != nil {
			return err
		}
		c.blocks = []*types.Block{genesis}
		c.log.Info("initialized new chain", "genesis", genesis.Hash().Hex())
		return nil
	}
	if err != nil {
		return err
	}

	for n := uint64(0); n <= head; n++ {
		data, err := rawdb.ReadBlock(c.db, n)
		if err != nil {
			return fmt.Errorf("%w: block %d: %v", ErrInvalidChain, n, err)
		}
		blk, err := c.restoreBlock(data)
		if err != nil {
			return fmt.Errorf("block %d: %w", n, err)
		}
		if blk.Number() != n {
			return fmt.Errorf("%w: slot %d holds block %d", ErrInvalidChain, n, blk.Number())
		}
		if n == 0 && blk.Hash() != GenesisBlock().Hash() {
			return fmt.Errorf("%w: unexpected genesis", ErrInvalidChain)
		}
		if n > 0 {
			if want := c.blocks[n-1].Hash(); blk.Header().PrevHash != want {
				return fmt.Errorf("%w: block %d parent %s, want %s", ErrInvalidChain, n, blk.Header().PrevHash.Hex(), want.Hex())
			}
			if err := replayBlock(c.ledger, blk); err != nil {
				return err
			}
		}
		c.blocks = append(c.blocks, blk)
	}
	c.log.Info("loaded chain", "head", head, "utxos", c.ledger.Len())
	return nil
}

// openJournal re-admits the journaled transfers that are still valid
// against the replayed ledger and compacts the journal to them.
func (c *Chain) openJournal(path string) error {
	txs, err := txpool.LoadJournal(path)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	restored := 0
	for _, tx := range txs {
		if err := c.ledger.CheckTransaction(context.Background(), tx, c.gateway); err != nil {
			c.log.Warn("dropping journaled transfer", "err", err)
			continue
		}
		if _, err := c.pool.Add(tx); err != nil {
			c.log.Warn("dropping journaled transfer", "err", err)
			continue
		}
		c.ledger.Spend(tx)
		restored++
	}
	j, err := txpool.OpenJournal(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if err := j.Rotate(c.pool.Pending()); err != nil {
		j.Close()
		return fmt.Errorf("rotate journal: %w", err)
	}
	c.journal = j
	if len(txs) > 0 {
		c.log.Info("restored pending transfers", "journaled", len(txs), "restored", restored)
	}
	return nil
}

// Close releases the transfer journal.
func (c *Chain) Close() error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Close()
}

// restoreBlock rebuilds a stored block and checks its Merkle root.
func (c *Chain) restoreBlock(data []byte) (*types.Block, error) {
	header, txs, err := types.DecodeBlock(data)
	if err != nil {
		return nil, err
	}
	blk, err := BuildBlock(header.Number, header.PrevHash, txs)
	if err != nil {
		return nil, err
	}
	if string(blk.Header().MerkleRoot) != string(header.MerkleRoot) {
		return nil, fmt.Errorf("%w: merkle root mismatch", ErrInvalidChain)
	}
	if len(header.Sig) > 0 {
		if err := blk.Header().SetSignature(header.Sig); err != nil {
			return nil, err
		}
	}
	return blk, nil
}

// replayBlock applies the effects of an appended block to l.
func replayBlock(l *ledger.Ledger, blk *types.Block) error {
	for i, raw := range blk.Transactions() {
		if len(raw) == 0 {
			continue
		}
		tx, err := types.DecodeTransaction(raw)
		if err != nil {
			return fmt.Errorf("block %d tx %d: %w", blk.Number(), i, err)
		}
		l.Spend(tx)
		l.Create(blk.Number(), tx, uint64(i))
	}
	return nil
}

func (c *Chain) persist(blk *types.Block) error {
	data, err := types.EncodeBlock(blk)
	if err != nil {
		return err
	}
	return rawdb.WriteBlockAndHead(c.db, blk.Number(), data)
}

// Config returns the chain configuration.
func (c *Chain) Config() ChainConfig { return c.config }

// Gateway returns the root-chain gateway the chain was built with.
func (c *Chain) Gateway() rootchain.Gateway { return c.gateway }

// State returns the current cycle state.
func (c *Chain) State() CycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Chain) setState(s CycleState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metrics.SetCycleState(cycleStateNames, s.String())
}

// Blocks returns every block from genesis to head.
func (c *Chain) Blocks() []*types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*types.Block(nil), c.blocks...)
}

// Headers returns copies of every header from genesis to head.
func (c *Chain) Headers() []*types.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Header, len(c.blocks))
	for i, blk := range c.blocks {
		out[i] = blk.Header().Copy()
	}
	return out
}

// Block returns the block with the given number.
func (c *Chain) Block(number uint64) (*types.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if number >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
	}
	return c.blocks[number], nil
}

// Head returns the latest block.
func (c *Chain) Head() *types.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// UTXOs returns the unspent outputs in ledger order.
func (c *Chain) UTXOs() []*types.UTXO {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.List()
}

// Pending returns the transfers waiting for the next block.
func (c *Chain) Pending() []*types.Transaction {
	return c.pool.Pending()
}

// Proof returns the inclusion proof for slot txIndex of block blkNum.
func (c *Chain) Proof(blkNum uint64, txIndex int) (*ProofResult, error) {
	blk, err := c.Block(blkNum)
	if err != nil {
		return nil, err
	}
	tree := blk.Tree()
	if tree == nil {
		return nil, fmt.Errorf("block %d: %w", blkNum, merkle.ErrNotReady)
	}
	proof, err := tree.Proof(txIndex)
	if err != nil {
		return nil, err
	}
	root, err := tree.Root()
	if err != nil {
		return nil, err
	}
	return &ProofResult{
		Root:  root,
		Tx:    common.CopyBytes(blk.Transaction(txIndex)),
		Proof: merkle.EncodeProof(proof),
	}, nil
}

func (c *Chain) updateGauges() {
	c.mu.RLock()
	metrics.ChainHeight.Set(float64(len(c.blocks) - 1))
	metrics.LedgerUTXOs.Set(float64(c.ledger.Len()))
	c.mu.RUnlock()
	metrics.TxPoolPending.Set(float64(c.pool.Count()))
}

// gatewayError tags a root-chain failure with the call that produced it.
func gatewayError(call string, err error) error {
	return fmt.Errorf("%w: %s: %w", rootchain.ErrGateway, call, err)
}

// GenerateNextBlock runs one block production cycle: it collects deposits,
// withdrawals and pending transfers, signs and submits the header and
// appends the block.
func (c *Chain) GenerateNextBlock(ctx context.Context) (*types.Block, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	start := time.Now()
	defer func() { metrics.CycleDuration.Observe(time.Since(start).Seconds()) }()

	prev := c.Head()
	number := prev.Number() + 1
	logger := c.log.With("number", number)

	c.setState(StateCollecting)
	deposits, err := c.gateway.DepositEvents(ctx, prev.Number())
	if err != nil {
		return nil, c.abort(logger, StateCollecting, gatewayError("deposit events", err))
	}
	withdrawals, err := c.gateway.WithdrawalEvents(ctx, prev.Number())
	if err != nil {
		return nil, c.abort(logger, StateCollecting, gatewayError("withdrawal events", err))
	}
	deposits = append(append([]rootchain.DepositEvent(nil), c.carryDeposits...), deposits...)
	withdrawals = append(append([]rootchain.WithdrawalEvent(nil), c.carryWithdrawals...), withdrawals...)

	var work *ledger.Ledger
	if c.config.StagedCycle {
		c.mu.RLock()
		work = c.ledger.Clone()
		c.mu.RUnlock()
	} else {
		c.mu.Lock()
		work = c.ledger
	}
	col := newCollector(ctx, work, c.gateway, number, logger)
	err = col.collect(deposits, withdrawals, c.pool.Peek(types.BlockCapacity))
	if !c.config.StagedCycle {
		c.removeIncluded(col.included)
		c.mu.Unlock()
	}
	if err != nil {
		return nil, c.abort(logger, StateCollecting, gatewayError("collect", err))
	}

	blk, err := BuildBlock(number, prev.Hash(), col.payloads)
	if err != nil {
		return nil, c.abort(logger, StateCollecting, err)
	}

	c.setState(StateSigning)
	sig, err := c.gateway.Sign(ctx, blk.Header().SigningPayload(), c.config.Operator)
	if err != nil {
		return nil, c.abort(logger, StateSigning, gatewayError("sign header", err))
	}
	if err := blk.Header().SetSignature(sig); err != nil {
		return nil, c.abort(logger, StateSigning, err)
	}

	c.setState(StateSubmitting)
	if err := c.gateway.SubmitHeader(ctx, blk.Header().Encode(true)); err != nil {
		return nil, c.abort(logger, StateSubmitting, gatewayError("submit header", err))
	}

	if err := c.persist(blk); err != nil {
		// the root chain already holds the header, so the block is kept
		logger.Error("failed to persist block", "err", err)
	}
	c.mu.Lock()
	if c.config.StagedCycle {
		c.ledger = work
		c.removeIncluded(col.included)
	}
	c.blocks = append(c.blocks, blk)
	c.state = StateAppended
	c.mu.Unlock()
	c.carryDeposits, c.carryWithdrawals = col.deferredDeposits, col.deferredWithdrawals
	metrics.SetCycleState(cycleStateNames, StateAppended.String())
	if c.journal != nil && len(col.included) > 0 {
		if err := c.journal.Rotate(c.pool.Pending()); err != nil {
			logger.Error("failed to rotate transfer journal", "err", err)
		}
	}

	metrics.BlocksAppended.Inc()
	metrics.BlockTransactions.Observe(float64(len(col.payloads)))
	for typ, n := range col.counts {
		metrics.TxsApplied.WithLabelValues(typ.String()).Add(float64(n))
	}
	c.updateGauges()
	logger.Info("block appended", "hash", blk.Hash().Hex(), "txs", len(col.payloads),
		"deposits", col.counts[types.TxDeposit], "withdrawals", col.counts[types.TxWithdraw],
		"transfers", col.counts[types.TxNormal], "merges", col.counts[types.TxMerge])
	c.setState(StateIdle)
	return blk, nil
}

// removeIncluded drops transfers placed in a block from the pool.
func (c *Chain) removeIncluded(hashes []common.Hash) {
	for _, h := range hashes {
		c.pool.Remove(h)
	}
}

func (c *Chain) abort(logger *log.Logger, stage CycleState, err error) error {
	metrics.CycleFailures.WithLabelValues(stage.String()).Inc()
	logger.Warn("block cycle aborted", "state", stage.String(), "staged", c.config.StagedCycle, "err", err)
	c.setState(StateIdle)
	c.updateGauges()
	return err
}
