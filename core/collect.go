package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/plasma/core/ledger"
	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/log"
	"github.com/eth2030/plasma/metrics"
	"github.com/eth2030/plasma/rootchain"
)

// collector gathers the transactions of one block and applies their effects
// to a ledger as it goes.
type collector struct {
	ctx      context.Context
	ledger   *ledger.Ledger
	verifier ledger.SignatureVerifier
	number   uint64
	log      *log.Logger

	payloads [][]byte
	included []common.Hash // pooled transfers placed in the block
	counts   map[types.TxType]int

	// root-chain events that did not fit, carried to the next block
	deferredDeposits    []rootchain.DepositEvent
	deferredWithdrawals []rootchain.WithdrawalEvent
}

func newCollector(ctx context.Context, l *ledger.Ledger, v ledger.SignatureVerifier, number uint64, logger *log.Logger) *collector {
	return &collector{
		ctx:      ctx,
		ledger:   l,
		verifier: v,
		number:   number,
		log:      logger,
		counts:   make(map[types.TxType]int),
	}
}

func (c *collector) full() bool { return len(c.payloads) >= types.BlockCapacity }

// collect fills the block: deposits first, each followed by one merge for
// the depositor, then withdrawals, then pooled transfers in admission order,
// each followed by one merge attempt per populated output. Events that find
// the block full are deferred; transfers stay pooled.
func (c *collector) collect(deposits []rootchain.DepositEvent, withdrawals []rootchain.WithdrawalEvent, pending []*types.Transaction) error {
	for i, ev := range deposits {
		if c.full() {
			c.deferredDeposits = deposits[i:]
			metrics.TxsDeferred.WithLabelValues(types.TxDeposit.String()).Add(float64(len(deposits) - i))
			c.log.Warn("block full, deposits deferred", "count", len(deposits)-i, "firstCtr", ev.Counter)
			break
		}
		if ev.Amount == nil {
			c.skip(types.TxDeposit, "missing amount")
			continue
		}
		applied, err := c.apply(types.NewDepositTx(ev.From, ev.Amount))
		if err != nil {
			return err
		}
		if applied {
			if err := c.tryMerge(ev.From); err != nil {
				return err
			}
		}
	}

	for i, ev := range withdrawals {
		if c.full() {
			c.deferredWithdrawals = withdrawals[i:]
			metrics.TxsDeferred.WithLabelValues(types.TxWithdraw.String()).Add(float64(len(withdrawals) - i))
			c.log.Warn("block full, withdrawals deferred", "count", len(withdrawals)-i, "firstBlkNum", ev.ExitBlockNumber)
			break
		}
		key := types.UTXOKey{BlkNum: ev.ExitBlockNumber, TxIndex: ev.ExitTxIndex, OIndex: ev.ExitOIndex}
		if _, ok := c.ledger.FindByReference(key); !ok {
			c.log.Warn("withdrawal of unknown output", "utxo", key.String())
		}
		if _, err := c.apply(types.NewWithdrawTx(key)); err != nil {
			return err
		}
	}

	for _, tx := range pending {
		if c.full() {
			break
		}
		enc, err := tx.Encode(true)
		if err != nil {
			c.skip(tx.Type, err.Error())
			continue
		}
		hash, err := tx.Hash()
		if err != nil {
			c.skip(tx.Type, err.Error())
			continue
		}
		// inputs were spent when the transfer was admitted
		c.ledger.Create(c.number, tx, uint64(len(c.payloads)))
		c.payloads = append(c.payloads, enc)
		c.included = append(c.included, hash)
		c.counts[tx.Type]++

		// a self-transfer gets two attempts, one per output
		for _, out := range tx.Outputs {
			if out.IsEmpty() {
				continue
			}
			if err := c.tryMerge(out.Owner); err != nil {
				return err
			}
		}
	}
	return nil
}

// apply validates tx against the ledger and, when valid, spends its inputs,
// creates its outputs and appends it to the block.
func (c *collector) apply(tx *types.Transaction) (bool, error) {
	if c.full() {
		return false, nil
	}
	ok, err := c.ledger.Validate(c.ctx, tx, c.verifier)
	if err != nil {
		return false, err
	}
	if !ok {
		c.skip(tx.Type, "failed validation")
		return false, nil
	}
	enc, err := tx.Encode(true)
	if err != nil {
		c.skip(tx.Type, err.Error())
		return false, nil
	}
	c.ledger.Spend(tx)
	c.ledger.Create(c.number, tx, uint64(len(c.payloads)))
	c.payloads = append(c.payloads, enc)
	c.counts[tx.Type]++
	return true, nil
}

// tryMerge combines the owner's two lowest-positioned outputs, once.
func (c *collector) tryMerge(owner common.Address) error {
	i, j, ok := c.ledger.FindTwoByOwner(owner)
	if !ok {
		return nil
	}
	a, _ := c.ledger.Get(i)
	b, _ := c.ledger.Get(j)
	_, err := c.apply(types.NewMergeTx(a, b))
	return err
}

func (c *collector) skip(typ types.TxType, reason string) {
	metrics.TxsSkipped.WithLabelValues(typ.String()).Inc()
	c.log.Warn("transaction skipped", "type", typ.String(), "reason", reason)
}
