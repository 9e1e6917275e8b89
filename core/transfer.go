package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/core/ledger"
	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/metrics"
	"github.com/eth2030/plasma/rootchain"
	"github.com/eth2030/plasma/txpool"
)

// TransferRequest asks the operator to move Amount wei from From to To.
type TransferRequest struct {
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// Transact builds, signs and validates a transfer from the first output
// owned by req.From, spends that output and pools the transfer. The fee is
// deducted from the remainder and any change returns to the sender.
func (c *Chain) Transact(ctx context.Context, req TransferRequest) (*types.Transaction, error) {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	tx, err := c.transact(ctx, req)
	if err != nil {
		metrics.TransfersRejected.WithLabelValues(rejectReason(err)).Inc()
		c.log.Info("transfer rejected", "from", req.From.Hex(), "to", req.To.Hex(), "err", err)
		return nil, err
	}
	metrics.TransfersAdmitted.Inc()
	c.updateGauges()
	return tx, nil
}

func (c *Chain) transact(ctx context.Context, req TransferRequest) (*types.Transaction, error) {
	if req.Amount == nil || req.Amount.IsZero() {
		return nil, fmt.Errorf("%w: transfer amount must be positive", types.ErrStructural)
	}
	if req.To == (common.Address{}) {
		return nil, fmt.Errorf("%w: missing recipient", types.ErrStructural)
	}

	c.mu.RLock()
	idx, ok := c.ledger.FindByOwner(req.From, 0)
	var utxo *types.UTXO
	if ok {
		utxo, _ = c.ledger.Get(idx)
	}
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no output owned by %s", ErrUnknownAsset, req.From.Hex())
	}

	fee := c.config.fee()
	need, overflow := new(uint256.Int).AddOverflow(req.Amount, fee)
	if overflow || utxo.Amount.Lt(need) {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, utxo.Amount, need)
	}
	change := new(uint256.Int).Sub(utxo.Amount, need)
	tx := types.NewTransferTx(utxo.UTXOKey, req.To, req.Amount, req.From, change, fee)

	msg, err := tx.Encode(false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStructural, err)
	}
	sig, err := c.gateway.Sign(ctx, msg, req.From)
	if err != nil {
		return nil, gatewayError("sign transfer", err)
	}
	tx.SetSignature(sig)

	c.mu.RLock()
	err = c.ledger.CheckTransaction(ctx, tx, c.gateway)
	c.mu.RUnlock()
	if err != nil {
		if isRejection(err) {
			return nil, err
		}
		return nil, gatewayError("verify signature", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	hash, err := c.pool.Add(tx)
	if err != nil {
		return nil, err
	}
	c.ledger.Spend(tx)
	if c.journal != nil {
		if err := c.journal.Insert(tx); err != nil {
			c.log.Error("failed to journal transfer", "hash", hash.Hex(), "err", err)
		}
	}
	c.log.Info("transfer admitted", "hash", hash.Hex(), "from", req.From.Hex(), "to", req.To.Hex(),
		"amount", req.Amount.Dec(), "input", utxo.UTXOKey.String())
	return tx, nil
}

// isRejection reports whether err is a validation outcome rather than an
// I/O failure.
func isRejection(err error) bool {
	return errors.Is(err, types.ErrStructural) ||
		errors.Is(err, ledger.ErrUnknownAsset) ||
		errors.Is(err, ledger.ErrInvalidSignature) ||
		errors.Is(err, ledger.ErrValueMismatch) ||
		errors.Is(err, ledger.ErrDuplicateInput)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, types.ErrStructural):
		return "structural"
	case errors.Is(err, rootchain.ErrGateway):
		return "gateway"
	case errors.Is(err, txpool.ErrTxPoolFull), errors.Is(err, txpool.ErrAlreadyKnown), errors.Is(err, txpool.ErrInputConflict):
		return "pool"
	default:
		return "other"
	}
}
