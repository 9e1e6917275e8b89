// Package ledger holds the authoritative unspent-output set of the child
// chain and applies transaction effects to it.
//
// The ledger keeps outputs in insertion order. Owner lookups scan linearly
// from the front so that merge and transfer input selection is stable and
// reproducible. There is no internal locking and no rollback: callers
// serialize mutations and only apply transactions that validated.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/core/types"
)

var (
	ErrUnknownAsset     = errors.New("ledger: input references no unspent output")
	ErrInvalidSignature = errors.New("ledger: invalid input signature")
	ErrValueMismatch    = errors.New("ledger: inputs do not equal outputs plus fee")
	ErrDuplicateInput   = errors.New("ledger: input spent twice")
)

// SignatureVerifier checks an owner signature over a message. Verification
// may involve I/O, so errors are distinct from a negative answer.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, msg, sig []byte, signer common.Address) (bool, error)
}

// Ledger is the ordered unspent-output set.
type Ledger struct {
	utxos []*types.UTXO
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Len returns the number of unspent outputs.
func (l *Ledger) Len() int { return len(l.utxos) }

// Get returns a copy of the output at position i.
func (l *Ledger) Get(i int) (*types.UTXO, bool) {
	if i < 0 || i >= len(l.utxos) {
		return nil, false
	}
	return l.utxos[i].Copy(), true
}

// List returns a copy of every unspent output in insertion order.
func (l *Ledger) List() []*types.UTXO {
	out := make([]*types.UTXO, len(l.utxos))
	for i, u := range l.utxos {
		out[i] = u.Copy()
	}
	return out
}

// Clone returns an independent copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	return &Ledger{utxos: l.List()}
}

// TotalValue sums every unspent amount.
func (l *Ledger) TotalValue() *uint256.Int {
	sum := new(uint256.Int)
	for _, u := range l.utxos {
		sum.Add(sum, u.Amount)
	}
	return sum
}

// BalanceOf sums the unspent amounts owned by owner.
func (l *Ledger) BalanceOf(owner common.Address) *uint256.Int {
	sum := new(uint256.Int)
	for _, u := range l.utxos {
		if u.Owner == owner {
			sum.Add(sum, u.Amount)
		}
	}
	return sum
}

// FindByOwner returns the position of the first output owned by owner at or
// after start.
func (l *Ledger) FindByOwner(owner common.Address, start int) (int, bool) {
	if start < 0 {
		start = 0
	}
	for i := start; i < len(l.utxos); i++ {
		if l.utxos[i].Owner == owner {
			return i, true
		}
	}
	return -1, false
}

// FindTwoByOwner returns the positions of the first two outputs owned by
// owner.
func (l *Ledger) FindTwoByOwner(owner common.Address) (int, int, bool) {
	first, ok := l.FindByOwner(owner, 0)
	if !ok {
		return -1, -1, false
	}
	second, ok := l.FindByOwner(owner, first+1)
	if !ok {
		return first, -1, false
	}
	return first, second, true
}

// FindByReference returns the position of the output with the given key.
func (l *Ledger) FindByReference(key types.UTXOKey) (int, bool) {
	for i, u := range l.utxos {
		if u.UTXOKey == key {
			return i, true
		}
	}
	return -1, false
}

// Spend removes the outputs referenced by the populated inputs of tx and
// returns them. Unused input slots and unknown references are skipped.
func (l *Ledger) Spend(tx *types.Transaction) []*types.UTXO {
	var spent []*types.UTXO
	for _, in := range tx.Inputs {
		if in.IsEmpty() {
			continue
		}
		i, ok := l.FindByReference(in.Key())
		if !ok {
			continue
		}
		spent = append(spent, l.utxos[i])
		l.utxos = append(l.utxos[:i], l.utxos[i+1:]...)
	}
	return spent
}

// Create appends one output per populated output slot of tx, keyed by
// (blockNumber, txIndex, slot).
func (l *Ledger) Create(blockNumber uint64, tx *types.Transaction, txIndex uint64) []*types.UTXO {
	var created []*types.UTXO
	for slot, out := range tx.Outputs {
		if out.IsEmpty() {
			continue
		}
		u := &types.UTXO{
			UTXOKey: types.UTXOKey{BlkNum: blockNumber, TxIndex: txIndex, OIndex: uint64(slot)},
			Owner:   out.Owner,
			Amount:  out.Amount.Clone(),
		}
		l.utxos = append(l.utxos, u)
		created = append(created, u.Copy())
	}
	return created
}

// Validate reports whether tx may be applied. Transfers must spend live
// outputs with valid owner signatures and balance exactly; deposits,
// withdrawals and merges only need a valid shape. An unknown input yields
// false rather than an error; errors are reserved for verifier failures.
func (l *Ledger) Validate(ctx context.Context, tx *types.Transaction, v SignatureVerifier) (bool, error) {
	err := l.CheckTransaction(ctx, tx, v)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, types.ErrStructural),
		errors.Is(err, ErrUnknownAsset),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrValueMismatch),
		errors.Is(err, ErrDuplicateInput):
		return false, nil
	default:
		return false, err
	}
}

// CheckTransaction is Validate with the reason for rejection.
func (l *Ledger) CheckTransaction(ctx context.Context, tx *types.Transaction, v SignatureVerifier) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.Type != types.TxNormal {
		return nil
	}
	if !tx.Inputs[1].IsEmpty() && tx.Inputs[0].Key() == tx.Inputs[1].Key() {
		return fmt.Errorf("%w: %s", ErrDuplicateInput, tx.Inputs[0].Key())
	}
	msg, err := tx.Encode(false)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStructural, err)
	}

	total := new(uint256.Int)
	for _, in := range tx.Inputs {
		if in.IsEmpty() {
			continue
		}
		i, ok := l.FindByReference(in.Key())
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAsset, in.Key())
		}
		u := l.utxos[i]
		valid, err := v.VerifySignature(ctx, msg, in.Sig, u.Owner)
		if err != nil {
			return err
		}
		if !valid {
			return fmt.Errorf("%w: %s owned by %s", ErrInvalidSignature, in.Key(), u.Owner.Hex())
		}
		if _, overflow := total.AddOverflow(total, u.Amount); overflow {
			return fmt.Errorf("%w: input sum overflows", types.ErrStructural)
		}
	}

	want, overflow := new(uint256.Int).AddOverflow(tx.OutputSum(), tx.FeeOrZero())
	if overflow {
		return fmt.Errorf("%w: output sum overflows", types.ErrStructural)
	}
	if !total.Eq(want) {
		return fmt.Errorf("%w: in %s, out+fee %s", ErrValueMismatch, total, want)
	}
	return nil
}
