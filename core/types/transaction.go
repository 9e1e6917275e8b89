// Package types defines the child-chain data structures: transactions,
// unspent outputs, block headers and blocks, together with their canonical
// binary encodings.
package types

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/crypto"
)

// TxType tags the four kinds of child-chain transaction.
type TxType uint8

const (
	TxNormal TxType = iota
	TxDeposit
	TxWithdraw
	TxMerge
)

// String implements fmt.Stringer.
func (t TxType) String() string {
	switch t {
	case TxNormal:
		return "normal"
	case TxDeposit:
		return "deposit"
	case TxWithdraw:
		return "withdraw"
	case TxMerge:
		return "merge"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Input references a previous output. A zero BlkNum marks the slot unused.
type Input struct {
	BlkNum  uint64
	TxIndex uint64
	OIndex  uint64
	Sig     []byte
}

// IsEmpty reports whether the input slot is unused.
func (in Input) IsEmpty() bool { return in.BlkNum == 0 }

// Key returns the UTXO key the input spends.
func (in Input) Key() UTXOKey {
	return UTXOKey{BlkNum: in.BlkNum, TxIndex: in.TxIndex, OIndex: in.OIndex}
}

// Output assigns an amount to an owner. A zero owner or zero amount marks
// the slot unused.
type Output struct {
	Owner  common.Address
	Amount *uint256.Int
}

// IsEmpty reports whether the output slot produces no UTXO.
func (o Output) IsEmpty() bool {
	return o.Owner == (common.Address{}) || o.Amount == nil || o.Amount.IsZero()
}

// Transaction is the fixed-shape child-chain transaction: two inputs, two
// outputs, a fee and a type tag. The tag is carried next to the encoding
// and is not part of it.
type Transaction struct {
	Inputs  [2]Input
	Outputs [2]Output
	Fee     *uint256.Int
	Type    TxType
}

// NewDepositTx credits amount to owner out of a root-chain deposit.
func NewDepositTx(owner common.Address, amount *uint256.Int) *Transaction {
	return &Transaction{
		Outputs: [2]Output{{Owner: owner, Amount: amount.Clone()}},
		Type:    TxDeposit,
	}
}

// NewWithdrawTx consumes the output that exited to the root chain.
func NewWithdrawTx(key UTXOKey) *Transaction {
	return &Transaction{
		Inputs: [2]Input{{BlkNum: key.BlkNum, TxIndex: key.TxIndex, OIndex: key.OIndex}},
		Type:   TxWithdraw,
	}
}

// NewMergeTx combines two outputs of the same owner into one.
func NewMergeTx(a, b *UTXO) *Transaction {
	sum := new(uint256.Int).Add(a.Amount, b.Amount)
	return &Transaction{
		Inputs: [2]Input{
			{BlkNum: a.BlkNum, TxIndex: a.TxIndex, OIndex: a.OIndex},
			{BlkNum: b.BlkNum, TxIndex: b.TxIndex, OIndex: b.OIndex},
		},
		Outputs: [2]Output{{Owner: a.Owner, Amount: sum}},
		Type:    TxMerge,
	}
}

// NewTransferTx spends in, pays amount to to and returns change to
// changeOwner. A zero change leaves the second output empty.
func NewTransferTx(in UTXOKey, to common.Address, amount *uint256.Int, changeOwner common.Address, change, fee *uint256.Int) *Transaction {
	tx := &Transaction{
		Inputs:  [2]Input{{BlkNum: in.BlkNum, TxIndex: in.TxIndex, OIndex: in.OIndex}},
		Outputs: [2]Output{{Owner: to, Amount: amount.Clone()}},
		Fee:     fee.Clone(),
		Type:    TxNormal,
	}
	if change != nil && !change.IsZero() {
		tx.Outputs[1] = Output{Owner: changeOwner, Amount: change.Clone()}
	}
	return tx
}

// SetSignature attaches the owner signature to the first input, and to the
// second one when it is populated.
func (tx *Transaction) SetSignature(sig []byte) {
	tx.Inputs[0].Sig = common.CopyBytes(sig)
	if !tx.Inputs[1].IsEmpty() {
		tx.Inputs[1].Sig = common.CopyBytes(sig)
	}
}

// FeeOrZero returns the fee, treating nil as zero.
func (tx *Transaction) FeeOrZero() *uint256.Int {
	if tx.Fee == nil {
		return new(uint256.Int)
	}
	return tx.Fee
}

// OutputSum returns the total of populated output amounts.
func (tx *Transaction) OutputSum() *uint256.Int {
	sum := new(uint256.Int)
	for _, out := range tx.Outputs {
		if !out.IsEmpty() {
			sum.Add(sum, out.Amount)
		}
	}
	return sum
}

// Hex returns the lowercase, unprefixed hex of the canonical encoding.
func (tx *Transaction) Hex(includeSig bool) (string, error) {
	b, err := tx.Encode(includeSig)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Hash is the Keccak-256 of the signed encoding. It identifies a transaction
// in the pool.
func (tx *Transaction) Hash() (common.Hash, error) {
	b, err := tx.Encode(true)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(b), nil
}

// Copy returns a deep copy of tx.
func (tx *Transaction) Copy() *Transaction {
	cpy := *tx
	for i := range cpy.Inputs {
		cpy.Inputs[i].Sig = common.CopyBytes(tx.Inputs[i].Sig)
	}
	for i := range cpy.Outputs {
		if tx.Outputs[i].Amount != nil {
			cpy.Outputs[i].Amount = tx.Outputs[i].Amount.Clone()
		}
	}
	if tx.Fee != nil {
		cpy.Fee = tx.Fee.Clone()
	}
	return &cpy
}

// Validate checks the transaction shape for its type.
func (tx *Transaction) Validate() error {
	in0, in1 := !tx.Inputs[0].IsEmpty(), !tx.Inputs[1].IsEmpty()
	out0, out1 := !tx.Outputs[0].IsEmpty(), !tx.Outputs[1].IsEmpty()
	feeZero := tx.Fee == nil || tx.Fee.IsZero()

	for i, in := range tx.Inputs {
		if in.OIndex > 1 {
			return fmt.Errorf("%w: input %d output index %d", ErrStructural, i, in.OIndex)
		}
		if in.IsEmpty() && (in.TxIndex != 0 || in.OIndex != 0) {
			return fmt.Errorf("%w: input %d has position but no block", ErrStructural, i)
		}
	}
	switch tx.Type {
	case TxNormal:
		if !in0 {
			return fmt.Errorf("%w: transfer without input", ErrStructural)
		}
		if !out0 && !out1 {
			return fmt.Errorf("%w: transfer without output", ErrStructural)
		}
	case TxDeposit:
		if in0 || in1 || !out0 || out1 || !feeZero {
			return fmt.Errorf("%w: deposit needs exactly one output and no inputs", ErrStructural)
		}
	case TxWithdraw:
		if !in0 || in1 || out0 || out1 || !feeZero {
			return fmt.Errorf("%w: withdrawal needs exactly one input and no outputs", ErrStructural)
		}
	case TxMerge:
		if !in0 || !in1 || !out0 || out1 || !feeZero {
			return fmt.Errorf("%w: merge needs two inputs and one output", ErrStructural)
		}
		if tx.Inputs[0].Key() == tx.Inputs[1].Key() {
			return fmt.Errorf("%w: merge of an output with itself", ErrStructural)
		}
	default:
		return fmt.Errorf("%w: unknown type %d", ErrStructural, tx.Type)
	}
	return nil
}

// InferType derives the type tag from the transaction shape. Only transfers
// carry signatures, which disambiguates a signed two-input transfer from a
// merge.
func (tx *Transaction) InferType() TxType {
	in0, in1 := !tx.Inputs[0].IsEmpty(), !tx.Inputs[1].IsEmpty()
	out0, out1 := !tx.Outputs[0].IsEmpty(), !tx.Outputs[1].IsEmpty()
	signed := len(tx.Inputs[0].Sig) > 0
	feeZero := tx.Fee == nil || tx.Fee.IsZero()

	switch {
	case !in0 && !in1 && out0 && !out1:
		return TxDeposit
	case in0 && !in1 && !out0 && !out1 && !signed:
		return TxWithdraw
	case in0 && in1 && out0 && !out1 && !signed && feeZero:
		return TxMerge
	default:
		return TxNormal
	}
}
