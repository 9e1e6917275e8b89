package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// UTXOKey identifies an output by its position in the chain.
type UTXOKey struct {
	BlkNum  uint64
	TxIndex uint64
	OIndex  uint64
}

// String implements fmt.Stringer.
func (k UTXOKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.BlkNum, k.TxIndex, k.OIndex)
}

// UTXO is an unspent output.
type UTXO struct {
	UTXOKey
	Owner  common.Address
	Amount *uint256.Int
}

// Copy returns a deep copy of u.
func (u *UTXO) Copy() *UTXO {
	return &UTXO{UTXOKey: u.UTXOKey, Owner: u.Owner, Amount: u.Amount.Clone()}
}
