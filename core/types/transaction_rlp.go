package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// txRLP is the decoding layout. The unsigned encoding carries the first
// eleven fields: [blkNum1, txIndex1, oIndex1, blkNum2, txIndex2, oIndex2,
// newOwner1, denom1, newOwner2, denom2, fee]; the signed one appends
// [sig1, sig2].
type txRLP struct {
	BlkNum1   uint64
	TxIndex1  uint64
	OIndex1   uint64
	BlkNum2   uint64
	TxIndex2  uint64
	OIndex2   uint64
	NewOwner1 []byte
	Denom1    *uint256.Int
	NewOwner2 []byte
	Denom2    *uint256.Int
	Fee       *uint256.Int
	Sig1      []byte `rlp:"optional"`
	Sig2      []byte `rlp:"optional"`
}

func ownerBytes(a common.Address) []byte {
	if a == (common.Address{}) {
		return nil
	}
	return a.Bytes()
}

func amountOrZero(a *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	return a
}

// fields lists the encoded values in fixed order. Zero owners and absent
// signatures encode as empty strings, integers as minimal big-endian.
func (tx *Transaction) fields(includeSig bool) []interface{} {
	f := []interface{}{
		tx.Inputs[0].BlkNum, tx.Inputs[0].TxIndex, tx.Inputs[0].OIndex,
		tx.Inputs[1].BlkNum, tx.Inputs[1].TxIndex, tx.Inputs[1].OIndex,
		ownerBytes(tx.Outputs[0].Owner), amountOrZero(tx.Outputs[0].Amount),
		ownerBytes(tx.Outputs[1].Owner), amountOrZero(tx.Outputs[1].Amount),
		amountOrZero(tx.Fee),
	}
	if includeSig {
		f = append(f, tx.Inputs[0].Sig, tx.Inputs[1].Sig)
	}
	return f
}

// Encode returns the canonical RLP encoding. The unsigned form is the
// message owners sign; the signed form is the Merkle leaf and the wire and
// storage representation.
func (tx *Transaction) Encode(includeSig bool) ([]byte, error) {
	return rlp.EncodeToBytes(tx.fields(includeSig))
}

// DecodeTransaction parses either encoding and infers the type tag from the
// transaction shape.
func DecodeTransaction(b []byte) (*Transaction, error) {
	tx, err := decodeTransaction(b)
	if err != nil {
		return nil, err
	}
	tx.Type = tx.InferType()
	return tx, nil
}

// DecodeTransactionWithType parses either encoding and applies the given
// type tag after checking the shape fits it.
func DecodeTransactionWithType(b []byte, typ TxType) (*Transaction, error) {
	tx, err := decodeTransaction(b)
	if err != nil {
		return nil, err
	}
	tx.Type = typ
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

func decodeTransaction(b []byte) (*Transaction, error) {
	var dec txRLP
	if err := rlp.DecodeBytes(b, &dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructural, err)
	}
	owner1, err := decodeOwner(dec.NewOwner1)
	if err != nil {
		return nil, err
	}
	owner2, err := decodeOwner(dec.NewOwner2)
	if err != nil {
		return nil, err
	}
	for _, sig := range [][]byte{dec.Sig1, dec.Sig2} {
		if len(sig) != 0 && len(sig) != SignatureLength {
			return nil, fmt.Errorf("%w: signature of %d bytes", ErrStructural, len(sig))
		}
	}
	return &Transaction{
		Inputs: [2]Input{
			{BlkNum: dec.BlkNum1, TxIndex: dec.TxIndex1, OIndex: dec.OIndex1, Sig: dec.Sig1},
			{BlkNum: dec.BlkNum2, TxIndex: dec.TxIndex2, OIndex: dec.OIndex2, Sig: dec.Sig2},
		},
		Outputs: [2]Output{
			{Owner: owner1, Amount: amountOrZero(dec.Denom1)},
			{Owner: owner2, Amount: amountOrZero(dec.Denom2)},
		},
		Fee: amountOrZero(dec.Fee),
	}, nil
}

func decodeOwner(b []byte) (common.Address, error) {
	switch len(b) {
	case 0:
		return common.Address{}, nil
	case common.AddressLength:
		return common.BytesToAddress(b), nil
	default:
		return common.Address{}, fmt.Errorf("%w: owner of %d bytes", ErrStructural, len(b))
	}
}
