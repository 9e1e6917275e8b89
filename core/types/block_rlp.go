package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// storedBlockRLP is the storage layout of a block.
// Fields: [number, prevHash, merkleRoot, sig, [tx_0 ... tx_255]]
type storedBlockRLP struct {
	Number       uint64
	PrevHash     common.Hash
	MerkleRoot   []byte
	Sig          []byte
	Transactions [][]byte
}

// EncodeBlock serializes a block for the block store. The Merkle tree is not
// stored; it is rebuilt from the transactions on load.
func EncodeBlock(b *Block) ([]byte, error) {
	h := b.Header()
	return rlp.EncodeToBytes(&storedBlockRLP{
		Number:       h.Number,
		PrevHash:     h.PrevHash,
		MerkleRoot:   h.MerkleRoot,
		Sig:          h.Sig,
		Transactions: b.Transactions(),
	})
}

// DecodeBlock parses a stored block into its header and transaction slots.
func DecodeBlock(data []byte) (*Header, [][]byte, error) {
	var dec storedBlockRLP
	if err := rlp.DecodeBytes(data, &dec); err != nil {
		return nil, nil, fmt.Errorf("%w: block: %v", ErrStructural, err)
	}
	if len(dec.Transactions) > BlockCapacity {
		return nil, nil, fmt.Errorf("%w: %d slots", ErrBlockCapacity, len(dec.Transactions))
	}
	if len(dec.Sig) != 0 && len(dec.Sig) != SignatureLength {
		return nil, nil, fmt.Errorf("%w: %v", ErrStructural, ErrSignatureLength)
	}
	h := &Header{
		Number:     dec.Number,
		PrevHash:   dec.PrevHash,
		MerkleRoot: dec.MerkleRoot,
		Sig:        dec.Sig,
	}
	return h, dec.Transactions, nil
}
