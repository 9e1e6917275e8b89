package types

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eth2030/plasma/crypto"
	"github.com/eth2030/plasma/merkle"
)

// BlockCapacity is the number of transaction slots in every block. It is a
// power of two so the transaction tree is a perfect binary tree of depth 8.
const BlockCapacity = 256

// SignatureLength is the size of an operator signature: R (32) || S (32) ||
// V (1).
const SignatureLength = crypto.SignatureLength

// GenesisPrevHash is the fixed previous-hash of the genesis block.
var GenesisPrevHash = common.HexToHash("46182d20ccd7006058f3e801a1ff3de78b740b557bba686ced70f8e3d8a009a6")

// Header is the part of a block submitted to the root chain.
type Header struct {
	Number     uint64
	PrevHash   common.Hash
	MerkleRoot []byte // empty for genesis, 32 bytes otherwise
	Sig        []byte // empty until signed, then R || S || V
}

// SigningPayload returns the header fields the operator signs:
// number (32-byte big-endian) || prevHash || merkleRoot.
func (h *Header) SigningPayload() []byte {
	return h.Encode(false)
}

// Encode serializes the header, appending the signature when includeSig is
// set.
func (h *Header) Encode(includeSig bool) []byte {
	out := make([]byte, 0, 64+len(h.MerkleRoot)+len(h.Sig))
	var num [32]byte
	binary.BigEndian.PutUint64(num[24:], h.Number)
	out = append(out, num[:]...)
	out = append(out, h.PrevHash[:]...)
	out = append(out, h.MerkleRoot...)
	if includeSig {
		out = append(out, h.Sig...)
	}
	return out
}

// SetSignature splits sig into R, S and V and attaches it. A recovery id
// below 27 is shifted by 27.
func (h *Header) SetSignature(sig []byte) error {
	if len(sig) != SignatureLength {
		return fmt.Errorf("%w: %v (%d bytes)", ErrStructural, ErrSignatureLength, len(sig))
	}
	s := common.CopyBytes(sig)
	if s[64] < 27 {
		s[64] += 27
	}
	h.Sig = s
	return nil
}

// DecodeHeader parses the output of Encode. Genesis headers carry no Merkle
// root, so the layout is told apart by length.
func DecodeHeader(b []byte) (*Header, error) {
	var rootLen, sigLen int
	switch len(b) {
	case 64:
	case 64 + SignatureLength:
		sigLen = SignatureLength
	case 96:
		rootLen = 32
	case 96 + SignatureLength:
		rootLen, sigLen = 32, SignatureLength
	default:
		return nil, fmt.Errorf("%w: header of %d bytes", ErrStructural, len(b))
	}
	for _, x := range b[:24] {
		if x != 0 {
			return nil, fmt.Errorf("%w: block number exceeds 64 bits", ErrStructural)
		}
	}
	h := &Header{
		Number:   binary.BigEndian.Uint64(b[24:32]),
		PrevHash: common.BytesToHash(b[32:64]),
	}
	if rootLen > 0 {
		h.MerkleRoot = common.CopyBytes(b[64 : 64+rootLen])
	}
	if sigLen > 0 {
		h.Sig = common.CopyBytes(b[64+rootLen:])
	}
	return h, nil
}

// R returns the signature's R component, or nil when unsigned.
func (h *Header) R() []byte { return h.sigPart(0, 32) }

// S returns the signature's S component, or nil when unsigned.
func (h *Header) S() []byte { return h.sigPart(32, 64) }

// V returns the signature's recovery id, or 0 when unsigned.
func (h *Header) V() byte {
	if len(h.Sig) != SignatureLength {
		return 0
	}
	return h.Sig[64]
}

func (h *Header) sigPart(from, to int) []byte {
	if len(h.Sig) != SignatureLength {
		return nil
	}
	return h.Sig[from:to]
}

// Copy returns a deep copy of h.
func (h *Header) Copy() *Header {
	return &Header{
		Number:     h.Number,
		PrevHash:   h.PrevHash,
		MerkleRoot: common.CopyBytes(h.MerkleRoot),
		Sig:        common.CopyBytes(h.Sig),
	}
}

// Block is a header plus its transaction slots. Once built by the block
// builder it always holds exactly BlockCapacity slots, unused ones empty.
type Block struct {
	header       *Header
	transactions [][]byte
	tree         *merkle.Tree
}

// NewBlock assembles a block. tree must be the built tree over transactions,
// or nil for the genesis block.
func NewBlock(header *Header, transactions [][]byte, tree *merkle.Tree) *Block {
	return &Block{header: header, transactions: transactions, tree: tree}
}

// Header returns the block header. It is shared with the block so that
// SetSignature on it signs the block.
func (b *Block) Header() *Header { return b.header }

// Number returns the block number.
func (b *Block) Number() uint64 { return b.header.Number }

// Transactions returns all transaction slots, including empty ones.
func (b *Block) Transactions() [][]byte { return b.transactions }

// Transaction returns slot i, or nil when out of range.
func (b *Block) Transaction(i int) []byte {
	if i < 0 || i >= len(b.transactions) {
		return nil
	}
	return b.transactions[i]
}

// TxCount returns the number of non-empty slots.
func (b *Block) TxCount() int {
	n := 0
	for _, tx := range b.transactions {
		if len(tx) > 0 {
			n++
		}
	}
	return n
}

// Tree returns the transaction Merkle tree, nil for genesis.
func (b *Block) Tree() *merkle.Tree { return b.tree }

// Hash links blocks: the SHA-256 of the signed header followed by every
// transaction slot in order.
func (b *Block) Hash() common.Hash {
	parts := make([][]byte, 0, 1+len(b.transactions))
	parts = append(parts, b.header.Encode(true))
	parts = append(parts, b.transactions...)
	return crypto.Sha256Hash(parts...)
}

// BlockView is the external rendering of a block. Byte fields marshal to
// 0x-prefixed hex.
type BlockView struct {
	BlockNumber  uint64          `json:"blockNumber"`
	PreviousHash common.Hash     `json:"previousHash"`
	MerkleRoot   hexutil.Bytes   `json:"merkleRoot"`
	Signature    hexutil.Bytes   `json:"signature"`
	Transactions []hexutil.Bytes `json:"transactions"`
}

// View renders the block with only its non-empty transactions.
func (b *Block) View() BlockView {
	v := BlockView{
		BlockNumber:  b.header.Number,
		PreviousHash: b.header.PrevHash,
		MerkleRoot:   common.CopyBytes(b.header.MerkleRoot),
		Signature:    common.CopyBytes(b.header.Sig),
		Transactions: make([]hexutil.Bytes, 0, b.TxCount()),
	}
	for _, tx := range b.transactions {
		if len(tx) > 0 {
			v.Transactions = append(v.Transactions, common.CopyBytes(tx))
		}
	}
	return v
}
