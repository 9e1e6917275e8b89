// Package merkle builds binary Keccak-256 hash trees over an ordered list of
// byte strings and produces direction-tagged inclusion proofs that the root
// chain contract replays.
//
// Leaves are hashed before assembly and internal nodes hash the
// concatenation of their left and right children. Odd trailing nodes are
// not carried up a level, so a usable tree needs a power-of-two leaf count.
package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/plasma/crypto"
)

// Direction tags prefixed to each sibling in a proof.
const (
	// DirRight marks the proven node as the right child; its sibling is on
	// the left.
	DirRight byte = 0x00
	// DirLeft marks the proven node as the left child; its sibling is on
	// the right.
	DirLeft byte = 0x01
)

// ProofNodeSize is the encoded size of one proof step.
const ProofNodeSize = 1 + common.HashLength

var (
	ErrEmpty         = errors.New("merkle: no leaves")
	ErrNotPowerOfTwo = errors.New("merkle: leaf count is not a power of two")
	ErrNotReady      = errors.New("merkle: tree not built")
	ErrProofRange    = errors.New("merkle: leaf index out of range")
	ErrProofSize     = errors.New("merkle: malformed proof encoding")
)

// ProofNode is one step of an inclusion proof.
type ProofNode struct {
	Direction byte
	Sibling   common.Hash
}

// Tree is a binary Merkle tree. levels[0] holds the hashed leaves and the
// last level holds the root once Build has run.
type Tree struct {
	leaves []common.Hash
	levels [][]common.Hash
	ready  bool
}

// New hashes every leaf with Keccak-256. The tree is not usable until Build
// is called.
func New(data [][]byte) *Tree {
	leaves := make([]common.Hash, len(data))
	for i, d := range data {
		leaves[i] = crypto.Keccak256Hash(d)
	}
	return &Tree{leaves: leaves}
}

// Build assembles the tree bottom-up.
func (t *Tree) Build() error {
	t.ready = false
	n := len(t.leaves)
	if n == 0 {
		return ErrEmpty
	}
	if n&(n-1) != 0 {
		return ErrNotPowerOfTwo
	}
	t.levels = [][]common.Hash{t.leaves}
	for len(t.levels[len(t.levels)-1]) > 1 {
		t.levels = append(t.levels, nextLevel(t.levels[len(t.levels)-1]))
	}
	t.ready = true
	return nil
}

func nextLevel(level []common.Hash) []common.Hash {
	out := make([]common.Hash, 0, len(level)/2)
	for i := 0; i+1 < len(level); i += 2 {
		out = append(out, hashPair(level[i], level[i+1]))
	}
	return out
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int { return len(t.leaves) }

// Leaf returns the hashed leaf at index i.
func (t *Tree) Leaf(i int) (common.Hash, error) {
	if i < 0 || i >= len(t.leaves) {
		return common.Hash{}, ErrProofRange
	}
	return t.leaves[i], nil
}

// Root returns the tree root.
func (t *Tree) Root() (common.Hash, error) {
	if !t.ready {
		return common.Hash{}, ErrNotReady
	}
	return t.levels[len(t.levels)-1][0], nil
}

// Proof returns the sibling path for leaf index, ordered from the leaf level
// up to just below the root. Its length is log2 of the leaf count.
func (t *Tree) Proof(index int) ([]ProofNode, error) {
	if !t.ready {
		return nil, ErrNotReady
	}
	if index < 0 || index >= len(t.leaves) {
		return nil, ErrProofRange
	}
	proof := make([]ProofNode, 0, len(t.levels)-1)
	for lvl := 0; lvl < len(t.levels)-1; lvl++ {
		if index%2 == 1 {
			proof = append(proof, ProofNode{Direction: DirRight, Sibling: t.levels[lvl][index-1]})
		} else {
			proof = append(proof, ProofNode{Direction: DirLeft, Sibling: t.levels[lvl][index+1]})
		}
		index /= 2
	}
	return proof, nil
}

// EncodeProof concatenates direction||sibling pairs in proof order.
func EncodeProof(proof []ProofNode) []byte {
	out := make([]byte, 0, len(proof)*ProofNodeSize)
	for _, p := range proof {
		out = append(out, p.Direction)
		out = append(out, p.Sibling[:]...)
	}
	return out
}

// DecodeProof is the inverse of EncodeProof.
func DecodeProof(b []byte) ([]ProofNode, error) {
	if len(b)%ProofNodeSize != 0 {
		return nil, ErrProofSize
	}
	proof := make([]ProofNode, 0, len(b)/ProofNodeSize)
	for i := 0; i < len(b); i += ProofNodeSize {
		if b[i] != DirRight && b[i] != DirLeft {
			return nil, ErrProofSize
		}
		proof = append(proof, ProofNode{
			Direction: b[i],
			Sibling:   common.BytesToHash(b[i+1 : i+ProofNodeSize]),
		})
	}
	return proof, nil
}

// VerifyProof replays proof from the raw leaf data and reports whether it
// reproduces root.
func VerifyProof(root common.Hash, leaf []byte, proof []ProofNode) bool {
	node := crypto.Keccak256Hash(leaf)
	for _, p := range proof {
		switch p.Direction {
		case DirRight:
			node = hashPair(p.Sibling, node)
		case DirLeft:
			node = hashPair(node, p.Sibling)
		default:
			return false
		}
	}
	return node == root
}

// ProofIndex recovers the leaf position a proof was generated for from its
// direction bytes.
func ProofIndex(proof []ProofNode) int {
	index := 0
	for level, p := range proof {
		if p.Direction == DirRight {
			index |= 1 << level
		}
	}
	return index
}
