package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/merkle"
)

// BuildBlock assembles an unsigned block from the encoded transactions
// collected for it. The payload list is padded with empty slots to
// BlockCapacity and the Merkle tree is built over every slot. Block zero has
// neither a tree nor a root.
func BuildBlock(number uint64, prevHash common.Hash, payloads [][]byte) (*types.Block, error) {
	if len(payloads) > types.BlockCapacity {
		return nil, fmt.Errorf("%w: %d payloads", ErrBlockOverflow, len(payloads))
	}
	slots := make([][]byte, types.BlockCapacity)
	copy(slots, payloads)

	header := &types.Header{Number: number, PrevHash: prevHash}
	if number == 0 {
		return types.NewBlock(header, slots, nil), nil
	}

	tree := merkle.New(slots)
	if err := tree.Build(); err != nil {
		return nil, err
	}
	root, err := tree.Root()
	if err != nil {
		return nil, err
	}
	header.MerkleRoot = root.Bytes()
	return types.NewBlock(header, slots, tree), nil
}

// GenesisBlock returns the fixed first block of every child chain.
func GenesisBlock() *types.Block {
	blk, _ := BuildBlock(0, types.GenesisPrevHash, nil)
	return blk
}
