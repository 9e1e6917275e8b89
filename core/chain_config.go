package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/txpool"
)

// DefaultFee is the fixed transfer fee: 0.01 ether in wei.
var DefaultFee = uint256.NewInt(10_000_000_000_000_000)

// ChainConfig holds the operator's chain-level settings.
type ChainConfig struct {
	// Operator signs every block header.
	Operator common.Address

	// Fee is charged on every transfer. Nil means DefaultFee.
	Fee *uint256.Int

	// StagedCycle collects a block against a copy of the ledger and commits
	// it only once the header was submitted. When unset, a cycle that fails
	// after collecting leaves its ledger and pool changes in place.
	StagedCycle bool

	// Pool configures the pending transfer pool.
	Pool txpool.Config

	// Journal is the file admitted transfers are recorded in so the pool
	// survives a restart. Empty disables journaling.
	Journal string
}

// DefaultChainConfig returns a configuration with the default fee and pool
// limits. The operator still has to be set.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		Fee:  DefaultFee.Clone(),
		Pool: txpool.DefaultConfig(),
	}
}

func (c *ChainConfig) fee() *uint256.Int {
	if c.Fee == nil {
		return DefaultFee
	}
	return c.Fee
}
