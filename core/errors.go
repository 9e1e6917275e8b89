package core

import (
	"errors"

	"github.com/eth2030/plasma/core/ledger"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds for amount + fee")
	ErrBlockOverflow     = errors.New("block overflow: more than 256 transactions")
	ErrBlockNotFound     = errors.New("block not found")
	ErrInvalidChain      = errors.New("invalid chain: stored blocks do not link")

	// ErrUnknownAsset is returned when a transfer sender or input owns no
	// unspent output.
	ErrUnknownAsset = ledger.ErrUnknownAsset
	// ErrInvalidSignature is returned when an input signature does not
	// recover to the output owner.
	ErrInvalidSignature = ledger.ErrInvalidSignature
)
