// Package rootchain connects the operator to the root-chain contract that
// anchors the child chain: it reads deposit and withdrawal events, signs on
// behalf of unlocked accounts and submits block headers.
package rootchain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Gateway errors.
var (
	ErrGateway            = errors.New("rootchain: gateway failure")
	ErrUnknownAccount     = errors.New("rootchain: account not unlocked")
	ErrZeroDeposit        = errors.New("rootchain: deposit amount must be positive")
	ErrWithdrawalNotFound = errors.New("rootchain: withdrawal not found")
	ErrInvalidProof       = errors.New("rootchain: inclusion proof does not match header")
	ErrUnknownHeader      = errors.New("rootchain: no header submitted for block")
	ErrNotChallengeable   = errors.New("rootchain: transaction does not spend the exiting output")
	ErrMalformedHeader    = errors.New("rootchain: malformed header")
)

// DepositEvent records value locked in the contract for a child-chain
// owner. BlockNumber is the child-chain height at the time of the deposit,
// Counter its position in the contract's global deposit sequence.
type DepositEvent struct {
	From        common.Address
	Amount      *uint256.Int
	BlockNumber uint64
	Counter     uint64
}

// WithdrawalEvent records a completed exit of one child-chain output.
type WithdrawalEvent struct {
	BlockNumber     uint64
	ExitBlockNumber uint64
	ExitTxIndex     uint64
	ExitOIndex      uint64
}

// Gateway is the operator's view of the root chain. Every method may block
// on I/O.
type Gateway interface {
	// DepositEvents returns the deposits tagged with the given child-chain
	// block number, sorted by Counter.
	DepositEvents(ctx context.Context, blockNumber uint64) ([]DepositEvent, error)
	// WithdrawalEvents returns the exits completed while the child chain was
	// at the given block number.
	WithdrawalEvents(ctx context.Context, blockNumber uint64) ([]WithdrawalEvent, error)
	// Sign produces a 65-byte personal-message signature of msg by signer.
	Sign(ctx context.Context, msg []byte, signer common.Address) ([]byte, error)
	VerifySignature(ctx context.Context, msg, sig []byte, signer common.Address) (bool, error)
	// SubmitHeader publishes a signed block header to the contract.
	SubmitHeader(ctx context.Context, header []byte) error
}

// ExitRequest identifies an output together with the transaction that
// created it and its inclusion proof.
type ExitRequest struct {
	BlkNum   uint64
	TxIndex  uint64
	OIndex   uint64
	TargetTx []byte
	Proof    []byte
	From     common.Address
}

// Exits is the user-facing half of the contract: locking value and running
// the withdrawal game. The operator only relays these calls.
type Exits interface {
	Deposit(ctx context.Context, from common.Address, amount *uint256.Int) error
	StartWithdrawal(ctx context.Context, req ExitRequest) (uint64, error)
	ChallengeWithdrawal(ctx context.Context, withdrawalID uint64, req ExitRequest) error
	FinalizeWithdrawal(ctx context.Context, from common.Address) error
}

// Backend is a complete root-chain connection.
type Backend interface {
	Gateway
	Exits
}

var (
	_ Backend = (*Client)(nil)
	_ Backend = (*MemoryGateway)(nil)
)
