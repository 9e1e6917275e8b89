package rootchain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/crypto"
	"github.com/eth2030/plasma/log"
	"github.com/eth2030/plasma/merkle"
)

// Withdrawal status values.
const (
	StatusPending    = 0
	StatusChallenged = 1
	StatusFinalized  = 2
)

// Withdrawal is an exit tracked by MemoryGateway.
type Withdrawal struct {
	ID     uint64
	Key    types.UTXOKey
	Owner  common.Address
	Amount *uint256.Int
	Status int
}

// MemoryGateway simulates the root-chain contract in process. Headers must
// arrive in block order. Signing uses the keys held by the supplied
// KeyStore.
type MemoryGateway struct {
	keys     *crypto.KeyStore
	operator common.Address
	log      *log.Logger

	mu          sync.Mutex
	headers     map[uint64]*types.Header
	height      uint64
	depositSeq  uint64
	deposits    []DepositEvent
	withdrawSeq uint64
	withdrawals map[uint64]*Withdrawal
	completed   []WithdrawalEvent
}

// NewMemoryGateway creates a simulated contract that accepts headers signed
// by operator.
func NewMemoryGateway(keys *crypto.KeyStore, operator common.Address) *MemoryGateway {
	return &MemoryGateway{
		keys:        keys,
		operator:    operator,
		log:         log.Default().Module("rootchain"),
		headers:     make(map[uint64]*types.Header),
		withdrawals: make(map[uint64]*Withdrawal),
	}
}

// Height returns the number of the last submitted header.
func (g *MemoryGateway) Height() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.height
}

// Header returns the submitted header for a block number.
func (g *MemoryGateway) Header(number uint64) (*types.Header, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.headers[number]
	if !ok {
		return nil, false
	}
	return h.Copy(), true
}

// Withdrawal returns a tracked exit.
func (g *MemoryGateway) Withdrawal(id uint64) (Withdrawal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.withdrawals[id]
	if !ok {
		return Withdrawal{}, false
	}
	return *w, true
}

// DepositEvents implements Gateway.
func (g *MemoryGateway) DepositEvents(ctx context.Context, blockNumber uint64) ([]DepositEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []DepositEvent
	for _, d := range g.deposits {
		if d.BlockNumber == blockNumber {
			d.Amount = d.Amount.Clone()
			out = append(out, d)
		}
	}
	return out, nil
}

// WithdrawalEvents implements Gateway.
func (g *MemoryGateway) WithdrawalEvents(ctx context.Context, blockNumber uint64) ([]WithdrawalEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []WithdrawalEvent
	for _, w := range g.completed {
		if w.BlockNumber == blockNumber {
			out = append(out, w)
		}
	}
	return out, nil
}

// Sign implements Gateway.
func (g *MemoryGateway) Sign(ctx context.Context, msg []byte, signer common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := g.keys.Sign(msg, signer)
	if errors.Is(err, crypto.ErrUnknownAccount) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, signer.Hex())
	}
	return sig, err
}

// VerifySignature implements Gateway.
func (g *MemoryGateway) VerifySignature(ctx context.Context, msg, sig []byte, signer common.Address) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return crypto.VerifySigner(msg, sig, signer), nil
}

// SubmitHeader implements Gateway. The header must be signed by the
// operator and extend the last submitted one.
func (g *MemoryGateway) SubmitHeader(ctx context.Context, header []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := types.DecodeHeader(header)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}
	if len(h.Sig) == 0 {
		return fmt.Errorf("%w: unsigned", ErrMalformedHeader)
	}
	if !crypto.VerifySigner(h.SigningPayload(), h.Sig, g.operator) {
		return fmt.Errorf("%w: not signed by operator %s", ErrMalformedHeader, g.operator.Hex())
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if h.Number != g.height+1 {
		return fmt.Errorf("%w: block %d does not follow %d", ErrMalformedHeader, h.Number, g.height)
	}
	g.headers[h.Number] = h
	g.height = h.Number
	g.log.Debug("header submitted", "number", h.Number)
	return nil
}

// Restore seeds the header list from a chain appended in an earlier run, so
// that submissions continue after its head. headers must run from block 1
// without gaps; a genesis header is ignored. Restore fails once headers
// have been submitted.
func (g *MemoryGateway) Restore(headers []*types.Header) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.height != 0 {
		return fmt.Errorf("%w: restore over height %d", ErrMalformedHeader, g.height)
	}
	var height uint64
	restored := make(map[uint64]*types.Header, len(headers))
	for _, h := range headers {
		if h.Number == 0 {
			continue
		}
		if h.Number != height+1 {
			return fmt.Errorf("%w: block %d does not follow %d", ErrMalformedHeader, h.Number, height)
		}
		restored[h.Number] = h.Copy()
		height = h.Number
	}
	g.headers = restored
	g.height = height
	g.log.Info("restored headers", "height", height)
	return nil
}

// Deposit implements Exits. The event is tagged with the current height.
func (g *MemoryGateway) Deposit(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroDeposit
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depositSeq++
	g.deposits = append(g.deposits, DepositEvent{
		From:        from,
		Amount:      amount.Clone(),
		BlockNumber: g.height,
		Counter:     g.depositSeq,
	})
	g.log.Debug("deposit", "from", from.Hex(), "amount", amount.Dec(), "ctr", g.depositSeq)
	return nil
}

// StartWithdrawal implements Exits. The target transaction must be included
// in the submitted header at the claimed position and pay the exiting
// output to req.From.
func (g *MemoryGateway) StartWithdrawal(ctx context.Context, req ExitRequest) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	tx, err := g.checkInclusion(req)
	if err != nil {
		return 0, err
	}
	if req.OIndex > 1 {
		return 0, fmt.Errorf("%w: output index %d", types.ErrStructural, req.OIndex)
	}
	out := tx.Outputs[req.OIndex]
	if out.IsEmpty() || out.Owner != req.From {
		return 0, fmt.Errorf("%w: output %d not owned by %s", ErrInvalidProof, req.OIndex, req.From.Hex())
	}

	g.withdrawSeq++
	g.withdrawals[g.withdrawSeq] = &Withdrawal{
		ID:     g.withdrawSeq,
		Key:    types.UTXOKey{BlkNum: req.BlkNum, TxIndex: req.TxIndex, OIndex: req.OIndex},
		Owner:  out.Owner,
		Amount: out.Amount.Clone(),
		Status: StatusPending,
	}
	g.log.Info("withdrawal started", "id", g.withdrawSeq, "blkNum", req.BlkNum, "txIndex", req.TxIndex, "oIndex", req.OIndex)
	return g.withdrawSeq, nil
}

// ChallengeWithdrawal implements Exits. A challenge succeeds when the
// included target transaction spends the exiting output.
func (g *MemoryGateway) ChallengeWithdrawal(ctx context.Context, withdrawalID uint64, req ExitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.withdrawals[withdrawalID]
	if !ok || w.Status != StatusPending {
		return fmt.Errorf("%w: %d", ErrWithdrawalNotFound, withdrawalID)
	}
	tx, err := g.checkInclusion(req)
	if err != nil {
		return err
	}
	spends := false
	for _, in := range tx.Inputs {
		if !in.IsEmpty() && in.Key() == w.Key {
			spends = true
		}
	}
	if !spends {
		return fmt.Errorf("%w: %s", ErrNotChallengeable, w.Key)
	}
	w.Status = StatusChallenged
	g.log.Info("withdrawal challenged", "id", withdrawalID)
	return nil
}

// FinalizeWithdrawal implements Exits. Every pending exit completes and is
// reported under the current height.
func (g *MemoryGateway) FinalizeWithdrawal(ctx context.Context, from common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for id := uint64(1); id <= g.withdrawSeq; id++ {
		w, ok := g.withdrawals[id]
		if !ok || w.Status != StatusPending {
			continue
		}
		w.Status = StatusFinalized
		g.completed = append(g.completed, WithdrawalEvent{
			BlockNumber:     g.height,
			ExitBlockNumber: w.Key.BlkNum,
			ExitTxIndex:     w.Key.TxIndex,
			ExitOIndex:      w.Key.OIndex,
		})
		g.log.Info("withdrawal finalized", "id", id, "by", from.Hex())
	}
	return nil
}

// checkInclusion verifies req's proof against the stored header and
// returns the decoded target transaction. Callers hold g.mu.
func (g *MemoryGateway) checkInclusion(req ExitRequest) (*types.Transaction, error) {
	h, ok := g.headers[req.BlkNum]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHeader, req.BlkNum)
	}
	proof, err := merkle.DecodeProof(req.Proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if uint64(merkle.ProofIndex(proof)) != req.TxIndex {
		return nil, fmt.Errorf("%w: proof is for another position", ErrInvalidProof)
	}
	if !merkle.VerifyProof(common.BytesToHash(h.MerkleRoot), req.TargetTx, proof) {
		return nil, ErrInvalidProof
	}
	tx, err := types.DecodeTransaction(req.TargetTx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
