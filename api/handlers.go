package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"

	"github.com/eth2030/plasma/core"
	"github.com/eth2030/plasma/core/ledger"
	"github.com/eth2030/plasma/core/types"
	"github.com/eth2030/plasma/merkle"
	"github.com/eth2030/plasma/rootchain"
	"github.com/eth2030/plasma/txpool"
)

// TransactRequest is the body of RouteTransact. Amount is in ether.
type TransactRequest struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount json.Number    `json:"amount"`
}

// TransactResponse carries the admitted transfer.
type TransactResponse struct {
	Hash common.Hash   `json:"hash"`
	Tx   hexutil.Bytes `json:"tx"`
}

// DepositRequest is the body of RouteDeposit. Amount is in ether.
type DepositRequest struct {
	Address common.Address `json:"address"`
	Amount  json.Number    `json:"amount"`
}

// WithdrawRequest is the body of the withdrawal routes. WithdrawalID is only
// read by RouteWithdrawChallenge and only From by RouteWithdrawFinalize.
type WithdrawRequest struct {
	WithdrawalID uint64         `json:"withdrawalId"`
	BlkNum       uint64         `json:"blkNum"`
	TxIndex      uint64         `json:"txIndex"`
	OIndex       uint64         `json:"oIndex"`
	From         common.Address `json:"from"`
}

// WithdrawResponse carries the id of a started exit.
type WithdrawResponse struct {
	WithdrawalID uint64 `json:"withdrawalId"`
}

// ProofResponse is an inclusion proof with 0x-prefixed fields.
type ProofResponse struct {
	Root  common.Hash   `json:"root"`
	Tx    hexutil.Bytes `json:"tx"`
	Proof hexutil.Bytes `json:"proof"`
}

// UTXOResponse is one unspent output. Denom is a decimal wei string.
type UTXOResponse struct {
	BlkNum  uint64         `json:"blkNum"`
	TxIndex uint64         `json:"txIndex"`
	OIndex  uint64         `json:"oIndex"`
	Owner   common.Address `json:"owner"`
	Denom   string         `json:"denom"`
}

// PoolTxResponse is one pending transfer.
type PoolTxResponse struct {
	Hash common.Hash   `json:"hash"`
	Type string        `json:"type"`
	Tx   hexutil.Bytes `json:"tx"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) getBlocks(c echo.Context) error {
	blocks := s.chain.Blocks()
	views := make([]types.BlockView, len(blocks))
	for i, b := range blocks {
		views[i] = b.View()
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) mineBlock(c echo.Context) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	blk, err := s.chain.GenerateNextBlock(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, blk.View())
}

func (s *Server) transact(c echo.Context) error {
	var req TransactRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	amount, err := types.EtherToWei(req.Amount.String())
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	tx, err := s.chain.Transact(ctx, core.TransferRequest{From: req.From, To: req.To, Amount: amount})
	if err != nil {
		return err
	}
	enc, err := tx.Encode(true)
	if err != nil {
		return err
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TransactResponse{Hash: hash, Tx: enc})
}

func (s *Server) deposit(c echo.Context) error {
	if s.exits == nil {
		return echo.ErrNotImplemented
	}
	var req DepositRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	amount, err := types.EtherToWei(req.Amount.String())
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.exits.Deposit(ctx, req.Address, amount); err != nil {
		return exitError("deposit", err)
	}
	s.log.Info("deposit sent", "from", req.Address.Hex(), "amount", amount.Dec())
	return c.NoContent(http.StatusOK)
}

func (s *Server) getProof(c echo.Context) error {
	blkNum, err := strconv.ParseUint(c.Param(ParameterBlkNum), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid block number %q", c.Param(ParameterBlkNum)))
	}
	txIndex, err := strconv.Atoi(c.Param(ParameterTxIndex))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid tx index %q", c.Param(ParameterTxIndex)))
	}
	p, err := s.chain.Proof(blkNum, txIndex)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ProofResponse{Root: p.Root, Tx: p.Tx, Proof: p.Proof})
}

// exitRequest attaches the operator's proof for the referenced slot.
func (s *Server) exitRequest(req WithdrawRequest) (rootchain.ExitRequest, error) {
	if req.TxIndex >= types.BlockCapacity {
		return rootchain.ExitRequest{}, fmt.Errorf("tx index %d: %w", req.TxIndex, merkle.ErrProofRange)
	}
	p, err := s.chain.Proof(req.BlkNum, int(req.TxIndex))
	if err != nil {
		return rootchain.ExitRequest{}, err
	}
	return rootchain.ExitRequest{
		BlkNum:   req.BlkNum,
		TxIndex:  req.TxIndex,
		OIndex:   req.OIndex,
		TargetTx: p.Tx,
		Proof:    p.Proof,
		From:     req.From,
	}, nil
}

func (s *Server) withdrawCreate(c echo.Context) error {
	if s.exits == nil {
		return echo.ErrNotImplemented
	}
	var req WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	exit, err := s.exitRequest(req)
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	id, err := s.exits.StartWithdrawal(ctx, exit)
	if err != nil {
		return exitError("start withdrawal", err)
	}
	return c.JSON(http.StatusOK, WithdrawResponse{WithdrawalID: id})
}

func (s *Server) withdrawChallenge(c echo.Context) error {
	if s.exits == nil {
		return echo.ErrNotImplemented
	}
	var req WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	exit, err := s.exitRequest(req)
	if err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.exits.ChallengeWithdrawal(ctx, req.WithdrawalID, exit); err != nil {
		return exitError("challenge withdrawal", err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) withdrawFinalize(c echo.Context) error {
	if s.exits == nil {
		return echo.ErrNotImplemented
	}
	var req WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	if err := s.exits.FinalizeWithdrawal(ctx, req.From); err != nil {
		return exitError("finalize withdrawal", err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) getUTXOs(c echo.Context) error {
	utxos := s.chain.UTXOs()
	out := make([]UTXOResponse, len(utxos))
	for i, u := range utxos {
		out[i] = UTXOResponse{
			BlkNum:  u.BlkNum,
			TxIndex: u.TxIndex,
			OIndex:  u.OIndex,
			Owner:   u.Owner,
			Denom:   amountString(u.Amount),
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getPool(c echo.Context) error {
	pending := s.chain.Pending()
	out := make([]PoolTxResponse, 0, len(pending))
	for _, tx := range pending {
		enc, err := tx.Encode(true)
		if err != nil {
			return err
		}
		hash, err := tx.Hash()
		if err != nil {
			return err
		}
		out = append(out, PoolTxResponse{Hash: hash, Type: tx.Type.String(), Tx: enc})
	}
	return c.JSON(http.StatusOK, out)
}

func amountString(a *uint256.Int) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}

// exitError tags a failed root-chain call. Contract rejections keep their
// sentinel so they still map to a client error.
func exitError(call string, err error) error {
	if errors.Is(err, rootchain.ErrGateway) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", rootchain.ErrGateway, call, err)
}

// statusCode maps an error to the HTTP status it is reported with.
func statusCode(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, types.ErrStructural),
		errors.Is(err, merkle.ErrProofRange),
		errors.Is(err, merkle.ErrNotReady),
		errors.Is(err, rootchain.ErrZeroDeposit):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrBlockNotFound),
		errors.Is(err, rootchain.ErrWithdrawalNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrUnknownAsset),
		errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, ledger.ErrValueMismatch),
		errors.Is(err, ledger.ErrDuplicateInput),
		errors.Is(err, txpool.ErrAlreadyKnown),
		errors.Is(err, txpool.ErrInputConflict),
		errors.Is(err, rootchain.ErrUnknownAccount),
		errors.Is(err, rootchain.ErrInvalidProof),
		errors.Is(err, rootchain.ErrUnknownHeader),
		errors.Is(err, rootchain.ErrNotChallengeable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, txpool.ErrTxPoolFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, rootchain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusCode(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.log.Warn("request failed", "path", c.Request().URL.Path, "code", code, "err", err)
	}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, errorResponse{Error: msg})
	}
	if werr != nil {
		s.log.Error("failed to write error response", "err", werr)
	}
}
