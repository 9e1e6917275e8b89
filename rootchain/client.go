package rootchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/eth2030/plasma/crypto"
	"github.com/eth2030/plasma/log"
)

// ErrReverted is returned when a contract call was mined but failed.
var ErrReverted = errors.New("rootchain: transaction reverted")

// ClientConfig configures the JSON-RPC gateway.
type ClientConfig struct {
	Contract  common.Address
	Operator  common.Address
	GasLimit  uint64 // gas for every contract call
	FromBlock uint64 // first root-chain block scanned for events
}

// DefaultClientConfig returns the call parameters the contract was deployed
// and exercised with.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{GasLimit: 300000}
}

// Client talks to a PlasmaChainManager contract over JSON-RPC. Accounts
// present in the KeyStore sign locally; any other account must be unlocked
// on the node, which then signs through eth_sign and eth_sendTransaction.
type Client struct {
	config   ClientConfig
	rpc      *rpc.Client
	eth      *ethclient.Client
	contract *bind.BoundContract
	keys     *crypto.KeyStore
	log      *log.Logger
}

// Dial connects to the root-chain node at url.
func Dial(ctx context.Context, url string, config ClientConfig, keys *crypto.KeyStore) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrGateway, url, err)
	}
	return NewClient(rc, config, keys), nil
}

// NewClient wraps an established RPC connection.
func NewClient(rc *rpc.Client, config ClientConfig, keys *crypto.KeyStore) *Client {
	if config.GasLimit == 0 {
		config.GasLimit = DefaultClientConfig().GasLimit
	}
	if keys == nil {
		keys = crypto.NewKeyStore()
	}
	eth := ethclient.NewClient(rc)
	return &Client{
		config:   config,
		rpc:      rc,
		eth:      eth,
		contract: bind.NewBoundContract(config.Contract, parsedABI, eth, eth, eth),
		keys:     keys,
		log:      log.Default().Module("rootchain"),
	}
}

// Close releases the connection.
func (c *Client) Close() { c.rpc.Close() }

func (c *Client) eventQuery(event string, blockNumber uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.config.FromBlock),
		Addresses: []common.Address{c.config.Contract},
		Topics:    [][]common.Hash{{parsedABI.Events[event].ID}, {blockTopic(blockNumber)}},
	}
}

// DepositEvents implements Gateway.
func (c *Client) DepositEvents(ctx context.Context, blockNumber uint64) ([]DepositEvent, error) {
	logs, err := c.eth.FilterLogs(ctx, c.eventQuery(eventDeposit, blockNumber))
	if err != nil {
		return nil, err
	}
	var out []DepositEvent
	for _, lg := range logs {
		ev, err := decodeDepositLog(lg)
		if err != nil {
			return nil, err
		}
		// nodes are not required to honour topic filters
		if ev.BlockNumber == blockNumber {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Counter < out[j].Counter })
	return out, nil
}

// WithdrawalEvents implements Gateway.
func (c *Client) WithdrawalEvents(ctx context.Context, blockNumber uint64) ([]WithdrawalEvent, error) {
	logs, err := c.eth.FilterLogs(ctx, c.eventQuery(eventWithdrawalDone, blockNumber))
	if err != nil {
		return nil, err
	}
	var out []WithdrawalEvent
	for _, lg := range logs {
		ev, err := decodeWithdrawalLog(lg)
		if err != nil {
			return nil, err
		}
		if ev.BlockNumber == blockNumber {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Sign implements Gateway.
func (c *Client) Sign(ctx context.Context, msg []byte, signer common.Address) ([]byte, error) {
	if _, ok := c.keys.Key(signer); ok {
		return c.keys.Sign(msg, signer)
	}
	var sig hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &sig, "eth_sign", signer, hexutil.Bytes(msg)); err != nil {
		return nil, err
	}
	if len(sig) != crypto.SignatureLength {
		return nil, crypto.ErrSignatureLength
	}
	return sig, nil
}

// VerifySignature implements Gateway. Recovery is local.
func (c *Client) VerifySignature(_ context.Context, msg, sig []byte, signer common.Address) (bool, error) {
	return crypto.VerifySigner(msg, sig, signer), nil
}

// SubmitHeader implements Gateway.
func (c *Client) SubmitHeader(ctx context.Context, header []byte) error {
	receipt, err := c.transact(ctx, c.config.Operator, nil, "submitBlockHeader", header)
	if err != nil {
		return err
	}
	c.log.Info("header submitted", "tx", receipt.TxHash.Hex(), "rootBlock", receipt.BlockNumber)
	return nil
}

// Deposit implements Exits.
func (c *Client) Deposit(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroDeposit
	}
	_, err := c.transact(ctx, from, amount.ToBig(), "deposit")
	return err
}

// StartWithdrawal implements Exits and returns the id the contract assigned.
func (c *Client) StartWithdrawal(ctx context.Context, req ExitRequest) (uint64, error) {
	receipt, err := c.transact(ctx, req.From, nil, "startWithdrawal",
		new(big.Int).SetUint64(req.BlkNum), new(big.Int).SetUint64(req.TxIndex),
		new(big.Int).SetUint64(req.OIndex), req.TargetTx, req.Proof)
	if err != nil {
		return 0, err
	}
	for _, lg := range receipt.Logs {
		if id, ok := decodeWithdrawalID(*lg); ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: no %s in receipt", ErrWithdrawalNotFound, eventWithdrawalStarted)
}

// ChallengeWithdrawal implements Exits.
func (c *Client) ChallengeWithdrawal(ctx context.Context, withdrawalID uint64, req ExitRequest) error {
	_, err := c.transact(ctx, req.From, nil, "challengeWithdrawal", new(big.Int).SetUint64(withdrawalID),
		new(big.Int).SetUint64(req.BlkNum), new(big.Int).SetUint64(req.TxIndex),
		new(big.Int).SetUint64(req.OIndex), req.TargetTx, req.Proof)
	return err
}

// FinalizeWithdrawal implements Exits.
func (c *Client) FinalizeWithdrawal(ctx context.Context, from common.Address) error {
	_, err := c.transact(ctx, from, nil, "finalizeWithdrawal")
	return err
}

// transact sends a contract call from the given account and waits for it
// to be mined. Local keys sign through a keyed transactor; other accounts
// go through eth_sendTransaction on the node.
func (c *Client) transact(ctx context.Context, from common.Address, value *big.Int, method string, args ...interface{}) (*gethtypes.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	var (
		receipt *gethtypes.Receipt
		err     error
	)
	if key, ok := c.keys.Key(from); ok {
		receipt, err = c.transactKeyed(ctx, key, value, method, args...)
	} else {
		receipt, err = c.transactUnlocked(ctx, from, value, method, args...)
	}
	if err != nil {
		return nil, err
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, receipt.TxHash.Hex())
	}
	return receipt, nil
}

func (c *Client) transactKeyed(ctx context.Context, key *ecdsa.PrivateKey, value *big.Int, method string, args ...interface{}) (*gethtypes.Receipt, error) {
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.Value = value
	opts.GasLimit = c.config.GasLimit
	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, err
	}
	return bind.WaitMined(ctx, c.eth, tx)
}

func (c *Client) transactUnlocked(ctx context.Context, from common.Address, value *big.Int, method string, args ...interface{}) (*gethtypes.Receipt, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	call := map[string]interface{}{
		"from":  from,
		"to":    c.config.Contract,
		"gas":   hexutil.Uint64(c.config.GasLimit),
		"value": (*hexutil.Big)(value),
		"data":  hexutil.Bytes(data),
	}
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", call); err != nil {
		return nil, err
	}
	return bind.WaitMinedHash(ctx, c.eth, hash)
}
