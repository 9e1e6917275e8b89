package rootchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/eth2030/plasma/crypto"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000c0ffee00")

var testChainID = big.NewInt(1337)

// fakeEth serves the eth namespace methods the client reads and transacts
// with. Sent transactions are mined immediately with the given status.
type fakeEth struct {
	logs   []gethtypes.Log
	key    *ecdsa.PrivateKey
	failed bool // mine with a failed status
	sent   []*gethtypes.Transaction
}

func (f *fakeEth) ChainId() (*hexutil.Big, error) {
	return (*hexutil.Big)(testChainID), nil
}

func (f *fakeEth) GasPrice() (*hexutil.Big, error) {
	return (*hexutil.Big)(big.NewInt(1e9)), nil
}

func (f *fakeEth) GetBlockByNumber(number rpc.BlockNumber, full bool) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: big.NewInt(1), Difficulty: big.NewInt(0), Extra: []byte{}}, nil
}

func (f *fakeEth) GetTransactionCount(addr common.Address, block string) (hexutil.Uint64, error) {
	return hexutil.Uint64(len(f.sent)), nil
}

func (f *fakeEth) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	tx := new(gethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	f.sent = append(f.sent, tx)
	return tx.Hash(), nil
}

func (f *fakeEth) GetTransactionReceipt(hash common.Hash) (*gethtypes.Receipt, error) {
	for _, tx := range f.sent {
		if tx.Hash() != hash {
			continue
		}
		status := gethtypes.ReceiptStatusSuccessful
		if f.failed {
			status = gethtypes.ReceiptStatusFailed
		}
		return &gethtypes.Receipt{
			Status:      status,
			Logs:        []*gethtypes.Log{},
			TxHash:      hash,
			BlockNumber: big.NewInt(1),
			GasUsed:     21000,
		}, nil
	}
	return nil, nil
}

func (f *fakeEth) GetLogs(ctx context.Context, crit map[string]interface{}) ([]gethtypes.Log, error) {
	return f.logs, nil
}

func (f *fakeEth) Sign(addr common.Address, data hexutil.Bytes) (hexutil.Bytes, error) {
	return crypto.SignMessage(data, f.key)
}

func newFakeClient(t *testing.T, svc *fakeEth) *Client {
	t.Helper()
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", svc); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)
	c := NewClient(rpc.DialInProc(srv), ClientConfig{Contract: testContract}, nil)
	t.Cleanup(c.Close)
	return c
}

func depositLog(t *testing.T, from common.Address, amount, blockNumber, ctr uint64) gethtypes.Log {
	t.Helper()
	ev := parsedABI.Events[eventDeposit]
	data, err := ev.Inputs.NonIndexed().Pack(from, new(big.Int).SetUint64(amount), new(big.Int).SetUint64(ctr))
	if err != nil {
		t.Fatal(err)
	}
	return gethtypes.Log{
		Address: testContract,
		Topics:  []common.Hash{ev.ID, blockTopic(blockNumber)},
		Data:    data,
	}
}

func withdrawalLog(t *testing.T, blockNumber, blk, tx, o uint64) gethtypes.Log {
	t.Helper()
	ev := parsedABI.Events[eventWithdrawalDone]
	data, err := ev.Inputs.NonIndexed().Pack(
		new(big.Int).SetUint64(blk), new(big.Int).SetUint64(tx), new(big.Int).SetUint64(o))
	if err != nil {
		t.Fatal(err)
	}
	return gethtypes.Log{
		Address: testContract,
		Topics:  []common.Hash{ev.ID, blockTopic(blockNumber)},
		Data:    data,
	}
}

func TestClientDepositEvents(t *testing.T) {
	from := common.HexToAddress("0xaaaa")
	svc := &fakeEth{logs: []gethtypes.Log{
		depositLog(t, from, 300, 4, 9),
		depositLog(t, from, 100, 4, 2),
		depositLog(t, from, 999, 5, 3), // other height, dropped client side
	}}
	c := newFakeClient(t, svc)

	evs, err := c.DepositEvents(context.Background(), 4)
	if err != nil {
		t.Fatalf("DepositEvents: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Counter != 2 || evs[1].Counter != 9 {
		t.Errorf("counters = %d,%d; want sorted 2,9", evs[0].Counter, evs[1].Counter)
	}
	if evs[0].Amount.Uint64() != 100 || evs[0].From != from || evs[0].BlockNumber != 4 {
		t.Errorf("event = %+v", evs[0])
	}
}

func TestClientWithdrawalEvents(t *testing.T) {
	svc := &fakeEth{logs: []gethtypes.Log{withdrawalLog(t, 3, 1, 2, 1)}}
	c := newFakeClient(t, svc)

	evs, err := c.WithdrawalEvents(context.Background(), 3)
	if err != nil {
		t.Fatalf("WithdrawalEvents: %v", err)
	}
	want := WithdrawalEvent{BlockNumber: 3, ExitBlockNumber: 1, ExitTxIndex: 2, ExitOIndex: 1}
	if len(evs) != 1 || evs[0] != want {
		t.Errorf("events = %+v, want [%+v]", evs, want)
	}
}

func TestClientSign(t *testing.T) {
	nodeKey, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	nodeAddr := gethcrypto.PubkeyToAddress(nodeKey.PublicKey)
	c := newFakeClient(t, &fakeEth{key: nodeKey})
	ctx := context.Background()
	msg := []byte("header bytes")

	// account unlocked on the node: signed remotely
	sig, err := c.Sign(ctx, msg, nodeAddr)
	if err != nil {
		t.Fatalf("remote Sign: %v", err)
	}
	if ok, _ := c.VerifySignature(ctx, msg, sig, nodeAddr); !ok {
		t.Error("remote signature does not verify")
	}

	// account held locally
	local, err := c.keys.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	sig, err = c.Sign(ctx, msg, local)
	if err != nil {
		t.Fatalf("local Sign: %v", err)
	}
	if ok, _ := c.VerifySignature(ctx, msg, sig, local); !ok {
		t.Error("local signature does not verify")
	}
}

func TestDecodeLogsRejectForeignEvents(t *testing.T) {
	lg := withdrawalLog(t, 1, 1, 0, 0)
	if _, err := decodeDepositLog(lg); err == nil {
		t.Error("withdrawal log decoded as deposit")
	}
	if _, ok := decodeWithdrawalID(lg); ok {
		t.Error("withdrawal log decoded as withdrawal start")
	}

	ev := parsedABI.Events[eventWithdrawalStarted]
	data, err := ev.Inputs.Pack(big.NewInt(42))
	if err != nil {
		t.Fatal(err)
	}
	id, ok := decodeWithdrawalID(gethtypes.Log{Topics: []common.Hash{ev.ID}, Data: data})
	if !ok || id != 42 {
		t.Errorf("withdrawal id = %d,%v; want 42", id, ok)
	}
}

func TestSubmitHeaderCallData(t *testing.T) {
	header := []byte{1, 2, 3}
	data, err := parsedABI.Pack("submitBlockHeader", header)
	if err != nil {
		t.Fatal(err)
	}
	method := parsedABI.Methods["submitBlockHeader"]
	vals, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := vals[0].([]byte); !ok || string(got) != string(header) {
		t.Errorf("unpacked header = %v", vals[0])
	}
}

func TestClientSubmitHeaderSignsLocally(t *testing.T) {
	svc := &fakeEth{}
	srv := rpc.NewServer()
	if err := srv.RegisterName("eth", svc); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)

	keys := crypto.NewKeyStore()
	operator, err := keys.NewAccount()
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(rpc.DialInProc(srv), ClientConfig{Contract: testContract, Operator: operator}, keys)
	t.Cleanup(c.Close)

	header := []byte{9, 8, 7}
	if err := c.SubmitHeader(context.Background(), header); err != nil {
		t.Fatalf("SubmitHeader: %v", err)
	}
	if len(svc.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(svc.sent))
	}
	tx := svc.sent[0]
	if tx.To() == nil || *tx.To() != testContract {
		t.Errorf("to = %v, want %s", tx.To(), testContract.Hex())
	}
	if tx.Gas() != DefaultClientConfig().GasLimit {
		t.Errorf("gas = %d, want %d", tx.Gas(), DefaultClientConfig().GasLimit)
	}
	want, err := parsedABI.Pack("submitBlockHeader", header)
	if err != nil {
		t.Fatal(err)
	}
	if string(tx.Data()) != string(want) {
		t.Errorf("call data = %x, want %x", tx.Data(), want)
	}
	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(testChainID), tx)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if from != operator {
		t.Errorf("signed by %s, want %s", from.Hex(), operator.Hex())
	}

	svc.failed = true
	if err := c.SubmitHeader(context.Background(), header); !errors.Is(err, ErrReverted) {
		t.Errorf("reverted submit: got %v, want ErrReverted", err)
	}
	if len(svc.sent) != 2 || svc.sent[1].Nonce() != 1 {
		t.Errorf("second submit not sent with the next nonce")
	}
}
