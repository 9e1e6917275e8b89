package rootchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// managerABI is the subset of the PlasmaChainManager interface the operator
// uses.
const managerABI = `[
  {"type":"function","name":"submitBlockHeader","stateMutability":"nonpayable",
   "inputs":[{"name":"header","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"deposit","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"startWithdrawal","stateMutability":"nonpayable",
   "inputs":[{"name":"blkNum","type":"uint256"},{"name":"txIndex","type":"uint256"},
             {"name":"oIndex","type":"uint256"},{"name":"targetTx","type":"bytes"},
             {"name":"proof","type":"bytes"}],
   "outputs":[{"name":"withdrawalId","type":"uint256"}]},
  {"type":"function","name":"challengeWithdrawal","stateMutability":"nonpayable",
   "inputs":[{"name":"withdrawalId","type":"uint256"},{"name":"blkNum","type":"uint256"},
             {"name":"txIndex","type":"uint256"},{"name":"oIndex","type":"uint256"},
             {"name":"targetTx","type":"bytes"},{"name":"proof","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"finalizeWithdrawal","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"txCounter","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"HeaderSubmittedEvent","anonymous":false,
   "inputs":[{"name":"signer","type":"address","indexed":false},
             {"name":"blockNumber","type":"uint32","indexed":false}]},
  {"type":"event","name":"DepositEvent","anonymous":false,
   "inputs":[{"name":"from","type":"address","indexed":false},
             {"name":"amount","type":"uint256","indexed":false},
             {"name":"blockNumber","type":"uint256","indexed":true},
             {"name":"ctr","type":"uint256","indexed":false}]},
  {"type":"event","name":"WithdrawalStartedEvent","anonymous":false,
   "inputs":[{"name":"withdrawalId","type":"uint256","indexed":false}]},
  {"type":"event","name":"WithdrawalCompleteEvent","anonymous":false,
   "inputs":[{"name":"blockNumber","type":"uint256","indexed":true},
             {"name":"exitBlockNumber","type":"uint256","indexed":false},
             {"name":"exitTxIndex","type":"uint256","indexed":false},
             {"name":"exitOIndex","type":"uint256","indexed":false}]}
]`

// Event names.
const (
	eventDeposit           = "DepositEvent"
	eventWithdrawalStarted = "WithdrawalStartedEvent"
	eventWithdrawalDone    = "WithdrawalCompleteEvent"
)

var parsedABI = mustParseABI(managerABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("rootchain: bad contract ABI: %v", err))
	}
	return parsed
}

// ContractABI returns the parsed contract interface.
func ContractABI() abi.ABI { return parsedABI }

// blockTopic is the indexed blockNumber topic value.
func blockTopic(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n))
}

func bigToUint64(v interface{}) (uint64, error) {
	b, ok := v.(*big.Int)
	if !ok || !b.IsUint64() {
		return 0, fmt.Errorf("unexpected value %v", v)
	}
	return b.Uint64(), nil
}

// decodeDepositLog unpacks a DepositEvent log.
func decodeDepositLog(lg gethtypes.Log) (DepositEvent, error) {
	ev := parsedABI.Events[eventDeposit]
	if len(lg.Topics) != 2 || lg.Topics[0] != ev.ID {
		return DepositEvent{}, fmt.Errorf("not a %s log", eventDeposit)
	}
	vals, err := parsedABI.Unpack(eventDeposit, lg.Data)
	if err != nil {
		return DepositEvent{}, err
	}
	if len(vals) != 3 {
		return DepositEvent{}, fmt.Errorf("%s: %d values", eventDeposit, len(vals))
	}
	from, ok := vals[0].(common.Address)
	if !ok {
		return DepositEvent{}, fmt.Errorf("%s: bad sender", eventDeposit)
	}
	amountBig, ok := vals[1].(*big.Int)
	if !ok {
		return DepositEvent{}, fmt.Errorf("%s: bad amount", eventDeposit)
	}
	amount, overflow := uint256.FromBig(amountBig)
	if overflow {
		return DepositEvent{}, fmt.Errorf("%s: amount overflows", eventDeposit)
	}
	ctr, err := bigToUint64(vals[2])
	if err != nil {
		return DepositEvent{}, fmt.Errorf("%s: counter: %v", eventDeposit, err)
	}
	number := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	if !number.IsUint64() {
		return DepositEvent{}, fmt.Errorf("%s: block number overflows", eventDeposit)
	}
	return DepositEvent{From: from, Amount: amount, BlockNumber: number.Uint64(), Counter: ctr}, nil
}

// decodeWithdrawalLog unpacks a WithdrawalCompleteEvent log.
func decodeWithdrawalLog(lg gethtypes.Log) (WithdrawalEvent, error) {
	ev := parsedABI.Events[eventWithdrawalDone]
	if len(lg.Topics) != 2 || lg.Topics[0] != ev.ID {
		return WithdrawalEvent{}, fmt.Errorf("not a %s log", eventWithdrawalDone)
	}
	vals, err := parsedABI.Unpack(eventWithdrawalDone, lg.Data)
	if err != nil {
		return WithdrawalEvent{}, err
	}
	if len(vals) != 3 {
		return WithdrawalEvent{}, fmt.Errorf("%s: %d values", eventWithdrawalDone, len(vals))
	}
	var fields [3]uint64
	for i, v := range vals {
		if fields[i], err = bigToUint64(v); err != nil {
			return WithdrawalEvent{}, fmt.Errorf("%s: field %d: %v", eventWithdrawalDone, i, err)
		}
	}
	number := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	if !number.IsUint64() {
		return WithdrawalEvent{}, fmt.Errorf("%s: block number overflows", eventWithdrawalDone)
	}
	return WithdrawalEvent{
		BlockNumber:     number.Uint64(),
		ExitBlockNumber: fields[0],
		ExitTxIndex:     fields[1],
		ExitOIndex:      fields[2],
	}, nil
}

// decodeWithdrawalID extracts the id from a WithdrawalStartedEvent log.
func decodeWithdrawalID(lg gethtypes.Log) (uint64, bool) {
	ev := parsedABI.Events[eventWithdrawalStarted]
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return 0, false
	}
	vals, err := parsedABI.Unpack(eventWithdrawalStarted, lg.Data)
	if err != nil || len(vals) != 1 {
		return 0, false
	}
	id, err := bigToUint64(vals[0])
	return id, err == nil
}
