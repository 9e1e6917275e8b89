package types

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ownerA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	ownerB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func testSig(fill byte) []byte {
	sig := bytes.Repeat([]byte{fill}, SignatureLength)
	sig[64] = 28
	return sig
}

func sampleTxs() []*Transaction {
	transfer := NewTransferTx(UTXOKey{BlkNum: 3, TxIndex: 7, OIndex: 1}, ownerB,
		uint256.NewInt(300), ownerA, uint256.NewInt(190), uint256.NewInt(10))
	transfer.SetSignature(testSig(0x11))

	merge := NewMergeTx(
		&UTXO{UTXOKey: UTXOKey{BlkNum: 1, TxIndex: 0, OIndex: 0}, Owner: ownerA, Amount: uint256.NewInt(5)},
		&UTXO{UTXOKey: UTXOKey{BlkNum: 2, TxIndex: 4, OIndex: 1}, Owner: ownerA, Amount: uint256.NewInt(6)},
	)
	return []*Transaction{
		NewDepositTx(ownerA, uint256.NewInt(200000000000000000)),
		NewWithdrawTx(UTXOKey{BlkNum: 9, TxIndex: 255, OIndex: 1}),
		merge,
		transfer,
	}
}

func TestEncodeKnownDeposit(t *testing.T) {
	tx := NewDepositTx(common.HexToAddress("0x01"), uint256.NewInt(1))
	got, err := tx.Encode(false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := "df" + "808080808080" + "94" + "0000000000000000000000000000000000000001" + "01" + "808080"
	if hex.EncodeToString(got) != want {
		t.Fatalf("unsigned = %x, want %s", got, want)
	}

	signed, _ := tx.Encode(true)
	wantSigned := "e1" + want[2:] + "8080"
	if hex.EncodeToString(signed) != wantSigned {
		t.Fatalf("signed = %x, want %s", signed, wantSigned)
	}
}

func TestEncodeDeterministicAndRoundTrip(t *testing.T) {
	for _, tx := range sampleTxs() {
		a, err := tx.Encode(true)
		if err != nil {
			t.Fatalf("%s: Encode: %v", tx.Type, err)
		}
		b, _ := tx.Copy().Encode(true)
		if !bytes.Equal(a, b) {
			t.Fatalf("%s: encoding not deterministic", tx.Type)
		}

		dec, err := DecodeTransaction(a)
		if err != nil {
			t.Fatalf("%s: Decode: %v", tx.Type, err)
		}
		if dec.Type != tx.Type {
			t.Errorf("%s: inferred type %s", tx.Type, dec.Type)
		}
		again, _ := dec.Encode(true)
		if !bytes.Equal(a, again) {
			t.Errorf("%s: round trip mismatch\n got %x\nwant %x", tx.Type, again, a)
		}
		if !sameInputs(dec, tx) {
			t.Errorf("%s: inputs differ", tx.Type)
		}
	}
}

func sameInputs(a, b *Transaction) bool {
	for i := range a.Inputs {
		x, y := a.Inputs[i], b.Inputs[i]
		if x.Key() != y.Key() || !bytes.Equal(x.Sig, y.Sig) {
			return false
		}
	}
	return true
}

func TestUnsignedOmitsSignatures(t *testing.T) {
	tx := sampleTxs()[3]
	unsigned, _ := tx.Encode(false)
	signed, _ := tx.Encode(true)
	if len(signed) <= len(unsigned) {
		t.Fatalf("signed encoding (%d) not longer than unsigned (%d)", len(signed), len(unsigned))
	}
	dec, err := DecodeTransaction(unsigned)
	if err != nil {
		t.Fatalf("Decode unsigned: %v", err)
	}
	if len(dec.Inputs[0].Sig) != 0 {
		t.Fatal("decoded unsigned transaction has a signature")
	}
}

func TestSetSignatureSecondInput(t *testing.T) {
	tx := NewTransferTx(UTXOKey{BlkNum: 1}, ownerB, uint256.NewInt(1), ownerA, nil, uint256.NewInt(0))
	tx.SetSignature(testSig(1))
	if tx.Inputs[1].Sig != nil {
		t.Fatal("signature set on unused input")
	}
	tx.Inputs[1] = Input{BlkNum: 2}
	tx.SetSignature(testSig(2))
	if !bytes.Equal(tx.Inputs[0].Sig, tx.Inputs[1].Sig) {
		t.Fatal("second input not signed")
	}
}

func TestValidateShapes(t *testing.T) {
	for _, tx := range sampleTxs() {
		if err := tx.Validate(); err != nil {
			t.Errorf("%s: Validate: %v", tx.Type, err)
		}
	}

	bad := []*Transaction{
		{Type: TxDeposit},
		{Type: TxWithdraw, Outputs: [2]Output{{Owner: ownerA, Amount: uint256.NewInt(1)}}},
		{Type: TxMerge, Inputs: [2]Input{{BlkNum: 1}}, Outputs: [2]Output{{Owner: ownerA, Amount: uint256.NewInt(1)}}},
		{Type: TxMerge, Inputs: [2]Input{{BlkNum: 1}, {BlkNum: 1}}, Outputs: [2]Output{{Owner: ownerA, Amount: uint256.NewInt(1)}}},
		{Type: TxNormal, Outputs: [2]Output{{Owner: ownerA, Amount: uint256.NewInt(1)}}},
		{Type: TxNormal, Inputs: [2]Input{{BlkNum: 1}}},
		{Type: TxNormal, Inputs: [2]Input{{BlkNum: 1, OIndex: 2}}, Outputs: [2]Output{{Owner: ownerA, Amount: uint256.NewInt(1)}}},
		{Type: TxType(9)},
	}
	for i, tx := range bad {
		if err := tx.Validate(); !errors.Is(err, ErrStructural) {
			t.Errorf("case %d: err = %v, want ErrStructural", i, err)
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		{0x01},
		{0xc0},
		// owner of 3 bytes
		append([]byte{0xc1 + 13}, append([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x83, 1, 2, 3}, 0x01, 0x80, 0x80, 0x80)...),
	}
	for i, c := range cases {
		if _, err := DecodeTransaction(c); !errors.Is(err, ErrStructural) {
			t.Errorf("case %d: err = %v, want ErrStructural", i, err)
		}
	}
}

func TestDecodeWithType(t *testing.T) {
	enc, _ := NewWithdrawTx(UTXOKey{BlkNum: 1}).Encode(true)
	if _, err := DecodeTransactionWithType(enc, TxWithdraw); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := DecodeTransactionWithType(enc, TxDeposit); !errors.Is(err, ErrStructural) {
		t.Fatalf("as deposit: err = %v, want ErrStructural", err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"200000000000000000", 200000000000000000, true},
		{"0", 0, true},
		{"0x2a", 42, true},
		{" 7 ", 7, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{"1.5", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.ok {
			if err != nil || got.Uint64() != tt.want {
				t.Errorf("ParseAmount(%q) = %v, %v; want %d", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrStructural) {
			t.Errorf("ParseAmount(%q): err = %v, want ErrStructural", tt.in, err)
		}
	}
	over := "115792089237316195423570985008687907853269984665640564039457584007913129639936" // 2^256
	if _, err := ParseAmount(over); !errors.Is(err, ErrStructural) {
		t.Errorf("2^256: err = %v, want ErrStructural", err)
	}
}

func TestEtherToWei(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"0.3", 300000000000000000},
		{"0.01", 10000000000000000},
		{"2", 2000000000000000000},
	}
	for _, tt := range tests {
		got, err := EtherToWei(tt.in)
		if err != nil {
			t.Fatalf("EtherToWei(%q): %v", tt.in, err)
		}
		if got.Uint64() != tt.want {
			t.Errorf("EtherToWei(%q) = %s, want %d", tt.in, got, tt.want)
		}
	}
	for _, in := range []string{"-1", "0.0000000000000000001", "x"} {
		if _, err := EtherToWei(in); !errors.Is(err, ErrStructural) {
			t.Errorf("EtherToWei(%q): err = %v, want ErrStructural", in, err)
		}
	}
}
