package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// WeiPerEther is 10^18.
var WeiPerEther = uint256.NewInt(1_000_000_000_000_000_000)

// ParseAmount parses a non-negative integer amount given in decimal or in
// 0x-prefixed hex. Anything else, including values of 2^256 and above, is a
// structural error.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrStructural)
	}
	var (
		v   *uint256.Int
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = uint256.FromHex("0x" + s[2:])
	} else {
		v, err = uint256.FromDecimal(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrStructural, s, err)
	}
	return v, nil
}

// EtherToWei converts a decimal ether amount such as "0.3" to wei. Amounts
// finer than one wei or negative amounts are structural errors.
func EtherToWei(s string) (*uint256.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("%w: ether amount %q", ErrStructural, s)
	}
	r.Mul(r, new(big.Rat).SetInt(WeiPerEther.ToBig()))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: ether amount %q below one wei", ErrStructural, s)
	}
	v, overflow := uint256.FromBig(r.Num())
	if overflow {
		return nil, fmt.Errorf("%w: ether amount %q overflows", ErrStructural, s)
	}
	return v, nil
}
