package types

import "errors"

var (
	// ErrStructural marks a malformed transaction, amount or header. It is
	// fatal to the single operation that produced it.
	ErrStructural = errors.New("malformed structure")

	ErrSignatureLength = errors.New("signature must be 65 bytes [R || S || V]")
	ErrBlockCapacity   = errors.New("block exceeds transaction capacity")
)
