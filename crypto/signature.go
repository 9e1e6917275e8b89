// eth_sign style message signatures.
//
// Messages are hashed with the EIP-191 personal message prefix before
// signing, matching what an Ethereum node's eth_sign returns. Signatures are
// 65 bytes [R || S || V] with V in {27, 28}.
package crypto

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an [R || S || V] signature.
const SignatureLength = 65

var (
	ErrSignatureLength = errors.New("crypto: signature must be 65 bytes")
	ErrRecoveryID      = errors.New("crypto: invalid recovery id")
)

// SignMessage signs msg with key and returns a 65-byte signature whose V is
// normalized to 27/28.
func SignMessage(msg []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := gethcrypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner returns the address whose key produced sig over msg. V may be
// given either raw (0/1) or legacy (27/28).
func RecoverSigner(msg, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, ErrSignatureLength
	}
	cp := make([]byte, SignatureLength)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}
	if cp[64] > 1 {
		return common.Address{}, ErrRecoveryID
	}
	pub, err := gethcrypto.SigToPub(accounts.TextHash(msg), cp)
	if err != nil {
		return common.Address{}, err
	}
	return gethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySigner reports whether sig over msg was produced by addr.
func VerifySigner(msg, sig []byte, addr common.Address) bool {
	signer, err := RecoverSigner(msg, sig)
	if err != nil {
		return false
	}
	return signer == addr
}
