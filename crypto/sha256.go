package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	sha256 "github.com/minio/sha256-simd"
)

// Sha256Hash calculates the SHA-256 digest of the concatenated inputs. It is
// used for block linkage hashes, which the root chain never recomputes.
func Sha256Hash(data ...[]byte) common.Hash {
	h := sha256.New()
	for _, b := range data {
		h.Write(b)
	}
	var out common.Hash
	h.Sum(out[:0])
	return out
}
