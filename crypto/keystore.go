package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrUnknownAccount is returned when signing for an address whose key is not
// held by the keystore.
var ErrUnknownAccount = errors.New("keystore: unknown account")

// KeyStore holds unlocked secp256k1 keys indexed by their Ethereum address.
// It plays the role of a development node's unlocked accounts and is safe
// for concurrent use.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[common.Address]*ecdsa.PrivateKey
}

// NewKeyStore creates an empty KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[common.Address]*ecdsa.PrivateKey)}
}

// Add stores key and returns its address.
func (ks *KeyStore) Add(key *ecdsa.PrivateKey) common.Address {
	addr := gethcrypto.PubkeyToAddress(key.PublicKey)
	ks.mu.Lock()
	ks.keys[addr] = key
	ks.mu.Unlock()
	return addr
}

// Import parses a hex-encoded private key (with or without 0x) and stores it.
func (ks *KeyStore) Import(hexKey string) (common.Address, error) {
	key, err := gethcrypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return common.Address{}, err
	}
	return ks.Add(key), nil
}

// NewAccount generates a fresh key and stores it.
func (ks *KeyStore) NewAccount() (common.Address, error) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}
	return ks.Add(key), nil
}

// Key returns the private key for addr.
func (ks *KeyStore) Key(addr common.Address) (*ecdsa.PrivateKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok := ks.keys[addr]
	return key, ok
}

// Sign signs msg with the key held for addr.
func (ks *KeyStore) Sign(msg []byte, addr common.Address) ([]byte, error) {
	key, ok := ks.Key(addr)
	if !ok {
		return nil, ErrUnknownAccount
	}
	return SignMessage(msg, key)
}

// Accounts returns the held addresses in ascending byte order.
func (ks *KeyStore) Accounts() []common.Address {
	ks.mu.RLock()
	out := make([]common.Address, 0, len(ks.keys))
	for addr := range ks.keys {
		out = append(out, addr)
	}
	ks.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
