package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrUnknownHandle is returned for a key handle the signer does not hold.
	ErrUnknownHandle = errors.New("unknown key handle")
	// ErrMissingKey is returned when a configured key cannot be loaded.
	ErrMissingKey = errors.New("missing signing key")
)

// Signer signs on behalf of a key handle. Callers never see key material.
type Signer interface {
	Address(handle string) (common.Address, error)
	SignTx(handle string, tx *ethtypes.Transaction) (*ethtypes.Transaction, error)
	SignHash(handle string, hash []byte) ([]byte, error)
}

// LocalSigner holds secp256k1 keys loaded from the environment.
type LocalSigner struct {
	mu     sync.RWMutex
	signer ethtypes.Signer
	keys   map[string]*ecdsa.PrivateKey
}

// NewLocalSigner loads one key per handle from the named environment variables.
func NewLocalSigner(chainID *big.Int, envByHandle map[string]string) (*LocalSigner, error) {
	keys := make(map[string]*ecdsa.PrivateKey, len(envByHandle))
	for handle, env := range envByHandle {
		raw := strings.TrimSpace(os.Getenv(env))
		if raw == "" {
			return nil, fmt.Errorf("%w: %s not set for handle %q", ErrMissingKey, env, handle)
		}

		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse key for handle %q: %w", handle, err)
		}
		keys[handle] = key
	}

	return NewLocalSignerFromKeys(chainID, keys), nil
}

// NewLocalSignerFromKeys wraps already-loaded keys.
func NewLocalSignerFromKeys(chainID *big.Int, keys map[string]*ecdsa.PrivateKey) *LocalSigner {
	held := make(map[string]*ecdsa.PrivateKey, len(keys))
	for h, k := range keys {
		held[h] = k
	}
	return &LocalSigner{
		signer: ethtypes.LatestSignerForChainID(chainID),
		keys:   held,
	}
}

func (s *LocalSigner) key(handle string) (*ecdsa.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
	return k, nil
}

// Address returns the account controlled by handle.
func (s *LocalSigner) Address(handle string) (common.Address, error) {
	k, err := s.key(handle)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(k.PublicKey), nil
}

// SignTx signs a transaction for the configured chain.
func (s *LocalSigner) SignTx(handle string, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	k, err := s.key(handle)
	if err != nil {
		return nil, err
	}

	signed, err := ethtypes.SignTx(tx, s.signer, k)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}

// SignHash signs a 32-byte digest.
func (s *LocalSigner) SignHash(handle string, hash []byte) ([]byte, error) {
	k, err := s.key(handle)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash, k)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	return sig, nil
}
