package utils

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"tx2poa/logs"
	"tx2poa/types"
)

// KeyManager holds the authority key of a node that signs proofs locally
// instead of through the host's unlocked account.
type KeyManager struct {
	privateKey *secp256k1.PrivateKey
	address    types.Identity
}

// NewKeyManager parses a WIF or hex key.
func NewKeyManager(priKey string) (*KeyManager, error) {
	priv, err := ParseSecp256k1PrivateKey(priKey)
	if err != nil {
		return nil, err
	}
	km := &KeyManager{
		privateKey: priv,
		address:    DeriveEthereumAddress(priv),
	}
	logs.Debug("[KeyManager] key loaded, address=%s", km.address.Hex())
	return km, nil
}

// GenerateKeyManager creates a fresh random key, used by the simulator.
func GenerateKeyManager() (*KeyManager, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &KeyManager{privateKey: priv, address: DeriveEthereumAddress(priv)}, nil
}

// Address implements interfaces.Signer.
func (km *KeyManager) Address() types.Identity {
	return km.address
}

// SignHash implements interfaces.Signer.
func (km *KeyManager) SignHash(_ context.Context, hash common.Hash) ([]byte, error) {
	return SignTextHash(km.privateKey, hash), nil
}

// SignTx signs a carrier transaction for chainID with the latest signer
// rules, so the host can accept it through eth_sendRawTransaction.
func (km *KeyManager) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), km.PrivateKeyECDSA())
}

// PrivateKeyECDSA exposes the key in crypto/ecdsa form.
func (km *KeyManager) PrivateKeyECDSA() *ecdsa.PrivateKey {
	return km.privateKey.ToECDSA()
}

// HexKey returns the raw key as hex, without 0x.
func (km *KeyManager) HexKey() string {
	return hex.EncodeToString(km.privateKey.Serialize())
}
