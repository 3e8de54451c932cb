package utils

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidKey       = errors.New("invalid private key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// DeriveEthereumAddress: keccak256(pubUncompressed[1:]), last 20 bytes.
func DeriveEthereumAddress(privKey *secp256k1.PrivateKey) common.Address {
	// 0x04 || X || Y
	pubUncompressed := privKey.PubKey().SerializeUncompressed()

	hash := sha3.NewLegacyKeccak256()
	hash.Write(pubUncompressed[1:])
	digest := hash.Sum(nil)

	return common.BytesToAddress(digest[12:])
}

// ParseSecp256k1PrivateKey accepts a WIF string or a 32-byte hex key (0x optional).
func ParseSecp256k1PrivateKey(keyStr string) (*secp256k1.PrivateKey, error) {
	keyStr = strings.TrimSpace(keyStr)
	if wif, err := btcutil.DecodeWIF(keyStr); err == nil {
		return wif.PrivKey, nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(keyStr, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: neither WIF nor hex: %v", ErrInvalidKey, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: hex key must be 32 bytes, got %d", ErrInvalidKey, len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKey)
	}
	return priv, nil
}

// SignTextHash signs the eth_sign text hash of digest and returns
// [R || S || V] with V in {27, 28}, the shape a geth node returns from eth_sign.
func SignTextHash(privKey *secp256k1.PrivateKey, digest common.Hash) []byte {
	// compact form is [27+recid || R || S] for uncompressed keys
	compact := ecdsa.SignCompact(privKey, accounts.TextHash(digest[:]), false)
	sig := make([]byte, 0, crypto.SignatureLength)
	sig = append(sig, compact[1:]...)
	return append(sig, compact[0])
}

// RecoverSigner returns the address that produced sig over the eth_sign text
// hash of digest. V may be given as 0/1 or 27/28.
func RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	s := common.CopyBytes(sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(digest[:]), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
