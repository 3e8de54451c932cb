// Package sigsplit splits a block producer's signature between the header
// extra-data field and the companion proof transaction, and puts it back
// together on the verifying side.
//
// The header carries txHash[:TxPrefixLen] ++ sig[:HeaderFragmentLen]; the
// proof transaction carries sig[HeaderFragmentLen:]. Neither half alone lets an
// observer of the transaction pool forge the header of a competing block.
package sigsplit

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the size of an [R || S || V] secp256k1 signature.
	SignatureLength = crypto.SignatureLength
	// MaxExtraLen is the header extra-data limit enforced by the host.
	MaxExtraLen = 32
)

var (
	ErrSignatureLength = errors.New("signature must be 65 bytes")
	ErrFragmentLength  = errors.New("signature fragment has wrong length")
	ErrExtraTooShort   = errors.New("extra data too short for proof header")
	ErrBadLayout       = errors.New("invalid split layout")
)

// Layout fixes the split boundary. It must not change within a protocol version.
type Layout struct {
	TxPrefixLen       int
	HeaderFragmentLen int
}

// V1 is this implementation's layout: binary extra data with a 4-byte tx hash
// prefix and a 4-byte signature fragment. It is not wire compatible with the
// console script headers, which carry 3-byte fields as hex text.
var V1 = Layout{TxPrefixLen: 4, HeaderFragmentLen: 4}

// Validate checks that the layout fits a header and leaves a payload fragment.
func (l Layout) Validate() error {
	if l.TxPrefixLen <= 0 || l.TxPrefixLen > common.HashLength {
		return fmt.Errorf("%w: tx prefix length %d", ErrBadLayout, l.TxPrefixLen)
	}
	if l.HeaderFragmentLen <= 0 || l.HeaderFragmentLen >= SignatureLength {
		return fmt.Errorf("%w: header fragment length %d", ErrBadLayout, l.HeaderFragmentLen)
	}
	if l.ExtraLen() > MaxExtraLen {
		return fmt.Errorf("%w: extra length %d exceeds %d", ErrBadLayout, l.ExtraLen(), MaxExtraLen)
	}
	return nil
}

// ExtraLen is the number of extra-data bytes the proof header occupies.
func (l Layout) ExtraLen() int {
	return l.TxPrefixLen + l.HeaderFragmentLen
}

// Split cuts sig at the layout boundary. The returned slices do not alias sig.
func (l Layout) Split(sig []byte) (header, payload []byte, err error) {
	if len(sig) != SignatureLength {
		return nil, nil, fmt.Errorf("%w: got %d", ErrSignatureLength, len(sig))
	}
	header = common.CopyBytes(sig[:l.HeaderFragmentLen])
	payload = common.CopyBytes(sig[l.HeaderFragmentLen:])
	return header, payload, nil
}

// Join is the inverse of Split.
func (l Layout) Join(header, payload []byte) ([]byte, error) {
	if len(header) != l.HeaderFragmentLen {
		return nil, fmt.Errorf("%w: header fragment %d bytes", ErrFragmentLength, len(header))
	}
	if len(header)+len(payload) != SignatureLength {
		return nil, fmt.Errorf("%w: payload fragment %d bytes", ErrFragmentLength, len(payload))
	}
	sig := make([]byte, 0, SignatureLength)
	sig = append(sig, header...)
	return append(sig, payload...), nil
}

// EncodeExtra builds the extra-data value announcing the proof transaction.
func (l Layout) EncodeExtra(txHash common.Hash, header []byte) ([]byte, error) {
	if len(header) != l.HeaderFragmentLen {
		return nil, fmt.Errorf("%w: header fragment %d bytes", ErrFragmentLength, len(header))
	}
	extra := make([]byte, 0, l.ExtraLen())
	extra = append(extra, txHash[:l.TxPrefixLen]...)
	return append(extra, header...), nil
}

// DecodeExtra returns the tx hash prefix and header fragment. Trailing bytes
// past the layout are ignored.
func (l Layout) DecodeExtra(extra []byte) (txPrefix, header []byte, err error) {
	if len(extra) < l.ExtraLen() {
		return nil, nil, fmt.Errorf("%w: %d < %d", ErrExtraTooShort, len(extra), l.ExtraLen())
	}
	txPrefix = common.CopyBytes(extra[:l.TxPrefixLen])
	header = common.CopyBytes(extra[l.TxPrefixLen:l.ExtraLen()])
	return txPrefix, header, nil
}

// HasPrefix reports whether h starts with prefix.
func HasPrefix(h common.Hash, prefix []byte) bool {
	return len(prefix) > 0 && bytes.HasPrefix(h[:], prefix)
}
