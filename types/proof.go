package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedProof is returned when a transaction payload is not a proof.
var ErrMalformedProof = errors.New("invalid PoA tx data")

// ProofPayload is carried in the companion transaction of a block. SigFragment
// is the tail of the producer's signature; BlockNumber names the block whose
// hash was signed.
type ProofPayload struct {
	SigFragment  []byte
	BlockNumber  uint64
	IdentityHint string
}

// wire form shared with the deployed console scripts
type proofPayloadJSON struct {
	Sig         string  `json:"sig"`
	BlockNumber *uint64 `json:"block_number"`
	Enode       string  `json:"enode,omitempty"`
}

// Encode renders the payload as the JSON document placed in tx input.
func (p *ProofPayload) Encode() ([]byte, error) {
	n := p.BlockNumber
	return json.Marshal(proofPayloadJSON{
		Sig:         hex.EncodeToString(p.SigFragment),
		BlockNumber: &n,
		Enode:       p.IdentityHint,
	})
}

// DecodeProofPayload parses tx input. Every failure wraps ErrMalformedProof.
func DecodeProofPayload(data []byte) (*ProofPayload, error) {
	var raw proofPayloadJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	if raw.BlockNumber == nil {
		return nil, fmt.Errorf("%w: missing block_number", ErrMalformedProof)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(raw.Sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: sig: %v", ErrMalformedProof, err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty sig", ErrMalformedProof)
	}
	return &ProofPayload{
		SigFragment:  sig,
		BlockNumber:  *raw.BlockNumber,
		IdentityHint: raw.Enode,
	}, nil
}
