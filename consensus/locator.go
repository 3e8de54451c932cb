package consensus

import (
	"context"
	"errors"

	"tx2poa/interfaces"
	"tx2poa/sigsplit"
	"tx2poa/types"
)

// Reasons attached to failed lookups and verdicts. They double as log text.
const (
	ReasonGenesis        = "genesis"
	ReasonNoTransactions = "no transactions"
	ReasonExtraTooShort  = "extra data too short"
	ReasonNoMatchingTx   = "no matching tx from header"
	ReasonProofTxMissing = "proof tx not found"
	ReasonSenderMismatch = "tx.from != block.miner"
	ReasonMalformedProof = "invalid PoA tx data"
	ReasonNonAncestor    = "proof references non-ancestor block"
	ReasonRefMissing     = "referenced block not found"
	ReasonNotAuthorized  = "miner not authorized"
	ReasonBadFragments   = "signature fragments do not join"
	ReasonUnrecoverable  = "unrecoverable signature"
	ReasonInvalidSig     = "invalid signature"
)

// LocateResult is the outcome of looking up a block's proof transaction.
// When OK is false, Reason says why and the other fields may be partial.
type LocateResult struct {
	OK             bool
	Payload        *types.ProofPayload
	HeaderFragment []byte
	Tx             *types.Transaction
	Reason         string
}

// ProofLocator finds the companion transaction announced by a block's extra
// data.
type ProofLocator struct {
	reader interfaces.ChainReader
	layout sigsplit.Layout
}

func NewProofLocator(reader interfaces.ChainReader, layout sigsplit.Layout) *ProofLocator {
	return &ProofLocator{reader: reader, layout: layout}
}

func failed(reason string) *LocateResult {
	return &LocateResult{Reason: reason}
}

// Locate resolves the proof of b. Only host failures are returned as errors;
// a block without a usable proof yields a result with OK unset.
//
// The first transaction whose hash carries the announced prefix is the only
// candidate: if its sender is not the miner the lookup fails there, so an
// honest authority's transaction cannot be claimed by someone else's block.
func (l *ProofLocator) Locate(ctx context.Context, b *types.Block) (*LocateResult, error) {
	if len(b.Transactions) == 0 {
		return failed(ReasonNoTransactions), nil
	}
	prefix, header, err := l.layout.DecodeExtra(b.Extra)
	if err != nil {
		return failed(ReasonExtraTooShort), nil
	}

	for _, h := range b.Transactions {
		if !sigsplit.HasPrefix(h, prefix) {
			continue
		}
		tx, err := l.reader.TransactionByHash(ctx, h)
		if errors.Is(err, interfaces.ErrNotFound) || (err == nil && tx == nil) {
			return failed(ReasonProofTxMissing), nil
		}
		if err != nil {
			return nil, hostErr("get transaction", err)
		}
		res := &LocateResult{HeaderFragment: header, Tx: tx}
		if tx.From != b.Miner {
			res.Reason = ReasonSenderMismatch
			return res, nil
		}
		payload, err := types.DecodeProofPayload(tx.Payload)
		if err != nil {
			res.Reason = ReasonMalformedProof
			return res, nil
		}
		res.OK = true
		res.Payload = payload
		return res, nil
	}
	return failed(ReasonNoMatchingTx), nil
}
