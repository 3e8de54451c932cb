package consensus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"

	"tx2poa/authority"
	"tx2poa/interfaces"
	"tx2poa/sigsplit"
	"tx2poa/types"
	"tx2poa/utils"
)

// Status classifies a block.
type Status int

const (
	GenesisOK Status = iota
	NotAuthority
	NoProof
	BadSignature
	Valid
)

func (s Status) String() string {
	switch s {
	case GenesisOK:
		return "GENESIS_OK"
	case NotAuthority:
		return "NOT_AUTHORITY"
	case NoProof:
		return "NO_PROOF"
	case BadSignature:
		return "BAD_SIGNATURE"
	case Valid:
		return "VALID"
	}
	return "UNKNOWN"
}

// Verdict is the validator's answer for one block.
type Verdict struct {
	Status    Status
	Reason    string
	Number    uint64
	Hash      common.Hash
	Miner     types.Identity
	ProofTx   common.Hash
	Reference uint64
	Recovered types.Identity
}

// OK reports whether the block is accepted.
func (v Verdict) OK() bool {
	return v.Status == GenesisOK || v.Status == Valid
}

// AuthorityRef holds the authority set shared by the validator and the
// author agent. Replacing it is atomic.
type AuthorityRef struct {
	p atomic.Pointer[authority.Set]
}

func NewAuthorityRef(set *authority.Set) *AuthorityRef {
	r := &AuthorityRef{}
	r.p.Store(set)
	return r
}

func (r *AuthorityRef) Load() *authority.Set { return r.p.Load() }

func (r *AuthorityRef) Store(set *authority.Set) { r.p.Store(set) }

// ValidatorConfig sizes the memo caches.
type ValidatorConfig struct {
	Layout       sigsplit.Layout
	VerdictCache int
	SignerCache  int
}

// Validator decides whether a block was sealed by an authority. It only
// reads the chain and is safe for concurrent use.
type Validator struct {
	reader  interfaces.ChainReader
	locator *ProofLocator
	layout  sigsplit.Layout
	auth    *AuthorityRef

	verdicts *lru.ARCCache // block hash -> Verdict
	signers  *lru.ARCCache // string(ref hash ++ sig) -> types.Identity
}

func NewValidator(reader interfaces.ChainReader, auth *AuthorityRef, cfg ValidatorConfig) (*Validator, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.VerdictCache <= 0 {
		cfg.VerdictCache = 1024
	}
	if cfg.SignerCache <= 0 {
		cfg.SignerCache = 4096
	}
	verdicts, err := lru.NewARC(cfg.VerdictCache)
	if err != nil {
		return nil, err
	}
	signers, err := lru.NewARC(cfg.SignerCache)
	if err != nil {
		return nil, err
	}
	return &Validator{
		reader:   reader,
		locator:  NewProofLocator(reader, cfg.Layout),
		layout:   cfg.Layout,
		auth:     auth,
		verdicts: verdicts,
		signers:  signers,
	}, nil
}

// Authorities returns the set blocks are currently checked against.
func (v *Validator) Authorities() *authority.Set {
	return v.auth.Load()
}

// SetAuthorities swaps the authority set and forgets cached verdicts.
func (v *Validator) SetAuthorities(set *authority.Set) {
	v.auth.Store(set)
	v.verdicts.Purge()
}

// Validate classifies b. The checks run in order and stop at the first
// failure: genesis, authority membership, proof lookup, signature. The error
// is non-nil only when the host could not be queried.
func (v *Validator) Validate(ctx context.Context, b *types.Block) (Verdict, error) {
	verdict := Verdict{Number: b.Number, Hash: b.Hash, Miner: b.Miner}
	if b.IsGenesis() {
		verdict.Status = GenesisOK
		verdict.Reason = ReasonGenesis
		return verdict, nil
	}
	if cached, ok := v.verdicts.Get(b.Hash); ok {
		return cached.(Verdict), nil
	}

	verdict, final, err := v.validate(ctx, b, verdict)
	if err != nil {
		return Verdict{}, err
	}
	if final {
		v.verdicts.Add(b.Hash, verdict)
	}
	return verdict, nil
}

// validate reports final=false for outcomes that may change once the host
// catches up (a proof or reference block it does not have yet).
func (v *Validator) validate(ctx context.Context, b *types.Block, verdict Verdict) (Verdict, bool, error) {
	if !v.auth.Load().Contains(b.Miner) {
		verdict.Status = NotAuthority
		verdict.Reason = ReasonNotAuthorized
		return verdict, true, nil
	}

	res, err := v.locator.Locate(ctx, b)
	if err != nil {
		return verdict, false, err
	}
	if res.Tx != nil {
		verdict.ProofTx = res.Tx.Hash
	}
	if !res.OK {
		verdict.Status = NoProof
		verdict.Reason = res.Reason
		return verdict, res.Reason != ReasonProofTxMissing, nil
	}
	verdict.Reference = res.Payload.BlockNumber
	if res.Payload.BlockNumber >= b.Number {
		verdict.Status = NoProof
		verdict.Reason = ReasonNonAncestor
		return verdict, true, nil
	}

	sig, err := v.layout.Join(res.HeaderFragment, res.Payload.SigFragment)
	if err != nil {
		verdict.Status = BadSignature
		verdict.Reason = ReasonBadFragments
		return verdict, true, nil
	}

	ref, err := v.reader.BlockByNumber(ctx, res.Payload.BlockNumber)
	if errors.Is(err, interfaces.ErrNotFound) || (err == nil && ref == nil) {
		verdict.Status = NoProof
		verdict.Reason = ReasonRefMissing
		return verdict, false, nil
	}
	if err != nil {
		return verdict, false, hostErr("get block", err)
	}

	recovered, err := v.recover(ref.Hash, sig)
	if err != nil {
		verdict.Status = BadSignature
		verdict.Reason = ReasonUnrecoverable
		return verdict, true, nil
	}
	verdict.Recovered = recovered
	if recovered != b.Miner {
		verdict.Status = BadSignature
		verdict.Reason = ReasonInvalidSig
		return verdict, true, nil
	}
	verdict.Status = Valid
	return verdict, true, nil
}

func (v *Validator) recover(refHash common.Hash, sig []byte) (types.Identity, error) {
	key := string(refHash[:]) + string(sig)
	if id, ok := v.signers.Get(key); ok {
		return id.(types.Identity), nil
	}
	id, err := utils.RecoverSigner(refHash, sig)
	if err != nil {
		return types.Identity{}, err
	}
	v.signers.Add(key, id)
	return id, nil
}
