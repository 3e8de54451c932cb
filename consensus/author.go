package consensus

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tx2poa/interfaces"
	"tx2poa/logs"
	"tx2poa/sigsplit"
	"tx2poa/stats"
	"tx2poa/types"
)

// PendingProof is the last proof this node published. The agent returns it
// from every round and receives it back in the next one.
type PendingProof struct {
	Tx              *types.Transaction
	Hash            common.Hash
	HeaderFragment  []byte
	ReferenceNumber uint64
	Resends         int
}

// AuthorConfig tunes an AuthorAgent.
type AuthorConfig struct {
	Layout       sigsplit.Layout
	Debounce     time.Duration
	Value        *big.Int // carried by the self-to-self proof tx
	IdentityHint string   // enode URL; asked from the host when empty
	Policy       ResumePolicy
}

// AuthorAgent publishes this authority's proof for the next block.
type AuthorAgent struct {
	host   interfaces.HostNode
	signer interfaces.Signer
	auth   *AuthorityRef
	gate   *MiningGate
	cfg    AuthorConfig
	stats  *stats.Stats
}

func NewAuthorAgent(host interfaces.HostNode, signer interfaces.Signer, auth *AuthorityRef, cfg AuthorConfig, st *stats.Stats) (*AuthorAgent, error) {
	if err := cfg.Layout.Validate(); err != nil {
		return nil, err
	}
	if cfg.Value == nil {
		cfg.Value = big.NewInt(1)
	}
	if cfg.Policy == nil {
		cfg.Policy = LegacyRoundRobin{}
	}
	return &AuthorAgent{
		host:   host,
		signer: signer,
		auth:   auth,
		gate:   NewMiningGate(host, cfg.Debounce, cfg.Policy),
		cfg:    cfg,
		stats:  st,
	}, nil
}

// Identity is the account proofs are signed with.
func (a *AuthorAgent) Identity() types.Identity {
	return a.signer.Address()
}

// Gate exposes the mining critical section, mainly for inspection.
func (a *AuthorAgent) Gate() *MiningGate {
	return a.gate
}

// Author runs one authoring round. A pending proof still waiting in the
// host's pool is resent without a new signature; otherwise a fresh proof is
// signed over the current head and announced through the extra data.
//
// The returned proof is the one to pass into the next round, also on error.
// An *AuthoringError leaves the miner off.
func (a *AuthorAgent) Author(ctx context.Context, pending *PendingProof) (*PendingProof, error) {
	if pending != nil {
		stillPending, err := a.isPending(ctx, pending.Hash)
		if err != nil {
			return pending, err
		}
		if stillPending {
			return a.resend(ctx, pending)
		}
		logs.Debug("proof %s no longer pending, authoring fresh", logs.Short(pending.Hash.Hex()))
	}
	return a.fresh(ctx)
}

func (a *AuthorAgent) isPending(ctx context.Context, h common.Hash) (bool, error) {
	txs, err := a.host.PendingTransactions(ctx)
	if err != nil {
		return false, hostErr("pending transactions", err)
	}
	for _, tx := range txs {
		if tx.Hash == h {
			return true, nil
		}
	}
	return false, nil
}

func (a *AuthorAgent) resend(ctx context.Context, pending *PendingProof) (*PendingProof, error) {
	if err := a.gate.Enter(ctx); err != nil {
		return pending, err
	}

	newHash, err := a.host.ResendTransaction(ctx, pending.Tx)
	if err != nil {
		// the original tx is still queued and the extra data still points at it
		logs.Status("AUTHORITY", "ERROR", "resend failed", "tx_hash", logs.Short(pending.Hash.Hex()), "error", err)
		a.stats.Record(stats.EventHostError)
		a.leave(ctx, pending.ReferenceNumber)
		return pending, hostErr("resend transaction", err)
	}

	next := *pending
	next.Resends++
	if newHash != pending.Hash {
		extra, err := a.cfg.Layout.EncodeExtra(newHash, pending.HeaderFragment)
		if err == nil {
			err = a.setExtra(ctx, extra)
		}
		if err != nil {
			a.gate.Abandon()
			return pending, &AuthoringError{Step: "set-extra", Err: err}
		}
		tx := *pending.Tx
		tx.Hash = newHash
		next.Tx = &tx
		next.Hash = newHash
	}
	a.stats.Record(stats.EventProofResend)
	logs.Status("AUTHORITY", "RESEND", "",
		"tx_hash", logs.Short(next.Hash.Hex()),
		"reference", next.ReferenceNumber,
		"resends", next.Resends)

	a.leave(ctx, next.ReferenceNumber)
	return &next, nil
}

func (a *AuthorAgent) fresh(ctx context.Context) (*PendingProof, error) {
	start := time.Now()
	if err := a.gate.Enter(ctx); err != nil {
		return nil, err
	}

	ref, err := a.host.CurrentHead(ctx)
	if err != nil {
		a.gate.Abandon()
		return nil, hostErr("current head", err)
	}

	sig, err := a.signer.SignHash(ctx, ref.Hash)
	if err != nil {
		return nil, a.fail("sign", ref, err)
	}
	header, fragment, err := a.cfg.Layout.Split(sig)
	if err != nil {
		return nil, a.fail("split", ref, err)
	}

	hint := a.identityHint(ctx)
	payload := &types.ProofPayload{SigFragment: fragment, BlockNumber: ref.Number, IdentityHint: hint}
	data, err := payload.Encode()
	if err != nil {
		return nil, a.fail("encode", ref, err)
	}
	self := a.signer.Address()
	txHash, err := a.host.SubmitTransaction(ctx, &types.TxRequest{
		From:    self,
		To:      self,
		Value:   new(big.Int).Set(a.cfg.Value),
		Payload: data,
	})
	if err != nil {
		return nil, a.fail("submit", ref, err)
	}
	proof := &PendingProof{
		Tx:              a.lookupSubmitted(ctx, txHash, self, data),
		Hash:            txHash,
		HeaderFragment:  header,
		ReferenceNumber: ref.Number,
	}
	logs.Status("AUTHORITY", "POST", "",
		"block_number", ref.Number,
		"tx_hash", logs.Short(txHash.Hex()),
		"reference_hash", logs.Short(ref.Hash.Hex()),
		"enode", logs.Short(hint))

	extra, err := a.cfg.Layout.EncodeExtra(txHash, header)
	if err == nil {
		err = a.setExtra(ctx, extra)
	}
	if err != nil {
		// the proof tx is out; keep tracking it so a later round can resend
		return proof, a.fail("set-extra", ref, err)
	}

	a.stats.Record(stats.EventProofFresh)
	a.stats.Observe("author", time.Since(start))
	a.leave(ctx, ref.Number)
	return proof, nil
}

func (a *AuthorAgent) setExtra(ctx context.Context, extra []byte) error {
	ok, err := a.host.SetNextBlockExtra(ctx, extra)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("host refused extra data %x", extra)
	}
	return nil
}

// lookupSubmitted fetches the submitted proof so a resend carries the nonce
// the host assigned. The request is used when the host cannot say.
func (a *AuthorAgent) lookupSubmitted(ctx context.Context, h common.Hash, self types.Identity, data []byte) *types.Transaction {
	tx, err := a.host.TransactionByHash(ctx, h)
	if err == nil && tx != nil {
		return tx
	}
	to := self
	return &types.Transaction{Hash: h, From: self, To: &to, Value: new(big.Int).Set(a.cfg.Value), Payload: data}
}

func (a *AuthorAgent) identityHint(ctx context.Context) string {
	if a.cfg.IdentityHint != "" {
		return a.cfg.IdentityHint
	}
	if hinter, ok := a.host.(interfaces.IdentityHinter); ok {
		hint, err := hinter.IdentityHint(ctx)
		if err != nil {
			logs.Debug("identity hint unavailable: %v", err)
			return ""
		}
		a.cfg.IdentityHint = hint
	}
	return a.cfg.IdentityHint
}

func (a *AuthorAgent) fail(step string, ref *types.Block, err error) error {
	a.gate.Abandon()
	a.stats.Record(stats.EventAuthorFailure)
	logs.Status("AUTHORITY", "ERROR", "failed to "+step, "block_number", ref.Number, "error", err)
	return &AuthoringError{Step: step, Err: err}
}

func (a *AuthorAgent) leave(ctx context.Context, height uint64) {
	set := a.auth.Load()
	index := set.IndexOf(a.signer.Address())
	if _, err := a.gate.Leave(ctx, height, index, set.Len()); err != nil {
		logs.Warn("leave mining gate: %v", err)
	}
}

// EnsureAuthorityAccount points the host's etherbase at the signing account.
// The miner is left alone; the first authoring round starts it. Failure is
// logged and the node keeps running.
func EnsureAuthorityAccount(ctx context.Context, host interfaces.HostNode, signer interfaces.Signer) bool {
	self := signer.Address()
	eb, ok := host.(interfaces.Etherbaser)
	if !ok {
		return true
	}
	set, err := eb.SetEtherbase(ctx, self)
	if err != nil || !set {
		logs.Status("AUTHORITY", "ERROR", "could not set etherbase", "etherbase", self.Hex(), "error", err)
		return false
	}
	logs.Status("AUTHORITY", "SUCCESS", "initialized", "etherbase", self.Hex())
	return true
}
