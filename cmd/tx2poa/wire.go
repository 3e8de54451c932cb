package main

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"tx2poa/authority"
	"tx2poa/config"
	"tx2poa/consensus"
	"tx2poa/interfaces"
	"tx2poa/logs"
	"tx2poa/sigsplit"
	"tx2poa/stats"
)

// newValidator builds a validator over host sharing ref with the agent.
func newValidator(host interfaces.ChainReader, ref *consensus.AuthorityRef, cfg *config.Config) (*consensus.Validator, error) {
	return consensus.NewValidator(host, ref, consensus.ValidatorConfig{
		Layout:       sigsplit.V1,
		VerdictCache: cfg.Cache.Verdicts,
		SignerCache:  cfg.Cache.Signers,
	})
}

// newSupervisor wires the validator, the author agent (authorities only)
// and the supervisor for one host. events may be nil.
func newSupervisor(host interfaces.HostNode, signer interfaces.Signer, role consensus.Role, set *authority.Set, cfg *config.Config, st *stats.Stats, events consensus.EventBus) (*consensus.Supervisor, error) {
	ref := consensus.NewAuthorityRef(set)
	validator, err := newValidator(host, ref, cfg)
	if err != nil {
		return nil, err
	}

	var agent *consensus.AuthorAgent
	if role == consensus.RoleAuthority {
		policy, err := consensus.ResumePolicyByName(cfg.Author.Schedule)
		if err != nil {
			return nil, err
		}
		value, err := cfg.ProofValueWei()
		if err != nil {
			return nil, err
		}
		agent, err = consensus.NewAuthorAgent(host, signer, ref, consensus.AuthorConfig{
			Layout:       sigsplit.V1,
			Debounce:     cfg.Author.MinerDebounce.Std(),
			Value:        value,
			IdentityHint: cfg.Author.IdentityHint,
			Policy:       policy,
		}, st)
		if err != nil {
			return nil, err
		}
	}

	var eviction consensus.EvictionPolicy = consensus.NoEviction{}
	if cfg.Supervisor.EvictOnBadSignature {
		eviction = consensus.LocalEviction{}
	}
	return consensus.NewSupervisor(host, validator, agent, role, consensus.SupervisorConfig{
		PollInterval: cfg.Supervisor.PollInterval.Std(),
		RollbackTo:   cfg.Supervisor.RollbackTo,
		Eviction:     eviction,
		Events:       events,
	}, st), nil
}

// verdictLines writes every published verdict to w as one JSON line.
func verdictLines(w io.Writer) consensus.EventHandler {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(e consensus.Event) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(toVerdictJSON(e.Verdict)); err != nil {
			logs.Debug("write verdict: %v", err)
		}
	}
}

// reportStats logs the counters every interval until ctx ends.
func reportStats(ctx context.Context, st *stats.Stats, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logs.Info("stats: %s", st.String())
			for phase, l := range st.Latencies(true) {
				logs.Verbose("latency %s: n=%d p50=%s p95=%s max=%s", phase, l.Count, l.P50, l.P95, l.Max)
			}
		}
	}
}
