package consensus

import (
	"context"
	"errors"
	"time"

	"tx2poa/config"
	"tx2poa/interfaces"
	"tx2poa/logs"
	"tx2poa/stats"
	"tx2poa/types"
)

// SupervisorConfig tunes the round loop.
type SupervisorConfig struct {
	PollInterval time.Duration
	RollbackTo   string // config.RollbackHighWaterMark or config.RollbackParent
	Eviction     EvictionPolicy
	Events       EventBus // optional
}

// Supervisor drives the validate-then-react loop once per block. It owns the
// high-water mark and the pending proof; both are touched only from the
// goroutine running Run.
type Supervisor struct {
	host      interfaces.HostNode
	validator *Validator
	agent     *AuthorAgent // nil for minions
	cfg       SupervisorConfig
	stats     *stats.Stats

	role     Role
	hwm      uint64
	lastSeen uint64
	pending  *PendingProof
}

// NewSupervisor builds a supervisor. A nil agent forces the minion role.
func NewSupervisor(host interfaces.HostNode, validator *Validator, agent *AuthorAgent, role Role, cfg SupervisorConfig, st *stats.Stats) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RollbackTo == "" {
		cfg.RollbackTo = config.RollbackHighWaterMark
	}
	if cfg.Eviction == nil {
		cfg.Eviction = NoEviction{}
	}
	if agent == nil {
		role = RoleMinion
	}
	return &Supervisor{
		host:      host,
		validator: validator,
		agent:     agent,
		cfg:       cfg,
		stats:     st,
		role:      role,
	}
}

func (s *Supervisor) Role() Role { return s.role }

// HighWaterMark is the highest block this node has verified. It never
// decreases.
func (s *Supervisor) HighWaterMark() uint64 { return s.hwm }

// Pending returns the proof carried into the next authoring round.
func (s *Supervisor) Pending() *PendingProof { return s.pending }

// RoundResult tells Run what to do after a round.
type RoundResult struct {
	Verdict Verdict
	// Immediate is set when the next round should start without waiting
	// for a new block.
	Immediate bool
}

// Bootstrap seeds the high-water mark by walking back from the head to the
// first block that validates. Genesis always does.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	head, err := s.host.CurrentHead(ctx)
	if err != nil {
		return hostErr("current head", err)
	}
	s.lastSeen = head.Number
	for n := head.Number; ; n-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := head
		if n != head.Number {
			if b, err = s.host.BlockByNumber(ctx, n); err != nil {
				return hostErr("get block", err)
			}
		}
		v, err := s.validator.Validate(ctx, b)
		if err != nil {
			return err
		}
		if v.OK() {
			s.advance(n)
			logs.Info("high-water mark bootstrapped at block %d (head %d)", n, head.Number)
			return nil
		}
		if n == 0 {
			return nil
		}
	}
}

// Run loops until ctx is cancelled. No round outcome ends the loop.
func (s *Supervisor) Run(ctx context.Context) error {
	logs.Info("supervisor started as %s, poll every %s, rollback to %s", s.role, s.cfg.PollInterval, s.cfg.RollbackTo)
	if err := s.Bootstrap(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logs.Warn("bootstrap high-water mark: %v", err)
	}
	for {
		res, err := s.Round(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			logs.Warn("round failed, retrying: %v", err)
			if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
				return err
			}
		case res.Immediate:
			continue
		default:
			if err := s.WaitNextHead(ctx); err != nil {
				return err
			}
		}
	}
}

// Round validates the current head once and reacts to the verdict.
func (s *Supervisor) Round(ctx context.Context) (RoundResult, error) {
	start := time.Now()
	head, err := s.host.CurrentHead(ctx)
	if err != nil {
		s.stats.Record(stats.EventHostError)
		return RoundResult{}, hostErr("current head", err)
	}
	s.lastSeen = head.Number

	v, err := s.validator.Validate(ctx, head)
	if err != nil {
		s.stats.Record(stats.EventHostError)
		return RoundResult{}, err
	}
	s.stats.Observe("validate", time.Since(start))
	s.recordVerdict(v)

	if !v.OK() {
		truncated := s.onInvalid(ctx, head, v)
		if s.role != RoleAuthority {
			return RoundResult{Verdict: v}, nil
		}
		if !truncated {
			// The rejected head is still on top; a proof now would build on it.
			s.pauseMiner(ctx)
			return RoundResult{Verdict: v}, nil
		}
		s.author(ctx)
		return RoundResult{Verdict: v, Immediate: true}, nil
	}

	s.advance(head.Number)
	if s.role == RoleAuthority {
		s.author(ctx)
	}
	return RoundResult{Verdict: v}, nil
}

func (s *Supervisor) advance(n uint64) {
	if n > s.hwm {
		s.hwm = n
	}
}

// rollbackTarget never reaches the invalid head itself.
func (s *Supervisor) rollbackTarget(head uint64) uint64 {
	if head == 0 {
		return 0
	}
	target := head - 1
	if s.cfg.RollbackTo == config.RollbackHighWaterMark && s.hwm < target {
		target = s.hwm
	}
	return target
}

// onInvalid rolls the chain back and applies the eviction policy. It
// reports whether the truncation went through.
func (s *Supervisor) onInvalid(ctx context.Context, head *types.Block, v Verdict) bool {
	target := s.rollbackTarget(head.Number)
	truncated := true
	if err := s.host.TruncateChain(ctx, target); err != nil {
		truncated = false
		s.stats.Record(stats.EventHostError)
		logs.Status("ROLLBACK", "ERROR", err.Error(), "block_number", head.Number, "target", target)
	} else {
		s.stats.Record(stats.EventRollback)
		s.lastSeen = target
		logs.Status("ROLLBACK", "SUCCESS", v.Reason, "block_number", head.Number, "target", target)
		s.publish(Event{Type: EventRollback, Verdict: v, Target: target})
	}

	old := s.validator.Authorities()
	if next := s.cfg.Eviction.Evict(old, v); next != old {
		s.validator.SetAuthorities(next)
		s.stats.Record(stats.EventEviction)
		logs.Status("EVICT", "SUCCESS", v.Reason, "miner", v.Miner.Hex(), "authorities", next.Len())
		s.publish(Event{Type: EventEviction, Verdict: v, Authorities: next})
	}
	return truncated
}

// pauseMiner holds the mining gate until a later round truncates the chain
// and authors a fresh proof.
func (s *Supervisor) pauseMiner(ctx context.Context) {
	if err := s.agent.Gate().Enter(ctx); err != nil {
		s.stats.Record(stats.EventHostError)
		logs.Warn("stop mining above invalid head: %v", err)
	}
}

func (s *Supervisor) author(ctx context.Context) {
	pending, err := s.agent.Author(ctx, s.pending)
	s.pending = pending
	if err == nil {
		return
	}
	if IsAuthoringError(err) {
		s.demote(err)
		return
	}
	s.stats.Record(stats.EventHostError)
	logs.Warn("authoring round: %v", err)
}

// demote drops to the minion role for the rest of the process lifetime.
func (s *Supervisor) demote(err error) {
	s.role = RoleMinion
	logs.SetPrefix(RoleMinion.String(), s.agent.Identity().Hex())
	logs.Status("AUTHORITY", "ERROR", "falling back to minion", "error", err)
	s.publish(Event{Type: EventDemoted, Err: err})
}

func (s *Supervisor) publish(e Event) {
	if s.cfg.Events != nil {
		s.cfg.Events.Publish(e)
	}
}

// WaitNextHead polls the host until the head number differs from the last
// one seen. It has no timeout; only ctx ends it early.
func (s *Supervisor) WaitNextHead(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		head, err := s.host.CurrentHead(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logs.Debug("poll head: %v", err)
			continue
		}
		if head.Number != s.lastSeen {
			return nil
		}
	}
}

func (s *Supervisor) recordVerdict(v Verdict) {
	switch v.Status {
	case GenesisOK:
		s.stats.Record(stats.EventGenesis)
	case Valid:
		s.stats.Record(stats.EventValid)
	case NotAuthority:
		s.stats.Record(stats.EventNotAuthority)
	case NoProof:
		s.stats.Record(stats.EventNoProof)
	case BadSignature:
		s.stats.Record(stats.EventBadSignature)
	}

	kv := []interface{}{
		"block_number", v.Number,
		"block_hash", logs.Short(v.Hash.Hex()),
		"block_miner", v.Miner.Hex(),
	}
	if v.Status == Valid || v.Status == BadSignature {
		kv = append(kv, "recovered", v.Recovered.Hex())
	}
	if v.OK() {
		logs.Status("VALIDATE", "SUCCESS", reasonOrEmpty(v), kv...)
	} else {
		logs.Status("VALIDATE", "FAIL", v.Reason, kv...)
	}
	s.publish(Event{Type: EventVerdict, Verdict: v})
}

func reasonOrEmpty(v Verdict) string {
	if v.Status == GenesisOK {
		return v.Reason
	}
	return ""
}
