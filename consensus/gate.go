package consensus

import (
	"context"
	"time"

	"tx2poa/logs"
	"tx2poa/types"
)

// MinerSwitch is the host's miner on/off control.
type MinerSwitch interface {
	StartMining(ctx context.Context) error
	StopMining(ctx context.Context) error
}

type headReader interface {
	CurrentHead(ctx context.Context) (*types.Block, error)
}

// MiningGate is the authoring critical section. While it is held the miner
// is off, so a block sealed by this node always carries the proof that was
// queued before the gate was left. Nothing else touches the miner switch.
type MiningGate struct {
	miner    MinerSwitch
	debounce time.Duration
	policy   ResumePolicy
	held     bool
}

func NewMiningGate(miner MinerSwitch, debounce time.Duration, policy ResumePolicy) *MiningGate {
	if policy == nil {
		policy = LegacyRoundRobin{}
	}
	return &MiningGate{miner: miner, debounce: debounce, policy: policy}
}

// Enter stops the miner.
func (g *MiningGate) Enter(ctx context.Context) error {
	if err := g.miner.StopMining(ctx); err != nil {
		return hostErr("stop mining", err)
	}
	g.held = true
	return nil
}

// Leave waits out the debounce and restarts the miner if the resume policy
// picks this authority for the head height at that moment. height is used
// when the switch cannot report the head. It reports whether mining resumed.
func (g *MiningGate) Leave(ctx context.Context, height uint64, index, count int) (bool, error) {
	g.held = false
	if err := sleepCtx(ctx, g.debounce); err != nil {
		return false, err
	}
	if hr, ok := g.miner.(headReader); ok {
		if head, err := hr.CurrentHead(ctx); err == nil {
			height = head.Number
		}
	}
	if !g.policy.ShouldResume(height, index, count) {
		logs.Debug("miner stays off at height %d (index %d of %d)", height, index, count)
		return false, nil
	}
	if err := g.miner.StartMining(ctx); err != nil {
		return false, hostErr("start mining", err)
	}
	return true, nil
}

// Abandon releases the gate with the miner left off.
func (g *MiningGate) Abandon() {
	g.held = false
}

// Held reports whether the miner is currently paused by the gate.
func (g *MiningGate) Held() bool {
	return g.held
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
