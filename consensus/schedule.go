package consensus

import (
	"fmt"

	"tx2poa/config"
)

// ResumePolicy decides whether an authority switches its miner back on after
// publishing a proof at the given height.
type ResumePolicy interface {
	ShouldResume(height uint64, index, count int) bool
}

// LegacyRoundRobin resumes when height % (index+1) == index. This is the
// rule the deployed network runs; it only spreads load for two authorities.
type LegacyRoundRobin struct{}

func (LegacyRoundRobin) ShouldResume(height uint64, index, count int) bool {
	if index < 0 || count <= 0 {
		return false
	}
	return height%uint64(index+1) == uint64(index)
}

// HeightModulo picks a single leader per height.
type HeightModulo struct{}

func (HeightModulo) ShouldResume(height uint64, index, count int) bool {
	if index < 0 || count <= 0 {
		return false
	}
	return height%uint64(count) == uint64(index)
}

// AlwaysResume lets every authority mine every round.
type AlwaysResume struct{}

func (AlwaysResume) ShouldResume(uint64, int, int) bool { return true }

// ResumePolicyByName maps a config schedule name to a policy.
func ResumePolicyByName(name string) (ResumePolicy, error) {
	switch name {
	case config.ScheduleLegacy, "":
		return LegacyRoundRobin{}, nil
	case config.ScheduleModulo:
		return HeightModulo{}, nil
	case config.ScheduleAlways:
		return AlwaysResume{}, nil
	}
	return nil, fmt.Errorf("unknown schedule %q", name)
}
