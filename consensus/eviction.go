package consensus

import (
	"tx2poa/authority"
)

// EvictionPolicy may shrink this process's view of the authority set after a
// rejected block. It never affects other nodes.
type EvictionPolicy interface {
	Evict(set *authority.Set, v Verdict) *authority.Set
}

// NoEviction keeps the set as configured.
type NoEviction struct{}

func (NoEviction) Evict(set *authority.Set, _ Verdict) *authority.Set { return set }

// LocalEviction drops the miner of a block whose proof signature did not
// recover to it. Blocks that merely lack a proof are not punished.
type LocalEviction struct{}

func (LocalEviction) Evict(set *authority.Set, v Verdict) *authority.Set {
	if v.Status != BadSignature {
		return set
	}
	return set.Without(v.Miner)
}
