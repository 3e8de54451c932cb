// Package authority holds the whitelist of identities allowed to seal blocks.
package authority

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"tx2poa/types"
)

var (
	ErrEmptySet          = errors.New("authority set is empty")
	ErrDuplicateIdentity = errors.New("duplicate authority")
	ErrZeroIdentity      = errors.New("zero address is not a valid authority")
)

// Set is an ordered, duplicate-free list of authorities. It is never mutated
// after construction; Without returns a new value.
type Set struct {
	members []types.Identity
	index   map[types.Identity]int
}

// NewSet builds a set preserving the given order.
func NewSet(ids []types.Identity) (*Set, error) {
	if len(ids) == 0 {
		return nil, ErrEmptySet
	}
	s := &Set{
		members: make([]types.Identity, 0, len(ids)),
		index:   make(map[types.Identity]int, len(ids)),
	}
	for _, id := range ids {
		if id == (types.Identity{}) {
			return nil, ErrZeroIdentity
		}
		if _, dup := s.index[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, id.Hex())
		}
		s.index[id] = len(s.members)
		s.members = append(s.members, id)
	}
	return s, nil
}

// ParseSet builds a set from hex addresses.
func ParseSet(addrs []string) (*Set, error) {
	ids := make([]types.Identity, 0, len(addrs))
	for _, a := range addrs {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("invalid authority address %q", a)
		}
		ids = append(ids, common.HexToAddress(a))
	}
	return NewSet(ids)
}

// Contains reports membership.
func (s *Set) Contains(id types.Identity) bool {
	_, ok := s.index[id]
	return ok
}

// IndexOf returns the position of id, or -1.
func (s *Set) IndexOf(id types.Identity) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

func (s *Set) Len() int {
	return len(s.members)
}

// Members returns a copy of the ordered list.
func (s *Set) Members() []types.Identity {
	out := make([]types.Identity, len(s.members))
	copy(out, s.members)
	return out
}

// Without returns a set lacking id, keeping the remaining order. Removing the
// last member or a non-member returns s itself.
func (s *Set) Without(id types.Identity) *Set {
	i := s.IndexOf(id)
	if i < 0 || len(s.members) == 1 {
		return s
	}
	rest := make([]types.Identity, 0, len(s.members)-1)
	rest = append(rest, s.members[:i]...)
	rest = append(rest, s.members[i+1:]...)
	out, _ := NewSet(rest)
	return out
}

// Strings renders the members as checksummed hex.
func (s *Set) Strings() []string {
	out := make([]string, len(s.members))
	for i, m := range s.members {
		out[i] = m.Hex()
	}
	return out
}
