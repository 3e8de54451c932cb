package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tx2poa/config"
)

func TestResumePolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy ResumePolicy
		height uint64
		index  int
		count  int
		want   bool
	}{
		{"legacy index 0 always", LegacyRoundRobin{}, 7, 0, 2, true},
		{"legacy index 1 odd", LegacyRoundRobin{}, 7, 1, 2, true},
		{"legacy index 1 even", LegacyRoundRobin{}, 8, 1, 2, false},
		{"legacy index 2", LegacyRoundRobin{}, 5, 2, 3, true},
		{"legacy not a member", LegacyRoundRobin{}, 5, -1, 3, false},
		{"modulo leader", HeightModulo{}, 10, 1, 3, true},
		{"modulo other", HeightModulo{}, 10, 2, 3, false},
		{"modulo empty set", HeightModulo{}, 10, 0, 0, false},
		{"always", AlwaysResume{}, 3, 5, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ShouldResume(tt.height, tt.index, tt.count))
		})
	}
}

func TestHeightModuloElectsOneLeader(t *testing.T) {
	const count = 4
	for h := uint64(0); h < 20; h++ {
		leaders := 0
		for i := 0; i < count; i++ {
			if (HeightModulo{}).ShouldResume(h, i, count) {
				leaders++
			}
		}
		assert.Equal(t, 1, leaders, "height %d", h)
	}
}

func TestResumePolicyByName(t *testing.T) {
	p, err := ResumePolicyByName(config.ScheduleModulo)
	require.NoError(t, err)
	assert.IsType(t, HeightModulo{}, p)

	p, err = ResumePolicyByName("")
	require.NoError(t, err)
	assert.IsType(t, LegacyRoundRobin{}, p)

	_, err = ResumePolicyByName("lottery")
	assert.Error(t, err)
}

func TestEvictionPolicies(t *testing.T) {
	a, b := newKey(t).Address(), newKey(t).Address()
	set := newSet(t, a, b)

	assert.Same(t, set, NoEviction{}.Evict(set, Verdict{Status: BadSignature, Miner: b}))
	assert.Same(t, set, LocalEviction{}.Evict(set, Verdict{Status: NoProof, Miner: b}))

	next := LocalEviction{}.Evict(set, Verdict{Status: BadSignature, Miner: b})
	assert.False(t, next.Contains(b))
	assert.True(t, next.Contains(a))
	assert.True(t, set.Contains(b), "original set untouched")
}

func TestResolveRole(t *testing.T) {
	a, c := newKey(t), newKey(t)
	set := newSet(t, a.Address())

	role, err := ResolveRole(config.RoleAuto, set, a)
	require.NoError(t, err)
	assert.Equal(t, RoleAuthority, role)

	role, err = ResolveRole(config.RoleAuto, set, c)
	require.NoError(t, err)
	assert.Equal(t, RoleMinion, role)

	role, err = ResolveRole(config.RoleAuto, set, nil)
	require.NoError(t, err)
	assert.Equal(t, RoleMinion, role)

	role, err = ResolveRole(config.RoleMinion, set, a)
	require.NoError(t, err)
	assert.Equal(t, RoleMinion, role)

	_, err = ResolveRole(config.RoleAuthority, set, nil)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = ResolveRole(config.RoleAuthority, set, c)
	assert.ErrorAs(t, err, &ce)
}
