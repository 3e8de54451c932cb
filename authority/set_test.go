package authority

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tx2poa/types"
)

var (
	addrA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	addrC = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func TestSetMembershipAndIndex(t *testing.T) {
	s, err := NewSet([]types.Identity{addrA, addrB})
	require.NoError(t, err)

	assert.True(t, s.Contains(addrA))
	assert.True(t, s.Contains(addrB))
	assert.False(t, s.Contains(addrC))
	assert.Equal(t, 0, s.IndexOf(addrA))
	assert.Equal(t, 1, s.IndexOf(addrB))
	assert.Equal(t, -1, s.IndexOf(addrC))
	assert.Equal(t, 2, s.Len())
}

func TestSetRejectsBadInput(t *testing.T) {
	_, err := NewSet(nil)
	assert.ErrorIs(t, err, ErrEmptySet)

	_, err = NewSet([]types.Identity{addrA, addrA})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	_, err = NewSet([]types.Identity{{}})
	assert.ErrorIs(t, err, ErrZeroIdentity)

	_, err = ParseSet([]string{"0x1234"})
	assert.Error(t, err)
}

func TestParseSetIsCaseInsensitive(t *testing.T) {
	s, err := ParseSet([]string{
		"0x00000000000000000000000000000000000000AA",
		"0x00000000000000000000000000000000000000bb",
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Identity{addrA, addrB}, s.Members())
}

func TestMembersIsACopy(t *testing.T) {
	s, err := NewSet([]types.Identity{addrA, addrB})
	require.NoError(t, err)

	m := s.Members()
	m[0] = addrC
	assert.True(t, s.Contains(addrA))
	assert.Equal(t, addrA, s.Members()[0])
}

func TestWithout(t *testing.T) {
	s, err := NewSet([]types.Identity{addrA, addrB, addrC})
	require.NoError(t, err)

	w := s.Without(addrB)
	assert.Equal(t, []types.Identity{addrA, addrC}, w.Members())
	assert.Equal(t, 1, w.IndexOf(addrC))
	// original untouched
	assert.Equal(t, 3, s.Len())

	assert.Same(t, s, s.Without(common.HexToAddress("0x01")))

	single, err := NewSet([]types.Identity{addrA})
	require.NoError(t, err)
	assert.Same(t, single, single.Without(addrA))
}
