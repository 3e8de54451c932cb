package sigsplit

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignature(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(crypto.Keccak256([]byte("block")), key)
	require.NoError(t, err)
	return sig
}

func TestSplitJoinRoundTrip(t *testing.T) {
	for i := 0; i < 32; i++ {
		sig := testSignature(t)
		header, payload, err := V1.Split(sig)
		require.NoError(t, err)
		assert.Len(t, header, V1.HeaderFragmentLen)
		assert.Len(t, payload, SignatureLength-V1.HeaderFragmentLen)

		joined, err := V1.Join(header, payload)
		require.NoError(t, err)
		assert.Equal(t, sig, joined)
	}
}

func TestSplitDoesNotAlias(t *testing.T) {
	sig := testSignature(t)
	orig := common.CopyBytes(sig)
	header, payload, err := V1.Split(sig)
	require.NoError(t, err)
	header[0] ^= 0xff
	payload[0] ^= 0xff
	assert.Equal(t, orig, sig)
}

func TestSplitRejectsWrongLength(t *testing.T) {
	_, _, err := V1.Split(make([]byte, 64))
	assert.ErrorIs(t, err, ErrSignatureLength)
	_, _, err = V1.Split(nil)
	assert.ErrorIs(t, err, ErrSignatureLength)
}

func TestJoinRejectsWrongFragments(t *testing.T) {
	_, err := V1.Join(make([]byte, 3), make([]byte, 62))
	assert.ErrorIs(t, err, ErrFragmentLength)
	_, err = V1.Join(make([]byte, 4), make([]byte, 60))
	assert.ErrorIs(t, err, ErrFragmentLength)
}

func TestExtraFraming(t *testing.T) {
	txHash := common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000001")
	header := []byte{0x3f, 0x2c, 0x6d, 0x37}

	extra, err := V1.EncodeExtra(txHash, header)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef, 0x3f, 0x2c, 0x6d, 0x37}, extra)

	prefix, gotHeader, err := V1.DecodeExtra(append(extra, 0x99))
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.True(t, HasPrefix(txHash, prefix))
	assert.False(t, HasPrefix(common.HexToHash("0xdeadbeee"), prefix))
	assert.False(t, HasPrefix(txHash, nil))

	_, _, err = V1.DecodeExtra(extra[:7])
	assert.ErrorIs(t, err, ErrExtraTooShort)

	_, err = V1.EncodeExtra(txHash, header[:2])
	assert.ErrorIs(t, err, ErrFragmentLength)
}

func TestLayoutValidate(t *testing.T) {
	assert.NoError(t, V1.Validate())
	assert.ErrorIs(t, Layout{TxPrefixLen: 0, HeaderFragmentLen: 4}.Validate(), ErrBadLayout)
	assert.ErrorIs(t, Layout{TxPrefixLen: 4, HeaderFragmentLen: 65}.Validate(), ErrBadLayout)
	assert.ErrorIs(t, Layout{TxPrefixLen: 20, HeaderFragmentLen: 20}.Validate(), ErrBadLayout)
}

// Console script headers put 3-byte fields in the extra data; V1 does not
// read them.
func TestV1RejectsThreeByteHeaders(t *testing.T) {
	assert.Equal(t, 4, V1.TxPrefixLen)
	assert.Equal(t, 4, V1.HeaderFragmentLen)
	assert.Equal(t, 8, V1.ExtraLen())

	_, _, err := V1.DecodeExtra([]byte{0xaa, 0xbb, 0xcc, 0x11, 0x22, 0x33})
	assert.ErrorIs(t, err, ErrExtraTooShort)
}
