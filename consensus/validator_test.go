package consensus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tx2poa/sigsplit"
	"tx2poa/types"
)

func TestValidateGenesisAlwaysOK(t *testing.T) {
	h := newFakeHost()
	a := newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address()))

	genesis := &types.Block{Number: 0, Miner: common.HexToAddress("0xdead"), Extra: []byte("garbage")}
	verdict, err := v.Validate(context.Background(), genesis)
	require.NoError(t, err)
	assert.Equal(t, GenesisOK, verdict.Status)
	assert.True(t, verdict.OK())
	assert.Zero(t, h.count("TransactionByHash"))
}

func TestValidateValidBlock(t *testing.T) {
	h := newFakeHost()
	a, b := newKey(t), newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address(), b.Address()))

	blk := proofBlock(t, h, a)
	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, Valid, verdict.Status, verdict.Reason)
	assert.True(t, verdict.OK())
	assert.Equal(t, a.Address(), verdict.Recovered)
	assert.Equal(t, uint64(0), verdict.Reference)
	assert.Equal(t, blk.Transactions[0], verdict.ProofTx)
}

func TestValidateAuthorityGate(t *testing.T) {
	h := newFakeHost()
	a, c := newKey(t), newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address()))

	// a perfectly formed proof does not help an outsider
	blk := proofBlock(t, h, c)
	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, NotAuthority, verdict.Status)
	assert.Equal(t, ReasonNotAuthorized, verdict.Reason)
	assert.False(t, verdict.OK())
	assert.Zero(t, h.count("TransactionByHash"))
}

func TestValidateNoProof(t *testing.T) {
	a := newKey(t)

	tests := []struct {
		name   string
		build  func(t *testing.T, h *fakeHost) *types.Block
		reason string
	}{
		{
			name: "no transactions",
			build: func(t *testing.T, h *fakeHost) *types.Block {
				return h.seal(a.Address(), make([]byte, 8))
			},
			reason: ReasonNoTransactions,
		},
		{
			name: "extra too short",
			build: func(t *testing.T, h *fakeHost) *types.Block {
				tx, _ := proofTx(t, a, a.Address(), h.chain[0], 0)
				return h.seal(a.Address(), tx.Hash[:4], tx)
			},
			reason: ReasonExtraTooShort,
		},
		{
			name: "prefix matches nothing",
			build: func(t *testing.T, h *fakeHost) *types.Block {
				tx, header := proofTx(t, a, a.Address(), h.chain[0], 0)
				extra, err := sigsplit.V1.EncodeExtra(common.HexToHash("0xffffffff"), header)
				require.NoError(t, err)
				return h.seal(a.Address(), extra, tx)
			},
			reason: ReasonNoMatchingTx,
		},
		{
			name: "unparsable payload",
			build: func(t *testing.T, h *fakeHost) *types.Block {
				tx := &types.Transaction{From: a.Address(), Payload: []byte{0xde, 0xad, 0xbe, 0xef}}
				tx.Hash = txHash(tx.From, 0, tx.Payload)
				extra, err := sigsplit.V1.EncodeExtra(tx.Hash, []byte{1, 2, 3, 4})
				require.NoError(t, err)
				return h.seal(a.Address(), extra, tx)
			},
			reason: ReasonMalformedProof,
		},
		{
			name: "reference is not an ancestor",
			build: func(t *testing.T, h *fakeHost) *types.Block {
				future := &types.Block{Number: 1, Hash: common.HexToHash("0x01")}
				tx, header := proofTx(t, a, a.Address(), future, 0)
				extra, err := sigsplit.V1.EncodeExtra(tx.Hash, header)
				require.NoError(t, err)
				return h.seal(a.Address(), extra, tx)
			},
			reason: ReasonNonAncestor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHost()
			v := newTestValidator(t, h, newSet(t, a.Address()))
			verdict, err := v.Validate(context.Background(), tt.build(t, h))
			require.NoError(t, err)
			assert.Equal(t, NoProof, verdict.Status)
			assert.Equal(t, tt.reason, verdict.Reason)
			assert.False(t, verdict.OK())
		})
	}
}

func TestValidateSenderSpoofShortCircuits(t *testing.T) {
	h := newFakeHost()
	a, b := newKey(t), newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address(), b.Address()))

	// B's honest proof, claimed by a block A sealed
	tx, header := proofTx(t, b, b.Address(), h.chain[0], 0)
	extra, err := sigsplit.V1.EncodeExtra(tx.Hash, header)
	require.NoError(t, err)
	blk := h.seal(a.Address(), extra, tx)

	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, NoProof, verdict.Status)
	assert.Equal(t, ReasonSenderMismatch, verdict.Reason)
	assert.Equal(t, types.Identity{}, verdict.Recovered)
	assert.Zero(t, h.count("BlockByNumber"), "no signature recovery after a sender mismatch")
	assert.Equal(t, 1, h.count("TransactionByHash"))
}

func TestValidateSenderSpoofStopsScan(t *testing.T) {
	h := newFakeHost()
	a, b := newKey(t), newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address(), b.Address()))

	spoof, header := proofTx(t, b, b.Address(), h.chain[0], 0)
	// a later tx by A carrying the same prefix is never looked at
	own := *spoof
	own.From = a.Address()
	own.Hash = common.BytesToHash(append(common.CopyBytes(spoof.Hash[:4]), make([]byte, 28)...))
	extra, err := sigsplit.V1.EncodeExtra(spoof.Hash, header)
	require.NoError(t, err)
	blk := h.seal(a.Address(), extra, spoof, &own)

	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, ReasonSenderMismatch, verdict.Reason)
	assert.Equal(t, 1, h.count("TransactionByHash"))
}

func TestValidateMixAndMatchForgery(t *testing.T) {
	h := newFakeHost()
	a, b := newKey(t), newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address(), b.Address()))
	genesis := h.chain[0]

	txA, headerA := proofTx(t, a, a.Address(), genesis, 0)
	txB, _ := proofTx(t, b, b.Address(), genesis, 0)

	// A's header fragment with B's payload fragment, sent from A
	forged := &types.Transaction{From: a.Address(), Payload: txB.Payload}
	forged.Hash = txHash(forged.From, 1, forged.Payload)
	extra, err := sigsplit.V1.EncodeExtra(forged.Hash, headerA)
	require.NoError(t, err)
	blk := h.seal(a.Address(), extra, forged, txA)

	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, BadSignature, verdict.Status)
	assert.NotEqual(t, a.Address(), verdict.Recovered)
	assert.False(t, verdict.OK())
}

func TestValidateForeignSignature(t *testing.T) {
	h := newFakeHost()
	a, b := newKey(t), newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address(), b.Address()))

	// B publishes a proof signed with A's key
	tx, header := proofTx(t, a, b.Address(), h.chain[0], 0)
	extra, err := sigsplit.V1.EncodeExtra(tx.Hash, header)
	require.NoError(t, err)
	blk := h.seal(b.Address(), extra, tx)

	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, BadSignature, verdict.Status)
	assert.Equal(t, ReasonInvalidSig, verdict.Reason)
	assert.Equal(t, a.Address(), verdict.Recovered)
}

func TestValidateCachesVerdicts(t *testing.T) {
	h := newFakeHost()
	a := newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address()))
	blk := proofBlock(t, h, a)

	for i := 0; i < 3; i++ {
		verdict, err := v.Validate(context.Background(), blk)
		require.NoError(t, err)
		assert.Equal(t, Valid, verdict.Status)
	}
	assert.Equal(t, 1, h.count("TransactionByHash"))

	// swapping the set drops memoised verdicts
	v.SetAuthorities(newSet(t, newKey(t).Address()))
	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, NotAuthority, verdict.Status)
}

func TestValidateHostErrorIsNotAVerdict(t *testing.T) {
	h := newFakeHost()
	a := newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address()))
	blk := proofBlock(t, h, a)

	h.txErr = errors.New("connection refused")
	_, err := v.Validate(context.Background(), blk)
	require.Error(t, err)
	var he *HostError
	assert.True(t, errors.As(err, &he))

	// the failure was not cached
	h.txErr = nil
	verdict, err := v.Validate(context.Background(), blk)
	require.NoError(t, err)
	assert.Equal(t, Valid, verdict.Status)
}

func TestValidateConcurrent(t *testing.T) {
	h := newFakeHost()
	a, b := newKey(t), newKey(t)
	v := newTestValidator(t, h, newSet(t, a.Address(), b.Address()))
	blocks := []*types.Block{proofBlock(t, h, a), proofBlock(t, h, b), proofBlock(t, h, a)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, blk := range blocks {
				verdict, err := v.Validate(context.Background(), blk)
				assert.NoError(t, err)
				assert.Equal(t, Valid, verdict.Status)
			}
		}()
	}
	wg.Wait()
}
