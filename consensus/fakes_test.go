package consensus

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"tx2poa/authority"
	"tx2poa/interfaces"
	"tx2poa/sigsplit"
	"tx2poa/types"
	"tx2poa/utils"
)

// fakeHost is an in-memory host with failure switches.
type fakeHost struct {
	mu        sync.Mutex
	chain     []*types.Block
	txs       map[common.Hash]*types.Transaction
	pool      []*types.Transaction
	extra     []byte
	mining    bool
	nextNonce uint64
	calls     map[string]int

	headErr      error
	txErr        error
	submitErr    error
	resendErr    error
	truncateErr  error
	refuseExtra  bool
	resendRehash bool
	truncations  []uint64
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		chain: []*types.Block{{Number: 0, Hash: crypto.Keccak256Hash([]byte("genesis"))}},
		txs:   make(map[common.Hash]*types.Transaction),
		calls: make(map[string]int),
	}
}

func (h *fakeHost) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func (h *fakeHost) truncated() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.truncations...)
}

func (h *fakeHost) isMining() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mining
}

func (h *fakeHost) currentExtra() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return common.CopyBytes(h.extra)
}

func (h *fakeHost) pooled() []*types.Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*types.Transaction(nil), h.pool...)
}

func (h *fakeHost) CurrentHead(context.Context) (*types.Block, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["CurrentHead"]++
	if h.headErr != nil {
		return nil, h.headErr
	}
	return h.chain[len(h.chain)-1], nil
}

func (h *fakeHost) BlockByNumber(_ context.Context, n uint64) (*types.Block, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["BlockByNumber"]++
	if n >= uint64(len(h.chain)) {
		return nil, interfaces.ErrNotFound
	}
	return h.chain[n], nil
}

func (h *fakeHost) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["TransactionByHash"]++
	if h.txErr != nil {
		return nil, h.txErr
	}
	tx, ok := h.txs[hash]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return tx, nil
}

func (h *fakeHost) PendingTransactions(context.Context) ([]*types.Transaction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["PendingTransactions"]++
	return append([]*types.Transaction(nil), h.pool...), nil
}

func (h *fakeHost) SubmitTransaction(_ context.Context, req *types.TxRequest) (common.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["SubmitTransaction"]++
	if h.submitErr != nil {
		return common.Hash{}, h.submitErr
	}
	to := req.To
	tx := &types.Transaction{From: req.From, To: &to, Nonce: h.nextNonce, Value: req.Value, Payload: req.Payload}
	h.nextNonce++
	tx.Hash = txHash(tx.From, tx.Nonce, tx.Payload)
	h.txs[tx.Hash] = tx
	h.pool = append(h.pool, tx)
	return tx.Hash, nil
}

func (h *fakeHost) ResendTransaction(_ context.Context, tx *types.Transaction) (common.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["ResendTransaction"]++
	if h.resendErr != nil {
		return common.Hash{}, h.resendErr
	}
	if !h.resendRehash {
		return tx.Hash, nil
	}
	for i, p := range h.pool {
		if p.Hash == tx.Hash {
			replaced := *p
			replaced.Hash = crypto.Keccak256Hash(p.Hash[:], []byte("resend"))
			h.pool[i] = &replaced
			h.txs[replaced.Hash] = &replaced
			return replaced.Hash, nil
		}
	}
	return tx.Hash, nil
}

func (h *fakeHost) SetNextBlockExtra(_ context.Context, extra []byte) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["SetNextBlockExtra"]++
	if h.refuseExtra {
		return false, nil
	}
	h.extra = common.CopyBytes(extra)
	return true, nil
}

func (h *fakeHost) StartMining(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["StartMining"]++
	h.mining = true
	return nil
}

func (h *fakeHost) StopMining(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["StopMining"]++
	h.mining = false
	return nil
}

func (h *fakeHost) TruncateChain(_ context.Context, n uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls["TruncateChain"]++
	if h.truncateErr != nil {
		return h.truncateErr
	}
	h.truncations = append(h.truncations, n)
	for _, b := range h.chain[n+1:] {
		for _, th := range b.Transactions {
			delete(h.txs, th)
		}
	}
	h.chain = h.chain[:n+1]
	return nil
}

// seal appends a block on top of the head. Sealed txs leave the pool.
func (h *fakeHost) seal(miner types.Identity, extra []byte, txs ...*types.Transaction) *types.Block {
	h.mu.Lock()
	defer h.mu.Unlock()
	parent := h.chain[len(h.chain)-1]
	b := &types.Block{
		Number:     parent.Number + 1,
		ParentHash: parent.Hash,
		Miner:      miner,
		Extra:      common.CopyBytes(extra),
	}
	parts := [][]byte{parent.Hash[:], miner[:], extra}
	for _, tx := range txs {
		h.txs[tx.Hash] = tx
		b.Transactions = append(b.Transactions, tx.Hash)
		parts = append(parts, tx.Hash[:])
		for i, p := range h.pool {
			if p.Hash == tx.Hash {
				h.pool = append(h.pool[:i], h.pool[i+1:]...)
				break
			}
		}
	}
	b.Hash = crypto.Keccak256Hash(parts...)
	h.chain = append(h.chain, b)
	return b
}

// mineOwn seals the pool with the host's current extra data, the way the
// host miner would.
func (h *fakeHost) mineOwn(miner types.Identity) *types.Block {
	return h.seal(miner, h.currentExtra(), h.pooled()...)
}

func txHash(from types.Identity, nonce uint64, payload []byte) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256Hash(from[:], n[:], payload)
}

func newKey(t *testing.T) *utils.KeyManager {
	t.Helper()
	km, err := utils.GenerateKeyManager()
	require.NoError(t, err)
	return km
}

func newSet(t *testing.T, ids ...types.Identity) *authority.Set {
	t.Helper()
	set, err := authority.NewSet(ids)
	require.NoError(t, err)
	return set
}

// proofTx builds the companion tx signer would publish over ref.
func proofTx(t *testing.T, signer *utils.KeyManager, from types.Identity, ref *types.Block, nonce uint64) (*types.Transaction, []byte) {
	t.Helper()
	sig, err := signer.SignHash(context.Background(), ref.Hash)
	require.NoError(t, err)
	header, fragment, err := sigsplit.V1.Split(sig)
	require.NoError(t, err)
	payload, err := (&types.ProofPayload{SigFragment: fragment, BlockNumber: ref.Number}).Encode()
	require.NoError(t, err)
	to := from
	return &types.Transaction{
		Hash:    txHash(from, nonce, payload),
		From:    from,
		To:      &to,
		Nonce:   nonce,
		Value:   big.NewInt(1),
		Payload: payload,
	}, header
}

// proofBlock seals a correctly proven block by km on top of the head.
func proofBlock(t *testing.T, h *fakeHost, km *utils.KeyManager) *types.Block {
	t.Helper()
	ref, err := h.CurrentHead(context.Background())
	require.NoError(t, err)
	tx, header := proofTx(t, km, km.Address(), ref, ref.Number)
	extra, err := sigsplit.V1.EncodeExtra(tx.Hash, header)
	require.NoError(t, err)
	return h.seal(km.Address(), extra, tx)
}

func newTestValidator(t *testing.T, h *fakeHost, set *authority.Set) *Validator {
	t.Helper()
	v, err := NewValidator(h, NewAuthorityRef(set), ValidatorConfig{Layout: sigsplit.V1})
	require.NoError(t, err)
	return v
}

type countingSigner struct {
	interfaces.Signer
	mu  sync.Mutex
	n   int
	err error
}

func (c *countingSigner) SignHash(ctx context.Context, h common.Hash) ([]byte, error) {
	c.mu.Lock()
	c.n++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c.Signer.SignHash(ctx, h)
}

func (c *countingSigner) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
