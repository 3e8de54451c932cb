package hostnode

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tx2poa/db"
	"tx2poa/interfaces"
	"tx2poa/logs"
	"tx2poa/types"
)

var ErrUnknownTx = errors.New("unknown transaction")

// Ledger is an in-process network: one canonical chain kept in a ChainStore
// and one shared mempool. SimNodes attached to it play the hosts. Rolling
// back from any node rewinds the shared chain, and transactions of
// discarded blocks are dropped rather than returned to the pool.
type Ledger struct {
	mu      sync.Mutex
	store   *db.ChainStore
	mempool []*types.Transaction
	nonces  map[types.Identity]uint64
	nodes   []*SimNode
	rng     *rand.Rand
}

// sealHeader is hashed to give simulated blocks their identity.
type sealHeader struct {
	Number     uint64
	ParentHash common.Hash
	Miner      common.Address
	Extra      []byte
	TxHashes   []common.Hash
}

type txBody struct {
	From    common.Address
	To      *common.Address `rlp:"nil"`
	Nonce   uint64
	Value   *big.Int
	Payload []byte
}

// NewLedger writes a genesis block into store. seed fixes the choice of
// miner when several nodes mine at once.
func NewLedger(store *db.ChainStore, seed int64) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		nonces: make(map[types.Identity]uint64),
		rng:    rand.New(rand.NewSource(seed)),
	}
	if _, err := store.Head(); err == nil {
		return l, nil
	}
	genesis := &types.Block{Number: 0, Extra: []byte("tx2poa genesis")}
	genesis.Hash = hashHeader(genesis)
	if err := store.AppendBlock(genesis, nil); err != nil {
		return nil, fmt.Errorf("write genesis: %w", err)
	}
	return l, nil
}

func hashHeader(b *types.Block) common.Hash {
	enc, err := rlp.EncodeToBytes(&sealHeader{
		Number:     b.Number,
		ParentHash: b.ParentHash,
		Miner:      b.Miner,
		Extra:      b.Extra,
		TxHashes:   b.Transactions,
	})
	if err != nil {
		panic(err) // fixed-shape struct
	}
	return crypto.Keccak256Hash(enc)
}

func hashTx(tx *types.Transaction) common.Hash {
	enc, err := rlp.EncodeToBytes(&txBody{
		From:    tx.From,
		To:      tx.To,
		Nonce:   tx.Nonce,
		Value:   tx.Value,
		Payload: tx.Payload,
	})
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// Attach registers a node so it can be picked to seal blocks.
func (l *Ledger) Attach(n *SimNode) {
	l.mu.Lock()
	l.nodes = append(l.nodes, n)
	l.mu.Unlock()
}

func (l *Ledger) head() (*types.Block, error) {
	return l.store.Head()
}

func (l *Ledger) blockByNumber(n uint64) (*types.Block, error) {
	b, err := l.store.BlockByNumber(n)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%v: %w", err, interfaces.ErrNotFound)
	}
	return b, err
}

func (l *Ledger) transaction(h common.Hash) (*types.Transaction, error) {
	l.mu.Lock()
	for _, tx := range l.mempool {
		if tx.Hash == h {
			l.mu.Unlock()
			return tx, nil
		}
	}
	l.mu.Unlock()

	tx, _, err := l.store.Transaction(h)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%v: %w", err, interfaces.ErrNotFound)
	}
	return tx, err
}

func (l *Ledger) pendingFrom(from types.Identity) []*types.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*types.Transaction
	for _, tx := range l.mempool {
		if tx.From == from {
			out = append(out, tx)
		}
	}
	return out
}

func (l *Ledger) submit(req *types.TxRequest) common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	to := req.To
	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	tx := &types.Transaction{
		From:    req.From,
		To:      &to,
		Nonce:   l.nonces[req.From],
		Value:   value,
		Payload: common.CopyBytes(req.Payload),
	}
	tx.Hash = hashTx(tx)
	l.nonces[req.From]++
	l.mempool = append(l.mempool, tx)
	return tx.Hash
}

func (l *Ledger) inMempool(h common.Hash) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tx := range l.mempool {
		if tx.Hash == h {
			return true
		}
	}
	return false
}

func (l *Ledger) truncate(n uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed, err := l.store.Truncate(n)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		logs.Debug("ledger rewound to %d, dropped %d blocks", n, len(removed))
	}
	return nil
}

// Seal lets one mining node (picked at random) seal the whole mempool on
// top of the head. It returns nil when no node is mining.
func (l *Ledger) Seal(ctx context.Context) (*types.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var miners []*SimNode
	for _, n := range l.nodes {
		if n.Mining() {
			miners = append(miners, n)
		}
	}
	if len(miners) == 0 {
		return nil, nil
	}
	miner := miners[l.rng.Intn(len(miners))]

	parent, err := l.store.Head()
	if err != nil {
		return nil, err
	}
	b := &types.Block{
		Number:     parent.Number + 1,
		ParentHash: parent.Hash,
		Miner:      miner.Etherbase(),
		Extra:      miner.Extra(),
	}
	txs := l.mempool
	for _, tx := range txs {
		b.Transactions = append(b.Transactions, tx.Hash)
	}
	b.Hash = hashHeader(b)
	if err := l.store.AppendBlock(b, txs); err != nil {
		return nil, err
	}
	l.mempool = nil
	return b, nil
}
