package db

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"tx2poa/types"
)

// ErrNotFound is returned for unknown blocks and transactions.
var ErrNotFound = errors.New("not found")

var (
	blockPrefix = []byte("block_") // block_<be64 number> -> rlp(blockRecord)
	hashPrefix  = []byte("hash_")  // hash_<block hash>   -> be64 number
	txPrefix    = []byte("tx_")    // tx_<tx hash>        -> rlp(txRecord)
	headKey     = []byte("meta_head")
)

type blockRecord struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Miner        common.Address
	Extra        []byte
	Transactions []common.Hash
}

type txRecord struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address `rlp:"nil"`
	Nonce       uint64
	Value       *big.Int
	Payload     []byte
	BlockNumber uint64
}

// ChainStore persists the blocks of a simulated host chain in BadgerDB.
type ChainStore struct {
	db *badger.DB
	mu sync.Mutex // serialises head updates
}

// OpenChainStore opens (or creates) a store at path. An empty path keeps
// everything in memory.
func OpenChainStore(path string) (*ChainStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// badger v2 does not create parent directories
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &ChainStore{db: db}, nil
}

func (s *ChainStore) Close() error {
	return s.db.Close()
}

func numberKey(n uint64) []byte {
	k := make([]byte, len(blockPrefix)+8)
	copy(k, blockPrefix)
	binary.BigEndian.PutUint64(k[len(blockPrefix):], n)
	return k
}

func prefixed(prefix []byte, h common.Hash) []byte {
	return append(append([]byte{}, prefix...), h[:]...)
}

func encodeUint(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// AppendBlock stores b as the new head together with its transactions. The
// block must extend the current head (or be genesis on an empty store).
func (s *ChainStore) AppendBlock(b *types.Block, txs []*types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		head, ok, err := readHead(txn)
		if err != nil {
			return err
		}
		switch {
		case !ok && b.Number != 0:
			return fmt.Errorf("first block must be genesis, got %d", b.Number)
		case ok && b.Number != head+1:
			return fmt.Errorf("block %d does not extend head %d", b.Number, head)
		}

		rec, err := rlp.EncodeToBytes(&blockRecord{
			Number:       b.Number,
			Hash:         b.Hash,
			ParentHash:   b.ParentHash,
			Miner:        b.Miner,
			Extra:        b.Extra,
			Transactions: b.Transactions,
		})
		if err != nil {
			return err
		}
		if err := txn.Set(numberKey(b.Number), rec); err != nil {
			return err
		}
		if err := txn.Set(prefixed(hashPrefix, b.Hash), encodeUint(b.Number)); err != nil {
			return err
		}
		for _, tx := range txs {
			enc, err := rlp.EncodeToBytes(&txRecord{
				Hash:        tx.Hash,
				From:        tx.From,
				To:          tx.To,
				Nonce:       tx.Nonce,
				Value:       valueOrZero(tx.Value),
				Payload:     tx.Payload,
				BlockNumber: b.Number,
			})
			if err != nil {
				return err
			}
			if err := txn.Set(prefixed(txPrefix, tx.Hash), enc); err != nil {
				return err
			}
		}
		return txn.Set(headKey, encodeUint(b.Number))
	})
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func readHead(txn *badger.Txn) (uint64, bool, error) {
	item, err := txn.Get(headKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(v), true, nil
}

func readBlock(txn *badger.Txn, n uint64) (*types.Block, error) {
	item, err := txn.Get(numberKey(n))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("block %d: %w", n, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var rec blockRecord
	if err := rlp.DecodeBytes(v, &rec); err != nil {
		return nil, err
	}
	return &types.Block{
		Number:       rec.Number,
		Hash:         rec.Hash,
		ParentHash:   rec.ParentHash,
		Miner:        rec.Miner,
		Extra:        rec.Extra,
		Transactions: rec.Transactions,
	}, nil
}

// Head returns the head block.
func (s *ChainStore) Head() (*types.Block, error) {
	var out *types.Block
	err := s.db.View(func(txn *badger.Txn) error {
		n, ok, err := readHead(txn)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("head: %w", ErrNotFound)
		}
		out, err = readBlock(txn, n)
		return err
	})
	return out, err
}

// BlockByNumber returns the block at height n.
func (s *ChainStore) BlockByNumber(n uint64) (*types.Block, error) {
	var out *types.Block
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = readBlock(txn, n)
		return err
	})
	return out, err
}

// BlockByHash resolves a block hash.
func (s *ChainStore) BlockByHash(h common.Hash) (*types.Block, error) {
	var out *types.Block
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(hashPrefix, h))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("block %s: %w", h.Hex(), ErrNotFound)
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		out, err = readBlock(txn, binary.BigEndian.Uint64(v))
		return err
	})
	return out, err
}

// Transaction returns an included transaction and the block number holding it.
func (s *ChainStore) Transaction(h common.Hash) (*types.Transaction, uint64, error) {
	var (
		out *types.Transaction
		num uint64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixed(txPrefix, h))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("tx %s: %w", h.Hex(), ErrNotFound)
		}
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var rec txRecord
		if err := rlp.DecodeBytes(v, &rec); err != nil {
			return err
		}
		out = &types.Transaction{
			Hash:    rec.Hash,
			From:    rec.From,
			To:      rec.To,
			Nonce:   rec.Nonce,
			Value:   rec.Value,
			Payload: rec.Payload,
		}
		num = rec.BlockNumber
		return nil
	})
	return out, num, err
}

// Truncate rewinds the head to n, deleting later blocks and the lookup
// entries of their transactions. The removed blocks are returned, oldest first.
func (s *ChainStore) Truncate(n uint64) ([]*types.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*types.Block
	err := s.db.Update(func(txn *badger.Txn) error {
		head, ok, err := readHead(txn)
		if err != nil {
			return err
		}
		if !ok || head <= n {
			return nil
		}
		for i := n + 1; i <= head; i++ {
			b, err := readBlock(txn, i)
			if err != nil {
				return err
			}
			for _, h := range b.Transactions {
				if err := txn.Delete(prefixed(txPrefix, h)); err != nil {
					return err
				}
			}
			if err := txn.Delete(prefixed(hashPrefix, b.Hash)); err != nil {
				return err
			}
			if err := txn.Delete(numberKey(i)); err != nil {
				return err
			}
			removed = append(removed, b)
		}
		return txn.Set(headKey, encodeUint(n))
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
