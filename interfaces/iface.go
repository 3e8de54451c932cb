package interfaces

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"tx2poa/types"
)

// ErrNotFound is returned by hosts for unknown blocks and transactions.
var ErrNotFound = errors.New("not found")

// ============================================
// Host node (read side)
// ============================================

// ChainReader is what the PoA layer reads from the host node.
type ChainReader interface {
	// CurrentHead returns the block at the head of the local chain.
	CurrentHead(ctx context.Context) (*types.Block, error)
	// BlockByNumber returns the canonical block at height n.
	BlockByNumber(ctx context.Context, n uint64) (*types.Block, error)
	// TransactionByHash returns a transaction, included or pending.
	TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, error)
	// PendingTransactions lists this node's outstanding transactions.
	PendingTransactions(ctx context.Context) ([]*types.Transaction, error)
}

// ============================================
// Host node (write / control side)
// ============================================

// ChainController is the set of side effects the PoA layer requests.
type ChainController interface {
	// SubmitTransaction signs and broadcasts req, returning its hash.
	SubmitTransaction(ctx context.Context, req *types.TxRequest) (common.Hash, error)
	// ResendTransaction re-broadcasts an already submitted transaction. The
	// returned hash differs from tx.Hash only if the host had to replace it.
	ResendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	// SetNextBlockExtra sets the extra-data of blocks this node seals.
	SetNextBlockExtra(ctx context.Context, extra []byte) (bool, error)
	StartMining(ctx context.Context) error
	StopMining(ctx context.Context) error
	// TruncateChain rewinds the local head to block n.
	TruncateChain(ctx context.Context, n uint64) error
}

// HostNode is a full host.
type HostNode interface {
	ChainReader
	ChainController
}

// Signer produces eth_sign style signatures ([R || S || V], V in 27/28) over
// the text hash of a 32-byte digest.
type Signer interface {
	Address() types.Identity
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
}

// Etherbaser is implemented by hosts that let the PoA layer choose the
// coinbase of sealed blocks.
type Etherbaser interface {
	SetEtherbase(ctx context.Context, addr types.Identity) (bool, error)
}

// IdentityHinter is implemented by hosts that can describe themselves
// (enode URL), used as the proof's identity hint.
type IdentityHinter interface {
	IdentityHint(ctx context.Context) (string, error)
}
