package hostnode

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"tx2poa/interfaces"
	"tx2poa/sigsplit"
	"tx2poa/types"
)

// SimNode is one host attached to a Ledger. It owns a single account and
// only submits transactions from it.
type SimNode struct {
	ledger  *Ledger
	account types.Identity
	name    string

	mu        sync.Mutex
	mining    bool
	extra     []byte
	etherbase types.Identity
}

var (
	_ interfaces.HostNode       = (*SimNode)(nil)
	_ interfaces.Etherbaser     = (*SimNode)(nil)
	_ interfaces.IdentityHinter = (*SimNode)(nil)
)

// NewSimNode attaches a node for account to the ledger.
func NewSimNode(ledger *Ledger, name string, account types.Identity) *SimNode {
	n := &SimNode{ledger: ledger, account: account, name: name, etherbase: account}
	ledger.Attach(n)
	return n
}

func (n *SimNode) Name() string { return n.name }

func (n *SimNode) Mining() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mining
}

func (n *SimNode) Extra() []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return common.CopyBytes(n.extra)
}

func (n *SimNode) Etherbase() types.Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.etherbase
}

func (n *SimNode) CurrentHead(context.Context) (*types.Block, error) {
	return n.ledger.head()
}

func (n *SimNode) BlockByNumber(_ context.Context, num uint64) (*types.Block, error) {
	return n.ledger.blockByNumber(num)
}

func (n *SimNode) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, error) {
	return n.ledger.transaction(h)
}

// PendingTransactions lists queued transactions sent from this node's account.
func (n *SimNode) PendingTransactions(context.Context) ([]*types.Transaction, error) {
	return n.ledger.pendingFrom(n.account), nil
}

func (n *SimNode) SubmitTransaction(_ context.Context, req *types.TxRequest) (common.Hash, error) {
	if req.From != n.account {
		return common.Hash{}, fmt.Errorf("unknown account %s", req.From.Hex())
	}
	return n.ledger.submit(req), nil
}

// ResendTransaction keeps the queued tx as is; its hash does not change.
func (n *SimNode) ResendTransaction(_ context.Context, tx *types.Transaction) (common.Hash, error) {
	if !n.ledger.inMempool(tx.Hash) {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrUnknownTx, tx.Hash.Hex())
	}
	return tx.Hash, nil
}

func (n *SimNode) SetNextBlockExtra(_ context.Context, extra []byte) (bool, error) {
	if len(extra) > sigsplit.MaxExtraLen {
		return false, nil
	}
	n.mu.Lock()
	n.extra = common.CopyBytes(extra)
	n.mu.Unlock()
	return true, nil
}

func (n *SimNode) StartMining(context.Context) error {
	n.mu.Lock()
	n.mining = true
	n.mu.Unlock()
	return nil
}

func (n *SimNode) StopMining(context.Context) error {
	n.mu.Lock()
	n.mining = false
	n.mu.Unlock()
	return nil
}

func (n *SimNode) TruncateChain(_ context.Context, num uint64) error {
	return n.ledger.truncate(num)
}

func (n *SimNode) SetEtherbase(_ context.Context, addr types.Identity) (bool, error) {
	n.mu.Lock()
	n.etherbase = addr
	n.mu.Unlock()
	return true, nil
}

func (n *SimNode) IdentityHint(context.Context) (string, error) {
	return fmt.Sprintf("enode://%x@sim/%s", n.account[:], n.name), nil
}
