// Package hostnode adapts concrete hosts to the interfaces the PoA layer
// consumes: a geth node over JSON-RPC and an in-process simulated network.
package hostnode

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"tx2poa/interfaces"
	"tx2poa/types"
)

// resend bumps the gas price by this percentage so the pool accepts the
// replacement.
const resendPriceBump = 10

// RPCNode talks to a geth node through its JSON-RPC API. The node needs the
// eth, miner, debug and admin namespaces enabled. Carrier transactions are
// sent from the node's unlocked account, or signed here when a local signer
// is set.
type RPCNode struct {
	client  *rpc.Client
	timeout time.Duration
	local   TxSigner

	mu      sync.Mutex
	chainID *big.Int
}

var (
	_ interfaces.HostNode       = (*RPCNode)(nil)
	_ interfaces.Etherbaser     = (*RPCNode)(nil)
	_ interfaces.IdentityHinter = (*RPCNode)(nil)
)

// Dial connects to endpoint (http, ws or ipc path).
func Dial(ctx context.Context, endpoint string, timeout time.Duration) (*RPCNode, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return NewRPCNode(client, timeout), nil
}

func NewRPCNode(client *rpc.Client, timeout time.Duration) *RPCNode {
	return &RPCNode{client: client, timeout: timeout}
}

// Client exposes the underlying connection, shared with RPCSigner.
func (n *RPCNode) Client() *rpc.Client { return n.client }

func (n *RPCNode) Close() { n.client.Close() }

func (n *RPCNode) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	if err := n.client.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (n *RPCNode) block(ctx context.Context, tag interface{}) (*types.Block, error) {
	var b *rpcBlock
	if err := n.call(ctx, &b, "eth_getBlockByNumber", tag, false); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("block %v: %w", tag, interfaces.ErrNotFound)
	}
	return b.toBlock(), nil
}

func (n *RPCNode) CurrentHead(ctx context.Context) (*types.Block, error) {
	return n.block(ctx, "latest")
}

func (n *RPCNode) BlockByNumber(ctx context.Context, num uint64) (*types.Block, error) {
	return n.block(ctx, hexutil.Uint64(num))
}

func (n *RPCNode) rpcTransaction(ctx context.Context, h common.Hash) (*rpcTx, error) {
	var tx *rpcTx
	if err := n.call(ctx, &tx, "eth_getTransactionByHash", h); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("tx %s: %w", h.Hex(), interfaces.ErrNotFound)
	}
	return tx, nil
}

func (n *RPCNode) TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, error) {
	tx, err := n.rpcTransaction(ctx, h)
	if err != nil {
		return nil, err
	}
	return tx.toTransaction(), nil
}

func (n *RPCNode) PendingTransactions(ctx context.Context) ([]*types.Transaction, error) {
	var txs []*rpcTx
	if err := n.call(ctx, &txs, "eth_pendingTransactions"); err != nil {
		return nil, err
	}
	out := make([]*types.Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.toTransaction())
	}
	return out, nil
}

func (n *RPCNode) SubmitTransaction(ctx context.Context, req *types.TxRequest) (common.Hash, error) {
	if n.local != nil {
		return n.submitRaw(ctx, req)
	}
	to := req.To
	args := sendTxArgs{From: req.From, To: &to, Data: req.Payload}
	if req.Value != nil {
		args.Value = (*hexutil.Big)(req.Value)
	}
	var h common.Hash
	if err := n.call(ctx, &h, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}

// ResendTransaction replaces the pending tx with an identical one at a
// higher fee. The node assigns it a new hash. Legacy txs of the node's own
// accounts go through eth_resend; dynamic-fee ones are replaced by sending
// the same nonce again, since eth_resend only matches legacy txs.
func (n *RPCNode) ResendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	orig, err := n.rpcTransaction(ctx, tx.Hash)
	if err != nil {
		return common.Hash{}, err
	}
	if n.local != nil && orig.From == n.local.Address() {
		return n.resendRaw(ctx, orig)
	}
	nonce := orig.Nonce
	gas := orig.Gas
	args := sendTxArgs{
		From:  orig.From,
		To:    orig.To,
		Value: orig.Value,
		Data:  orig.Input,
		Nonce: &nonce,
		Gas:   &gas,
	}

	var h common.Hash
	if orig.dynamicFee() {
		args.MaxFeePerGas = (*hexutil.Big)(bumpFee(orig.MaxFeePerGas))
		args.MaxPriorityFeePerGas = (*hexutil.Big)(bumpFee(orig.MaxPriorityFeePerGas))
		if err := n.call(ctx, &h, "eth_sendTransaction", args); err != nil {
			return common.Hash{}, err
		}
		return h, nil
	}
	args.GasPrice = orig.GasPrice
	if err := n.call(ctx, &h, "eth_resend", args, (*hexutil.Big)(bumpFee(orig.GasPrice)), &gas); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}

// bumpFee raises a fee by resendPriceBump percent, and by at least one wei.
func bumpFee(fee *hexutil.Big) *big.Int {
	price := new(big.Int)
	if fee != nil {
		price = fee.ToInt()
	}
	bumped := new(big.Int).Mul(price, big.NewInt(100+resendPriceBump))
	bumped.Div(bumped, big.NewInt(100))
	if bumped.Cmp(price) <= 0 {
		bumped.Add(price, big.NewInt(1))
	}
	return bumped
}

func (n *RPCNode) SetNextBlockExtra(ctx context.Context, extra []byte) (bool, error) {
	var ok bool
	if err := n.call(ctx, &ok, "miner_setExtra", encodeExtraText(extra)); err != nil {
		return false, err
	}
	return ok, nil
}

func (n *RPCNode) StartMining(ctx context.Context) error {
	return n.call(ctx, nil, "miner_start")
}

func (n *RPCNode) StopMining(ctx context.Context) error {
	return n.call(ctx, nil, "miner_stop")
}

func (n *RPCNode) TruncateChain(ctx context.Context, num uint64) error {
	return n.call(ctx, nil, "debug_setHead", hexutil.Uint64(num))
}

func (n *RPCNode) SetEtherbase(ctx context.Context, addr types.Identity) (bool, error) {
	var ok bool
	if err := n.call(ctx, &ok, "miner_setEtherbase", addr); err != nil {
		return false, err
	}
	return ok, nil
}

func (n *RPCNode) IdentityHint(ctx context.Context) (string, error) {
	var info nodeInfo
	if err := n.call(ctx, &info, "admin_nodeInfo"); err != nil {
		return "", err
	}
	return info.Enode, nil
}

// Accounts lists the node's accounts; the first is the default authority.
func (n *RPCNode) Accounts(ctx context.Context) ([]common.Address, error) {
	var accs []common.Address
	if err := n.call(ctx, &accs, "eth_accounts"); err != nil {
		return nil, err
	}
	return accs, nil
}
