package hostnode

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"tx2poa/types"
)

// TxSigner signs carrier transactions for an account the host does not hold.
type TxSigner interface {
	Address() types.Identity
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)
}

// UseLocalSigner makes the node build and sign carrier txs for s's account
// and hand them over with eth_sendRawTransaction. geth refuses
// eth_sendTransaction for accounts missing from its keystore.
func (n *RPCNode) UseLocalSigner(s TxSigner) {
	n.local = s
}

func (n *RPCNode) chain(ctx context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.chainID != nil {
		return n.chainID, nil
	}
	var id hexutil.Big
	if err := n.call(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	n.chainID = id.ToInt()
	return n.chainID, nil
}

// fees returns a gas price for pre-London chains, or a fee cap and tip
// once the head carries a base fee.
func (n *RPCNode) fees(ctx context.Context) (price, feeCap, tip *big.Int, err error) {
	var head *rpcBlock
	if err := n.call(ctx, &head, "eth_getBlockByNumber", "latest", false); err != nil {
		return nil, nil, nil, err
	}
	if head == nil || head.BaseFee == nil {
		var gp hexutil.Big
		if err := n.call(ctx, &gp, "eth_gasPrice"); err != nil {
			return nil, nil, nil, err
		}
		return gp.ToInt(), nil, nil, nil
	}
	var t hexutil.Big
	if err := n.call(ctx, &t, "eth_maxPriorityFeePerGas"); err != nil {
		return nil, nil, nil, err
	}
	tip = t.ToInt()
	feeCap = new(big.Int).Mul(head.BaseFee.ToInt(), big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return nil, feeCap, tip, nil
}

func (n *RPCNode) submitRaw(ctx context.Context, req *types.TxRequest) (common.Hash, error) {
	from := n.local.Address()
	if req.From != from {
		return common.Hash{}, fmt.Errorf("sender %s is not the local account %s", req.From.Hex(), from.Hex())
	}
	to := req.To
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	var nonce hexutil.Uint64
	if err := n.call(ctx, &nonce, "eth_getTransactionCount", from, "pending"); err != nil {
		return common.Hash{}, err
	}
	var gas hexutil.Uint64
	estimate := sendTxArgs{From: from, To: &to, Value: (*hexutil.Big)(value), Data: req.Payload}
	if err := n.call(ctx, &gas, "eth_estimateGas", estimate); err != nil {
		return common.Hash{}, err
	}
	price, feeCap, tip, err := n.fees(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	chainID, err := n.chain(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	var tx *ethtypes.Transaction
	if feeCap != nil {
		tx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID: chainID, Nonce: uint64(nonce), GasTipCap: tip, GasFeeCap: feeCap, Gas: uint64(gas),
			To: &to, Value: value, Data: req.Payload,
		})
	} else {
		tx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce: uint64(nonce), GasPrice: price, Gas: uint64(gas),
			To: &to, Value: value, Data: req.Payload,
		})
	}
	return n.sendRaw(ctx, tx, chainID)
}

// resendRaw signs the same nonce again with every fee bumped.
func (n *RPCNode) resendRaw(ctx context.Context, orig *rpcTx) (common.Hash, error) {
	chainID, err := n.chain(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	value := new(big.Int)
	if orig.Value != nil {
		value = orig.Value.ToInt()
	}
	var tx *ethtypes.Transaction
	if orig.dynamicFee() {
		tx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     uint64(orig.Nonce),
			GasTipCap: bumpFee(orig.MaxPriorityFeePerGas),
			GasFeeCap: bumpFee(orig.MaxFeePerGas),
			Gas:       uint64(orig.Gas),
			To:        orig.To,
			Value:     value,
			Data:      orig.Input,
		})
	} else {
		tx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    uint64(orig.Nonce),
			GasPrice: bumpFee(orig.GasPrice),
			Gas:      uint64(orig.Gas),
			To:       orig.To,
			Value:    value,
			Data:     orig.Input,
		})
	}
	return n.sendRaw(ctx, tx, chainID)
}

func (n *RPCNode) sendRaw(ctx context.Context, tx *ethtypes.Transaction, chainID *big.Int) (common.Hash, error) {
	signed, err := n.local.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign carrier tx: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return common.Hash{}, err
	}
	var h common.Hash
	if err := n.call(ctx, &h, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return common.Hash{}, err
	}
	return h, nil
}
