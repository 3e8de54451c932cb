package hostnode

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tx2poa/types"
)

// rpcBlock is the subset of eth_getBlockByNumber(n, false) we read.
type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         common.Hash    `json:"hash"`
	ParentHash   common.Hash    `json:"parentHash"`
	Miner        common.Address `json:"miner"`
	ExtraData    hexutil.Bytes  `json:"extraData"`
	Transactions []common.Hash  `json:"transactions"`
	BaseFee      *hexutil.Big   `json:"baseFeePerGas,omitempty"` // nil before London
}

func (b *rpcBlock) toBlock() *types.Block {
	return &types.Block{
		Number:       uint64(b.Number),
		Hash:         b.Hash,
		ParentHash:   b.ParentHash,
		Miner:        b.Miner,
		Extra:        decodeExtraText(b.ExtraData),
		Transactions: b.Transactions,
	}
}

// rpcTx is the subset of an RPC transaction object we read.
type rpcTx struct {
	Hash     common.Hash     `json:"hash"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	Value    *hexutil.Big    `json:"value"`
	Input    hexutil.Bytes   `json:"input"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`

	// set for dynamic-fee transactions
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`
}

func (t *rpcTx) dynamicFee() bool {
	return t.MaxFeePerGas != nil && t.MaxPriorityFeePerGas != nil
}

func (t *rpcTx) toTransaction() *types.Transaction {
	value := new(big.Int)
	if t.Value != nil {
		value = t.Value.ToInt()
	}
	return &types.Transaction{
		Hash:    t.Hash,
		From:    t.From,
		To:      t.To,
		Nonce:   uint64(t.Nonce),
		Value:   value,
		Payload: t.Input,
	}
}

// sendTxArgs mirrors the node's TransactionArgs.
type sendTxArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`

	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`
}

type nodeInfo struct {
	Enode string `json:"enode"`
}

// miner_setExtra takes a string, so binary extra data is sent as hex text
// and decoded again when blocks are read back.
func encodeExtraText(extra []byte) string {
	return hex.EncodeToString(extra)
}

func decodeExtraText(raw []byte) []byte {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return raw
	}
	out, err := hex.DecodeString(string(raw))
	if err != nil {
		return raw
	}
	return out
}
