package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is an account address derived from a secp256k1 public key.
type Identity = common.Address

// Block is the read-only view of a host block the PoA layer works with.
type Block struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Miner        Identity
	Extra        []byte
	Transactions []common.Hash
}

// IsGenesis reports whether the block is the chain's first block.
func (b *Block) IsGenesis() bool {
	return b.Number == 0
}

// Transaction is the read-only view of a host transaction.
type Transaction struct {
	Hash    common.Hash
	From    Identity
	To      *Identity
	Nonce   uint64
	Value   *big.Int
	Payload []byte
}

// TxRequest is what gets handed to the host to be signed and broadcast.
type TxRequest struct {
	From    Identity
	To      Identity
	Value   *big.Int
	Payload []byte
}
