package hostnode

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"tx2poa/types"
)

// RPCSigner signs with an account unlocked on the node, via eth_sign.
type RPCSigner struct {
	client  *rpc.Client
	account types.Identity
}

func NewRPCSigner(client *rpc.Client, account types.Identity) *RPCSigner {
	return &RPCSigner{client: client, account: account}
}

func (s *RPCSigner) Address() types.Identity { return s.account }

// SignHash returns the node's eth_sign signature over hash.
func (s *RPCSigner) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	var sig hexutil.Bytes
	if err := s.client.CallContext(ctx, &sig, "eth_sign", s.account, hexutil.Bytes(hash[:])); err != nil {
		return nil, fmt.Errorf("eth_sign: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("eth_sign returned %d bytes", len(sig))
	}
	return sig, nil
}
