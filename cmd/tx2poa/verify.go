package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"tx2poa/authority"
	"tx2poa/consensus"
	"tx2poa/hostnode"
	"tx2poa/types"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Validate blocks of a running node and print the verdicts",
		ArgsUsage: "[number|latest] [to]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc", Usage: "geth RPC endpoint", EnvVars: []string{"TX2POA_RPC"}},
			&cli.StringFlag{Name: "authorities", Usage: "authority list file", EnvVars: []string{"TX2POA_AUTHORITIES"}},
			&cli.BoolFlag{Name: "json", Usage: "print verdicts as JSON lines"},
		},
		Action: verifyBlocks,
	}
}

type verdictJSON struct {
	Number    uint64 `json:"number"`
	Hash      string `json:"hash"`
	Miner     string `json:"miner"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	ProofTx   string `json:"proofTx,omitempty"`
	Reference uint64 `json:"reference,omitempty"`
	Recovered string `json:"recovered,omitempty"`
}

func verifyBlocks(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	list, err := cfg.AuthorityList()
	if err != nil {
		return err
	}
	set, err := authority.ParseSet(list)
	if err != nil {
		return err
	}

	ctx := c.Context
	node, err := hostnode.Dial(ctx, cfg.Node.RPCEndpoint, cfg.Node.CallTimeout.Std())
	if err != nil {
		return err
	}
	defer node.Close()

	validator, err := newValidator(node, consensus.NewAuthorityRef(set), cfg)
	if err != nil {
		return err
	}

	from, to, err := blockRange(ctx, node, c.Args().Get(0), c.Args().Get(1))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	invalid := 0
	for n := from; n <= to; n++ {
		b, err := node.BlockByNumber(ctx, n)
		if err != nil {
			return err
		}
		v, err := validator.Validate(ctx, b)
		if err != nil {
			return err
		}
		if !v.OK() {
			invalid++
		}
		if c.Bool("json") {
			if err := enc.Encode(toVerdictJSON(v)); err != nil {
				return err
			}
			continue
		}
		printVerdict(v)
	}
	if invalid > 0 {
		return cli.Exit(fmt.Sprintf("%d invalid block(s)", invalid), 2)
	}
	return nil
}

func blockRange(ctx context.Context, node *hostnode.RPCNode, fromArg, toArg string) (uint64, uint64, error) {
	head, err := node.CurrentHead(ctx)
	if err != nil {
		return 0, 0, err
	}
	parse := func(s string) (uint64, error) {
		if s == "" || s == "latest" {
			return head.Number, nil
		}
		return strconv.ParseUint(s, 10, 64)
	}
	from, err := parse(fromArg)
	if err != nil {
		return 0, 0, fmt.Errorf("block number: %w", err)
	}
	to := from
	if toArg != "" {
		if to, err = parse(toArg); err != nil {
			return 0, 0, fmt.Errorf("block number: %w", err)
		}
	}
	if to < from {
		return 0, 0, fmt.Errorf("empty range %d..%d", from, to)
	}
	return from, to, nil
}

func toVerdictJSON(v consensus.Verdict) verdictJSON {
	out := verdictJSON{
		Number: v.Number,
		Hash:   v.Hash.Hex(),
		Miner:  v.Miner.Hex(),
		Status: v.Status.String(),
		Reason: v.Reason,
	}
	if v.ProofTx != (common.Hash{}) {
		out.ProofTx = v.ProofTx.Hex()
		out.Reference = v.Reference
	}
	if v.Recovered != (types.Identity{}) {
		out.Recovered = v.Recovered.Hex()
	}
	return out
}

func printVerdict(v consensus.Verdict) {
	fmt.Printf("block %d %s miner %s: %s", v.Number, v.Hash.Hex(), v.Miner.Hex(), v.Status)
	if v.Reason != "" && v.Status != consensus.Valid {
		fmt.Printf(" (%s)", v.Reason)
	}
	fmt.Println()
}
