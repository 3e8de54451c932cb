package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"tx2poa/authority"
	"tx2poa/config"
	"tx2poa/consensus"
	"tx2poa/hostnode"
	"tx2poa/interfaces"
	"tx2poa/logs"
	"tx2poa/stats"
	"tx2poa/utils"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Attach to a geth node and validate (and, as an authority, author) every block",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc", Usage: "geth RPC endpoint (http, ws or IPC path)", EnvVars: []string{"TX2POA_RPC"}},
			&cli.StringFlag{Name: "authorities", Usage: "authority list file (JSON array or authorities.js)", EnvVars: []string{"TX2POA_AUTHORITIES"}},
			&cli.StringFlag{Name: "role", Usage: "auto, authority or minion", EnvVars: []string{"TX2POA_ROLE"}},
			&cli.StringFlag{Name: "account", Usage: "unlocked node account to sign with", EnvVars: []string{"TX2POA_ACCOUNT"}},
			&cli.StringFlag{Name: "private-key", Usage: "sign locally with this hex or WIF key", EnvVars: []string{"TX2POA_PRIVATE_KEY"}},
			&cli.StringFlag{Name: "schedule", Usage: "miner resume schedule: legacy, modulo or always"},
			&cli.StringFlag{Name: "rollback", Usage: "rollback target: high-water-mark or parent"},
			&cli.BoolFlag{Name: "evict", Usage: "drop authorities locally after a bad signature"},
			&cli.DurationFlag{Name: "debounce", Usage: "wait before resuming the miner"},
			&cli.DurationFlag{Name: "poll", Usage: "head polling interval"},
			&cli.BoolFlag{Name: "verdicts", Usage: "print every verdict to stdout as a JSON line"},
		},
		Action: runNode,
	}
}

func runNode(c *cli.Context) error {
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
		return fmt.Errorf("authority list: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := hostnode.Dial(ctx, cfg.Node.RPCEndpoint, cfg.Node.CallTimeout.Std())
	if err != nil {
		return err
	}
	defer node.Close()

	signer, err := resolveSigner(ctx, cfg, node)
	if err != nil {
		logs.Warn("no signing account: %v", err)
		signer = nil
	}
	role, err := consensus.ResolveRole(cfg.Authority.Role, set, signer)
	if err != nil {
		return err
	}
	self := ""
	if signer != nil {
		self = signer.Address().Hex()
	}
	logs.SetPrefix(role.String(), self)
	logs.Info("authorities: %v", set.Strings())

	st := stats.NewStats()
	events := consensus.NewEventBus()
	if c.Bool("verdicts") {
		events.Subscribe(consensus.EventVerdict, verdictLines(os.Stdout))
	}
	sup, err := newSupervisor(node, signer, role, set, cfg, st, events)
	if err != nil {
		return err
	}
	if role == consensus.RoleAuthority {
		consensus.EnsureAuthorityAccount(ctx, node, signer)
	}

	go reportStats(ctx, st, cfg.Supervisor.StatsInterval.Std())
	err = sup.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logs.Info("shutting down, stats: %s", st.String())
		return nil
	}
	return err
}

// resolveSigner prefers a local key, then the configured node account, then
// the node's first account. A local key also signs the carrier txs, which
// then reach the node raw.
func resolveSigner(ctx context.Context, cfg *config.Config, node *hostnode.RPCNode) (interfaces.Signer, error) {
	if cfg.Authority.PrivateKey != "" {
		km, err := utils.NewKeyManager(cfg.Authority.PrivateKey)
		if err != nil {
			return nil, &consensus.ConfigError{Reason: "private key", Err: err}
		}
		node.UseLocalSigner(km)
		return km, nil
	}
	if cfg.Authority.Account != "" {
		if !common.IsHexAddress(cfg.Authority.Account) {
			return nil, &consensus.ConfigError{Reason: fmt.Sprintf("bad account %q", cfg.Authority.Account)}
		}
		return hostnode.NewRPCSigner(node.Client(), common.HexToAddress(cfg.Authority.Account)), nil
	}
	accounts, err := node.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, consensus.ErrNoIdentity
	}
	return hostnode.NewRPCSigner(node.Client(), accounts[0]), nil
}
