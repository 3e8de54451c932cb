package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"tx2poa/authority"
	"tx2poa/config"
	"tx2poa/consensus"
	"tx2poa/db"
	"tx2poa/hostnode"
	"tx2poa/logs"
	"tx2poa/stats"
	"tx2poa/types"
	"tx2poa/utils"
)

func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run an in-process network of authorities, optionally with a rogue miner",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "authorities", Usage: "number of authority nodes", Value: 2},
			&cli.BoolFlag{Name: "rogue", Usage: "add a miner that is not an authority"},
			&cli.Uint64Flag{Name: "blocks", Usage: "stop once the chain reaches this height", Value: 20},
			&cli.DurationFlag{Name: "block-time", Usage: "interval between sealing attempts", Value: 200 * time.Millisecond},
			&cli.DurationFlag{Name: "debounce", Usage: "wait before resuming the miner", Value: 0},
			&cli.DurationFlag{Name: "poll", Usage: "head polling interval", Value: 20 * time.Millisecond},
			&cli.StringFlag{Name: "schedule", Usage: "miner resume schedule: legacy, modulo or always", Value: config.ScheduleModulo},
			&cli.StringFlag{Name: "rollback", Usage: "rollback target: high-water-mark or parent"},
			&cli.BoolFlag{Name: "evict", Usage: "drop authorities locally after a bad signature"},
			&cli.StringFlag{Name: "db", Usage: "badger directory for the simulated chain, in memory when empty"},
			&cli.Int64Flag{Name: "seed", Usage: "seed for picking the sealing node", Value: 1},
			&cli.BoolFlag{Name: "verdicts", Usage: "print every verdict to stdout as a JSON line"},
		},
		Action: simulate,
	}
}

func simulate(c *cli.Context) error {
	if c.Int("authorities") < 1 {
		return fmt.Errorf("need at least one authority")
	}
	cfg, err := loadSimConfig(c)
	if err != nil {
		return err
	}

	store, err := db.OpenChainStore(c.String("db"))
	if err != nil {
		return err
	}
	defer store.Close()
	ledger, err := hostnode.NewLedger(store, c.Int64("seed"))
	if err != nil {
		return err
	}

	keys := make([]*utils.KeyManager, c.Int("authorities"))
	ids := make([]types.Identity, len(keys))
	for i := range keys {
		if keys[i], err = utils.GenerateKeyManager(); err != nil {
			return err
		}
		ids[i] = keys[i].Address()
	}
	set, err := authority.NewSet(ids)
	if err != nil {
		return err
	}
	logs.SetPrefix("SIM", "")
	logs.Info("authorities: %v", set.Strings())

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := stats.NewStats()
	events := consensus.NewEventBus()
	if c.Bool("verdicts") {
		events.Subscribe(consensus.EventVerdict, verdictLines(os.Stdout))
	}
	var rollbacks atomic.Int64
	events.Subscribe(consensus.EventRollback, func(e consensus.Event) {
		rollbacks.Add(1)
	})
	events.Subscribe(consensus.EventDemoted, func(e consensus.Event) {
		logs.Warn("an authority was demoted: %v", e.Err)
	})
	var wg sync.WaitGroup
	for i, km := range keys {
		node := hostnode.NewSimNode(ledger, fmt.Sprintf("authority-%d", i), km.Address())
		sup, err := newSupervisor(node, km, consensus.RoleAuthority, set, cfg, st, events)
		if err != nil {
			return err
		}
		consensus.EnsureAuthorityAccount(ctx, node, km)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logs.Error("supervisor %s: %v", node.Name(), err)
			}
		}()
	}
	if c.Bool("rogue") {
		km, err := utils.GenerateKeyManager()
		if err != nil {
			return err
		}
		rogue := hostnode.NewSimNode(ledger, "rogue", km.Address())
		if err := rogue.StartMining(ctx); err != nil {
			return err
		}
		logs.Info("rogue miner %s", km.Address().Hex())
	}

	go reportStats(ctx, st, cfg.Supervisor.StatsInterval.Std())
	err = sealUntil(ctx, ledger, c.Uint64("blocks"), c.Duration("block-time"))
	cancel()
	wg.Wait()

	head, herr := store.Head()
	if herr == nil {
		logs.Info("simulation done at height %d after %d rollback(s), stats: %s", head.Number, rollbacks.Load(), st.String())
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadSimConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFromFile(c.String("config"))
	if err != nil {
		return nil, err
	}
	cfg.Author.MinerDebounce = config.Duration(c.Duration("debounce"))
	cfg.Author.Schedule = c.String("schedule")
	cfg.Supervisor.PollInterval = config.Duration(c.Duration("poll"))
	if c.IsSet("rollback") {
		cfg.Supervisor.RollbackTo = c.String("rollback")
	}
	cfg.Supervisor.EvictOnBadSignature = c.Bool("evict")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// sealUntil lets the ledger seal a block every interval until the chain
// reaches height.
func sealUntil(ctx context.Context, ledger *hostnode.Ledger, height uint64, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		b, err := ledger.Seal(ctx)
		if err != nil {
			return err
		}
		if b == nil {
			continue
		}
		logs.Debug("sealed block %d by %s", b.Number, logs.Short(b.Miner.Hex()))
		if b.Number >= height {
			return nil
		}
	}
}
