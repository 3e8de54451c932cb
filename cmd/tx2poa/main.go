package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"tx2poa/config"
	"tx2poa/logs"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logs.Error("%v", err)
		logs.Sync()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tx2poa",
		Usage: "Proof-of-authority by split signatures, run next to a geth node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "JSON config file, missing fields keep their defaults",
				Value:   "tx2poa.json",
				EnvVars: []string{"TX2POA_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "trace, debug, verbose, info, warn or error",
				EnvVars: []string{"TX2POA_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Write JSON log lines",
				EnvVars: []string{"TX2POA_LOG_JSON"},
			},
		},
		Before: setupLogging,
		After: func(*cli.Context) error {
			logs.Sync()
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			verifyCommand(),
			simulateCommand(),
		},
	}
}

func setupLogging(c *cli.Context) error {
	cfg, err := config.LoadFromFile(c.String("config"))
	if err != nil {
		return err
	}
	levelName := cfg.Log.Level
	if c.IsSet("log-level") {
		levelName = c.String("log-level")
	}
	level, err := logs.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logs.SetLevel(level)

	if cfg.Log.JSON || c.Bool("log-json") {
		logs.UseJSON()
	}
	return nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFromFile(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("rpc") {
		cfg.Node.RPCEndpoint = c.String("rpc")
	}
	if c.IsSet("authorities") {
		cfg.Authority.File = c.String("authorities")
	}
	if c.IsSet("role") {
		cfg.Authority.Role = c.String("role")
	}
	if c.IsSet("account") {
		cfg.Authority.Account = c.String("account")
	}
	if c.IsSet("private-key") {
		cfg.Authority.PrivateKey = c.String("private-key")
	}
	if c.IsSet("schedule") {
		cfg.Author.Schedule = c.String("schedule")
	}
	if c.IsSet("debounce") {
		cfg.Author.MinerDebounce = config.Duration(c.Duration("debounce"))
	}
	if c.IsSet("poll") {
		cfg.Supervisor.PollInterval = config.Duration(c.Duration("poll"))
	}
	if c.IsSet("rollback") {
		cfg.Supervisor.RollbackTo = c.String("rollback")
	}
	if c.IsSet("evict") {
		cfg.Supervisor.EvictOnBadSignature = c.Bool("evict")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
