// config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Roles a process can run in.
const (
	RoleAuto      = "auto" // authority if the own account is whitelisted
	RoleAuthority = "authority"
	RoleMinion    = "minion"
)

// Mining resume schedules.
const (
	ScheduleLegacy = "legacy" // height % (index+1) == index
	ScheduleModulo = "modulo" // height % count == index
	ScheduleAlways = "always"
)

// Rollback targets for an invalid head.
const (
	RollbackHighWaterMark = "high-water-mark"
	RollbackParent        = "parent"
)

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the main configuration.
type Config struct {
	Node       NodeConfig       `json:"node"`
	Authority  AuthorityConfig  `json:"authority"`
	Author     AuthorConfig     `json:"author"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Cache      CacheConfig      `json:"cache"`
	Log        LogConfig        `json:"log"`
}

// NodeConfig describes how to reach the host node.
type NodeConfig struct {
	RPCEndpoint string   `json:"rpcEndpoint"` // http://127.0.0.1:8545 or an IPC path
	CallTimeout Duration `json:"callTimeout"` // 10s
}

// AuthorityConfig holds the whitelist and this node's identity.
type AuthorityConfig struct {
	File       string   `json:"file"`       // authorities.json / authorities.js
	List       []string `json:"list"`       // inline list, used when File is empty
	Role       string   `json:"role"`       // auto | authority | minion
	Account    string   `json:"account"`    // unlocked host account; empty = first eth_accounts
	PrivateKey string   `json:"privateKey"` // sign locally instead of eth_sign
}

// AuthorConfig tunes proof authoring.
type AuthorConfig struct {
	MinerDebounce Duration `json:"minerDebounce"` // 5s
	Schedule      string   `json:"schedule"`      // legacy | modulo | always
	ProofTxValue  string   `json:"proofTxValue"`  // in ether, 1 wei by default
	IdentityHint  string   `json:"identityHint"`  // overrides the host's enode
}

// SupervisorConfig tunes the validation loop.
type SupervisorConfig struct {
	PollInterval        Duration `json:"pollInterval"`        // 1s
	RollbackTo          string   `json:"rollbackTo"`          // high-water-mark | parent
	EvictOnBadSignature bool     `json:"evictOnBadSignature"` // false
	StatsInterval       Duration `json:"statsInterval"`       // 20s, 0 disables
}

// CacheConfig sizes the validator caches.
type CacheConfig struct {
	Verdicts int `json:"verdicts"` // 1024
	Signers  int `json:"signers"`  // 4096
}

// LogConfig selects level and encoding.
type LogConfig struct {
	Level string `json:"level"` // info
	JSON  bool   `json:"json"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			RPCEndpoint: "http://127.0.0.1:8545",
			CallTimeout: Duration(10 * time.Second),
		},
		Authority: AuthorityConfig{
			File: "authorities.json",
			Role: RoleAuto,
		},
		Author: AuthorConfig{
			MinerDebounce: Duration(5 * time.Second),
			Schedule:      ScheduleLegacy,
			ProofTxValue:  "0.000000000000000001",
		},
		Supervisor: SupervisorConfig{
			PollInterval:  Duration(time.Second),
			RollbackTo:    RollbackHighWaterMark,
			StatsInterval: Duration(20 * time.Second),
		},
		Cache: CacheConfig{
			Verdicts: 1024,
			Signers:  4096,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile overlays a JSON file on the defaults. An empty path or a
// missing file yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Authority.Role {
	case RoleAuto, RoleAuthority, RoleMinion:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidConfig, c.Authority.Role)
	}
	switch c.Author.Schedule {
	case ScheduleLegacy, ScheduleModulo, ScheduleAlways:
	default:
		return fmt.Errorf("%w: unknown schedule %q", ErrInvalidConfig, c.Author.Schedule)
	}
	switch c.Supervisor.RollbackTo {
	case RollbackHighWaterMark, RollbackParent:
	default:
		return fmt.Errorf("%w: unknown rollback target %q", ErrInvalidConfig, c.Supervisor.RollbackTo)
	}
	if c.Supervisor.PollInterval <= 0 {
		return fmt.Errorf("%w: pollInterval must be positive", ErrInvalidConfig)
	}
	if c.Author.MinerDebounce < 0 {
		return fmt.Errorf("%w: minerDebounce must not be negative", ErrInvalidConfig)
	}
	if c.Cache.Verdicts <= 0 || c.Cache.Signers <= 0 {
		return fmt.Errorf("%w: cache sizes must be positive", ErrInvalidConfig)
	}
	if c.Authority.File == "" && len(c.Authority.List) == 0 {
		return fmt.Errorf("%w: no authority list configured", ErrInvalidConfig)
	}
	if _, err := c.ProofValueWei(); err != nil {
		return err
	}
	return nil
}

// ProofValueWei converts the ether-denominated ProofTxValue to wei.
func (c *Config) ProofValueWei() (*big.Int, error) {
	d, err := decimal.NewFromString(c.Author.ProofTxValue)
	if err != nil {
		return nil, fmt.Errorf("%w: proofTxValue: %v", ErrInvalidConfig, err)
	}
	wei := d.Shift(18)
	if wei.IsNegative() || !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%w: proofTxValue %s is not a whole number of wei", ErrInvalidConfig, c.Author.ProofTxValue)
	}
	return wei.BigInt(), nil
}
