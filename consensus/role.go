package consensus

import (
	"fmt"
	"strings"

	"tx2poa/authority"
	"tx2poa/config"
	"tx2poa/interfaces"
)

// Role is what a process does with a validated head.
type Role int

const (
	RoleMinion Role = iota
	RoleAuthority
)

func (r Role) String() string {
	if r == RoleAuthority {
		return "AUTHORITY"
	}
	return "MINION"
}

// ResolveRole picks the role for the requested mode. signer may be nil when
// no account could be loaded. An explicit authority request that cannot be
// honoured is a *ConfigError; in auto mode the process falls back to minion.
func ResolveRole(requested string, set *authority.Set, signer interfaces.Signer) (Role, error) {
	switch strings.ToLower(requested) {
	case config.RoleMinion:
		return RoleMinion, nil
	case config.RoleAuthority:
		if signer == nil {
			return RoleMinion, &ConfigError{Reason: "authority role requested", Err: ErrNoIdentity}
		}
		if !set.Contains(signer.Address()) {
			return RoleMinion, &ConfigError{Reason: fmt.Sprintf("account %s is not an authority", signer.Address().Hex())}
		}
		return RoleAuthority, nil
	case config.RoleAuto, "":
		if signer != nil && set.Contains(signer.Address()) {
			return RoleAuthority, nil
		}
		return RoleMinion, nil
	}
	return RoleMinion, &ConfigError{Reason: fmt.Sprintf("unknown role %q", requested)}
}
