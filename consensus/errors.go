package consensus

import (
	"errors"
	"fmt"
)

// ErrNoIdentity means no signing account is available to this process.
var ErrNoIdentity = errors.New("no authority account available")

// ConfigError is a start-up problem with the node's identity or role.
// It is fatal only when the authority role was requested explicitly.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthoringError means a proof could not be published. The supervisor
// reacts by dropping to the minion role; mining stays disabled.
type AuthoringError struct {
	Step string // sign, split, submit, set-extra
	Err  error
}

func (e *AuthoringError) Error() string {
	return fmt.Sprintf("authoring failed at %s: %v", e.Step, e.Err)
}

func (e *AuthoringError) Unwrap() error { return e.Err }

// HostError wraps a failed call to the host node. The round is retried.
type HostError struct {
	Op  string
	Err error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host %s: %v", e.Op, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

func hostErr(op string, err error) error {
	return &HostError{Op: op, Err: err}
}

// IsAuthoringError reports whether err carries an AuthoringError.
func IsAuthoringError(err error) bool {
	var ae *AuthoringError
	return errors.As(err, &ae)
}
