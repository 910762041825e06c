// Package tools provides the command trust boundary for the search agent.
//
// Information Hiding:
// - Policy rules hidden behind CommandPolicy.Validate
// - Process execution details hidden behind Sandbox.Execute
// - Audit reporting hidden inside Runner
package tools

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPolicyDenied is returned when the policy rejects a command before execution.
	ErrPolicyDenied = errors.New("command denied by policy")
	// ErrTimeout is returned when a command exceeds its wall-clock bound.
	ErrTimeout = errors.New("command timed out")
	// ErrExecution is returned when a command could not be run at all.
	ErrExecution = errors.New("command execution failed")
)

// PolicyDeniedError carries the policy's reason for a denial.
type PolicyDeniedError struct {
	Command string
	Reason  string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("command denied: %s", e.Reason)
}

// Is makes errors.Is(err, ErrPolicyDenied) match.
func (e *PolicyDeniedError) Is(target error) bool {
	return target == ErrPolicyDenied
}

const (
	// DefaultTimeout bounds a single command.
	DefaultTimeout = 60 * time.Second
	// DefaultOutputLimit caps captured output in bytes, marker included.
	DefaultOutputLimit = 10000
)

// ExecConfig holds sandbox execution limits.
// The zero value is safe: timeout defaults to 60s and output to 10000 bytes.
type ExecConfig struct {
	TimeoutDuration time.Duration
	MaxOutputBytes  int
}

// Timeout returns the configured timeout, defaulting to 60 seconds if zero.
func (c *ExecConfig) Timeout() time.Duration {
	if c == nil || c.TimeoutDuration <= 0 {
		return DefaultTimeout
	}
	return c.TimeoutDuration
}

// OutputLimit returns the output cap, defaulting to 10000 bytes if zero.
// The cap never drops below the length of the truncation marker.
func (c *ExecConfig) OutputLimit() int {
	if c == nil || c.MaxOutputBytes <= 0 {
		return DefaultOutputLimit
	}
	if c.MaxOutputBytes < len(TruncationMarker) {
		return len(TruncationMarker)
	}
	return c.MaxOutputBytes
}
