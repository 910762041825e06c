// Command Runner - the single gate between generated commands and processes.
//
// Information Hiding:
// - Validate-then-execute ordering hidden
// - Audit reporting hidden

package tools

import (
	"context"

	"github.com/richinex/docqa/audit"
)

// Runner validates each command with the policy, reports the attempt,
// executes approved commands in the sandbox and reports the outcome.
type Runner struct {
	policy  *CommandPolicy
	sandbox *Sandbox
	audit   audit.Log
}

// NewRunner creates a runner. A nil log discards audit records.
func NewRunner(policy *CommandPolicy, sandbox *Sandbox, log audit.Log) *Runner {
	if log == nil {
		log = audit.Discard
	}
	return &Runner{policy: policy, sandbox: sandbox, audit: log}
}

// NewWorkspaceRunner creates a policy and sandbox for root in one step.
func NewWorkspaceRunner(root string, maxCommandLength int, config ExecConfig, log audit.Log) (*Runner, error) {
	policy, err := NewCommandPolicy(root)
	if err != nil {
		return nil, err
	}
	policy.WithMaxLength(maxCommandLength)
	return NewRunner(policy, NewSandbox(policy.Root(), config), log), nil
}

// Policy returns the runner's policy.
func (r *Runner) Policy() *CommandPolicy {
	return r.policy
}

// Run validates and executes command on behalf of sessionID.
// A denial returns a *PolicyDeniedError and never spawns a process.
func (r *Runner) Run(ctx context.Context, sessionID, command string) (ExecutionResult, error) {
	verdict := r.policy.Validate(command)
	r.audit.RecordAttempt(command, sessionID, verdict.Allowed, verdict.Reason)
	if !verdict.Allowed {
		return ExecutionResult{Command: command}, &PolicyDeniedError{Command: command, Reason: verdict.Reason}
	}

	result, err := r.sandbox.Execute(ctx, command)
	r.audit.RecordResult(command, sessionID, err == nil && result.ExitOK, len(result.Output))
	return result, err
}
