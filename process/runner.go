package process

import (
	"context"
)

// Executor runs fn with fault-tolerance layers. resilience.Executor satisfies it.
type Executor interface {
	ExecuteContext(ctx context.Context, fn func(context.Context) error) error
}

// Runner executes commands through an Executor so timeouts, retries and the
// circuit breaker state persist across calls.
type Runner struct {
	exec Executor
}

// NewRunner creates a Runner. A nil executor runs commands directly.
func NewRunner(exec Executor) *Runner {
	return &Runner{exec: exec}
}

// Run executes cmd and returns the result of the last attempt.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if r == nil || r.exec == nil {
		return Run(ctx, cmd)
	}
	var result *Result
	err := r.exec.ExecuteContext(ctx, func(ctx context.Context) error {
		var runErr error
		result, runErr = Run(ctx, cmd)
		return runErr
	})
	return result, err
}
