package resilience

import (
	"context"
	"errors"

	apperrors "github.com/kbukum/switchyard/errors"
)

// Executor runs provider invocations through the configured layers.
// It is safe for concurrent use.
type Executor struct {
	name     string
	cfg      Config
	limiter  *RateLimiter
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	retry    RetryConfig
}

// NewExecutor builds an Executor from cfg.
func NewExecutor(cfg Config) *Executor {
	cfg.ApplyDefaults()

	e := &Executor{name: cfg.Name, cfg: cfg}
	if cfg.RatePerSecond > 0 {
		e.limiter = NewRateLimiter(cfg.RatePerSecond, cfg.Burst)
	}
	if cfg.MaxConcurrent > 0 {
		e.bulkhead = NewBulkhead(cfg.MaxConcurrent, cfg.MaxWait)
	}
	if cfg.BreakerFailures > 0 {
		bc := DefaultCircuitBreakerConfig(cfg.Name)
		bc.MaxFailures = cfg.BreakerFailures
		bc.Timeout = cfg.BreakerTimeout
		e.breaker = NewCircuitBreaker(bc)
	}

	e.retry = DefaultRetryConfig()
	e.retry.MaxAttempts = cfg.MaxAttempts
	if cfg.InitialBackoff > 0 {
		e.retry.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		e.retry.MaxBackoff = cfg.MaxBackoff
	}
	return e
}

// Breaker returns the circuit breaker, or nil when it is disabled.
func (e *Executor) Breaker() *CircuitBreaker {
	return e.breaker
}

// Execute runs fn without a caller context.
func (e *Executor) Execute(fn func() error) error {
	return e.ExecuteContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// ExecuteContext runs fn through rate limiter, bulkhead, timeout,
// circuit breaker and retry, in that order.
func (e *Executor) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if e.bulkhead == nil {
		return e.guarded(ctx, fn)
	}
	err := e.bulkhead.Execute(ctx, func() error {
		return e.guarded(ctx, fn)
	})
	if errors.Is(err, ErrBulkheadFull) || errors.Is(err, ErrBulkheadTimeout) {
		return apperrors.ServiceUnavailable(e.name).WithCause(err)
	}
	return err
}

func (e *Executor) guarded(parent context.Context, fn func(context.Context) error) error {
	ctx := parent
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, e.cfg.Timeout)
		defer cancel()
	}

	call := func() error {
		return RetryFunc(ctx, e.retry, fn)
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Execute(call)
	} else {
		err = call()
	}
	return e.mapError(parent, err)
}

// mapError turns layer failures into AppErrors. Errors returned by fn and
// cancellation of the caller's own context pass through untouched.
func (e *Executor) mapError(parent context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCircuitOpen):
		return apperrors.ServiceUnavailable(e.name).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		return apperrors.Timeout(e.name).WithCause(err)
	}
	return err
}
