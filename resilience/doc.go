// Package resilience wraps provider invocations in fault-tolerance layers.
//
// Executor composes the layers in a fixed order:
//
//	RateLimiter.Wait -> Bulkhead -> timeout -> CircuitBreaker -> Retry -> fn
//
// Failures raised by the layers themselves (open circuit, full bulkhead,
// deadline) are mapped to errors.AppError so callers see one error type.
//
//	exec := resilience.NewExecutor(resilience.Config{
//	    Name:        "billing",
//	    Timeout:     2 * time.Second,
//	    MaxAttempts: 3,
//	})
//	err := exec.ExecuteContext(ctx, func(ctx context.Context) error {
//	    return p.Charge(ctx, amount)
//	})
package resilience
