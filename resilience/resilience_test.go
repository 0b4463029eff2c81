package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/kbukum/switchyard/errors"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 3, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.State())
	}

	err := cb.Execute(func() error {
		t.Error("function should not have been called")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3})
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })
	if cb.Failures() != 0 {
		t.Errorf("expected failures reset, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_IgnoresNonTransientErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(func() error { return apperrors.NotRegistered("X") })
	if cb.State() != StateClosed {
		t.Errorf("NOT_REGISTERED must not trip the breaker, state=%s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		Timeout:     time.Second,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBoom })
	now = now.Add(2 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var attempts int
	got, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errBoom
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("expected ok, got %q, %v", got, err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	var attempts int
	err := RetryFunc(context.Background(), RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}, func(context.Context) error {
		attempts++
		return apperrors.InvalidInput("x", "bad")
	})
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
}

func TestRetry_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryFunc(ctx, DefaultRetryConfig(), func(context.Context) error {
		t.Error("fn must not run on a canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errBoom, true},
		{context.Canceled, false},
		{apperrors.ServiceUnavailable("x"), true},
		{apperrors.NotRegistered("X"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	b := NewBulkhead(1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := b.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
	close(release)
}

func TestRateLimiter_WaitRespectsContext(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first token should be free: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestExecutor_MapsTimeout(t *testing.T) {
	exec := NewExecutor(Config{Name: "slow", Timeout: 10 * time.Millisecond})
	err := exec.ExecuteContext(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !apperrors.IsCode(err, apperrors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
}

func TestExecutor_PassesCallerCancellation(t *testing.T) {
	exec := NewExecutor(Config{Timeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := exec.ExecuteContext(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExecutor_OpenCircuitIsServiceUnavailable(t *testing.T) {
	exec := NewExecutor(Config{Name: "flaky", BreakerFailures: 1, BreakerTimeout: time.Hour})
	_ = exec.Execute(func() error { return errBoom })

	var calls int32
	err := exec.Execute(func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if !apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable) {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
	if calls != 0 {
		t.Error("fn must not run while the circuit is open")
	}
}

func TestExecutor_RetriesThenSucceeds(t *testing.T) {
	exec := NewExecutor(Config{MaxAttempts: 3, InitialBackoff: time.Millisecond})
	var attempts int
	err := exec.Execute(func() error {
		attempts++
		if attempts == 1 {
			return errBoom
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Errorf("expected success on attempt 2, got err=%v attempts=%d", err, attempts)
	}
}

func TestExecutor_Concurrent(t *testing.T) {
	exec := NewExecutor(Config{MaxConcurrent: 4, MaxWait: time.Second})
	var wg sync.WaitGroup
	var done int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := exec.Execute(func() error {
				time.Sleep(time.Millisecond)
				return nil
			}); err == nil {
				atomic.AddInt32(&done, 1)
			}
		}()
	}
	wg.Wait()
	if done != 16 {
		t.Errorf("expected 16 completed calls, got %d", done)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg.MaxConcurrent = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative max_concurrent")
	}
}
