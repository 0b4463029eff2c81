package provider

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/multierr"

	"github.com/kbukum/switchyard/errors"
)

// Executor runs provider invocations, typically adding timeouts, retries
// and circuit breaking. resilience.Executor satisfies it.
type Executor interface {
	Execute(fn func() error) error
	ExecuteContext(ctx context.Context, fn func(context.Context) error) error
}

// DirectExecutor calls fn with no added behavior.
type DirectExecutor struct{}

func (DirectExecutor) Execute(fn func() error) error { return fn() }

func (DirectExecutor) ExecuteContext(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type callMetadataKey struct{}

// WithCallMetadata attaches selection metadata, such as the "event" used
// for sharding, to ctx. It is merged over metadata already present.
func WithCallMetadata(ctx context.Context, md map[string]string) context.Context {
	merged := maps.Clone(CallMetadata(ctx))
	if merged == nil {
		merged = make(map[string]string, len(md))
	}
	maps.Copy(merged, md)
	return context.WithValue(ctx, callMetadataKey{}, merged)
}

// CallMetadata returns the metadata attached by WithCallMetadata.
func CallMetadata(ctx context.Context) map[string]string {
	md, _ := ctx.Value(callMetadataKey{}).(map[string]string)
	return md
}

// View is the registry bound to the contract of C.
type View[C any] struct {
	registry *Registry
	contract Contract
}

// For returns the view of r for C.
func For[C any](r *Registry) View[C] {
	return View[C]{registry: r, contract: ContractOf[C]()}
}

func (v View[C]) Contract() Contract { return v.contract }

func (v View[C]) Register(p C, caps Capabilities) (RegistrationID, error) {
	return v.registry.Register(v.contract, p, caps)
}

func (v View[C]) Unregister(id RegistrationID) bool {
	return v.registry.Unregister(id)
}

func (v View[C]) Registrations() []Registration {
	return v.registry.Registrations(v.contract)
}

func (v View[C]) Has() bool {
	return v.registry.HasRegistrations(v.contract)
}

func (v View[C]) Clear() int {
	return v.registry.ClearRegistrations(v.contract)
}

// Providers returns the active providers in priority order.
func (v View[C]) Providers() []C {
	active := sortByPriority(v.registry.SelectionContext(context.Background(), v.contract).Active())
	out := make([]C, 0, len(active))
	for _, reg := range active {
		if p, ok := reg.provider.(C); ok {
			out = append(out, p)
		}
	}
	return out
}

// Select runs the contract's strategy and returns the chosen providers.
func (v View[C]) Select(ctx context.Context) ([]C, error) {
	result, err := v.registry.Select(ctx, v.contract)
	if err != nil {
		return nil, err
	}
	return v.providers(result)
}

func (v View[C]) providers(result SelectionResult) ([]C, error) {
	out := make([]C, 0, result.Len())
	for _, reg := range result.selected {
		p, ok := reg.provider.(C)
		if !ok {
			return nil, errors.Internal(fmt.Errorf("provider %q is %T, not %s", reg.caps.providerID, reg.provider, v.contract))
		}
		out = append(out, p)
	}
	return out, nil
}

// Invoke calls fn on each selected provider through the registry's
// executor. See InvokeContext.
func (v View[C]) Invoke(fn func(C) error) error {
	return v.InvokeContext(context.Background(), func(_ context.Context, p C) error { return fn(p) })
}

// InvokeContext calls fn on each selected provider through the registry's
// executor. Fan-out calls every provider in priority order, even after a
// failure, and returns the combined error.
func (v View[C]) InvokeContext(ctx context.Context, fn func(context.Context, C) error) (err error) {
	sink := v.registry.sink
	ctx = sink.EnterMethod(ctx, v.contract.String(), "Invoke")
	defer func() { sink.ExitMethod(ctx, err) }()

	targets, err := v.Select(ctx)
	if err != nil {
		return err
	}

	exec := v.registry.executor
	for _, p := range targets {
		err = multierr.Append(err, exec.ExecuteContext(ctx, func(ctx context.Context) error {
			return fn(ctx, p)
		}))
	}
	return err
}

// Call invokes fn on the first selected provider and returns its result.
func Call[C, R any](ctx context.Context, v View[C], fn func(context.Context, C) (R, error)) (out R, err error) {
	sink := v.registry.sink
	ctx = sink.EnterMethod(ctx, v.contract.String(), "Call")
	defer func() { sink.ExitMethod(ctx, err) }()

	targets, err := v.Select(ctx)
	if err != nil {
		return out, err
	}
	err = v.registry.executor.ExecuteContext(ctx, func(ctx context.Context) error {
		r, err := fn(ctx, targets[0])
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}
