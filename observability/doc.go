// Package observability provides the instrumentation Sink used by the
// selection runtime and the OpenTelemetry setup behind it.
//
// Exporters:
//
//	tel, err := observability.Start(ctx, cfg, observability.ServiceInfo{Name: "switchyard"})
//	defer tel.Shutdown(ctx)
//
// Instrumentation:
//
//	sink := tel.Sink()
//	ctx = sink.EnterMethod(ctx, "provider", "Select")
//	defer sink.ExitMethod(ctx, err)
//	sink.RecordMetric(ctx, "selection.fanout.size", 3)
//
// Health:
//
//	health := observability.NewServiceHealth("switchyard", version.GetShortVersion())
//	health.AddComponent(host.Health(ctx))
package observability
