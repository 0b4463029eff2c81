// Package component manages the lifecycle of long-lived parts of the
// service: the plugin host, the plugin watcher and the admin server.
//
// Components start in registration order and stop in reverse order:
//
//	reg := component.NewRegistry()
//	_ = reg.Register(host)
//	_ = reg.Register(watcher)
//	_ = reg.Register(adminServer)
//	if err := reg.StartAll(ctx); err != nil { ... }
//	defer reg.StopAll(context.Background())
package component
