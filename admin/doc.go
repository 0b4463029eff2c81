// Package admin serves a read-mostly HTTP API over the provider registry
// and the plugin host.
//
// The gin engine is wrapped in h2c so HTTP/2 clients can connect without
// TLS. Routes under /v1 require an HS256 bearer token when
// Config.Auth.Secret is set; /healthz and /version are always open.
//
//	srv := admin.New(cfg, registry, host, admin.WithHealth(components.ServiceHealth))
//	components.Register(srv)
package admin
