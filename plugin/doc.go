// Package plugin loads provider implementations at runtime and unloads them
// again without restarting the process.
//
// A plugin is described by a plugin.yaml Descriptor. The Host loads it into
// its own LoadContext, an arena holding the plugin's bundle bytes and the
// components it defines, then drives it through
//
//	Loaded -> Active <-> Deactivated -> Unloaded
//
// In-process plugins are Go types registered in a Catalog at startup and
// selected by the descriptor's "entry" manifest key. Process plugins run an
// executable from the bundle and are stopped with SIGTERM, then SIGKILL.
//
// Providers a plugin registers through its Context are tracked per plugin:
// deactivation disables them, unloading removes them from the registry, and
// the load context is disposed so every Ref into it reports Disposed.
package plugin
