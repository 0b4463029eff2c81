// Package process runs plugin executables.
//
// Run executes a short-lived command and captures its output; it backs the
// preflight check of process plugins. Start launches a long-running plugin
// process that is stopped with SIGTERM, then SIGKILL after a grace period.
// Both put the child in its own process group so the whole tree is signalled.
package process
