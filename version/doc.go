// Package version reports build information for the switchyard binary.
//
// Version, commit, branch and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/switchyard/version.Version=1.4.0" ./cmd/switchyard
//
// Values left empty are filled from the module build info when available.
package version
