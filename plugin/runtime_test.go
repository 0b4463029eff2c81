package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbukum/switchyard/errors"
)

// writeScript writes an executable shell script plugin and returns its
// descriptor.
func writeScript(t *testing.T, id, script string, manifest map[string]string) Descriptor {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := filepath.Join(t.TempDir(), id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	m := map[string]string{ManifestRuntime: RuntimeProcess}
	for k, v := range manifest {
		m[k] = v
	}
	return Descriptor{ID: id, Version: "0.1.0", Dir: dir, Paths: []string{"run.sh"}, Manifest: m}
}

func TestHost_ProcessPlugin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{StopTimeout: 2 * time.Second})
	d := writeScript(t, "sleeper", `
if [ "$1" = "check" ]; then
  [ "$SWITCHYARD_PLUGIN_ID" = "sleeper" ] || exit 3
  exit 0
fi
echo "started"
exec sleep 30
`, map[string]string{ManifestPreflight: "check"})

	hd, err := env.host.Load(ctx, d)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rt, ok := hd.rt.(*processRuntime)
	if !ok {
		t.Fatalf("runtime = %T, want *processRuntime", hd.rt)
	}
	if rt.running() {
		t.Fatal("process must not start before activation")
	}

	if err := env.host.Activate(ctx, "sleeper"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !rt.running() {
		t.Fatal("process must run while active")
	}
	if env.registry.HasRegistrations(greeterContract) {
		t.Fatal("process plugins register no in-process providers")
	}

	if err := env.host.Deactivate(ctx, "sleeper"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if rt.running() {
		t.Fatal("process must stop on deactivation")
	}
	if ok, err := env.host.Unload(ctx, "sleeper"); !ok || err != nil {
		t.Fatalf("Unload = %v, %v", ok, err)
	}
}

func TestHost_ProcessPreflightFailure(t *testing.T) {
	env := newTestEnv(t, Config{})
	d := writeScript(t, "picky", `
echo "missing dependency" >&2
exit 4
`, map[string]string{ManifestPreflight: "check"})

	_, err := env.host.Load(context.Background(), d)
	if !errors.IsCode(err, errors.ErrCodePluginLoadFailure) {
		t.Fatalf("err = %v, want PLUGIN_LOAD_FAILURE", err)
	}
	if _, ok := env.host.Get("picky"); ok {
		t.Fatal("failed preflight left a handle behind")
	}
}
