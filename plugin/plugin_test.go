package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/kbukum/switchyard/observability"
	"github.com/kbukum/switchyard/provider"
)

type greeter interface {
	Greet(name string) string
}

type prefixGreeter struct{ prefix string }

func (g prefixGreeter) Greet(name string) string { return g.prefix + name }

// fakePlugin registers one greeter on activation. The error fields are
// fault-injection hooks.
type fakePlugin struct {
	mu            sync.Mutex
	lc            *LoadContext
	providerID    string
	activations   int
	deactivations int
	activateErr   error
	deactivateErr error
}

func (p *fakePlugin) Activate(_ context.Context, pc *Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activations++
	if _, err := Register[greeter](pc, prefixGreeter{prefix: p.providerID + ":"}, provider.NewCapabilities(p.providerID)); err != nil {
		return err
	}
	return p.activateErr
}

func (p *fakePlugin) Deactivate(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivations++
	return p.deactivateErr
}

type testEnv struct {
	host     *Host
	registry *provider.Registry
	sink     *observability.MemorySink

	mu        sync.Mutex
	instances map[string][]*fakePlugin
	// factoryErr makes the "greeter" entry point fail.
	factoryErr error
}

func newTestEnv(t *testing.T, cfg Config, opts ...HostOption) *testEnv {
	t.Helper()
	env := &testEnv{instances: make(map[string][]*fakePlugin)}
	env.sink = observability.NewMemorySink()
	env.registry = provider.NewRegistry(provider.WithSink(env.sink))

	catalog := NewCatalog()
	catalog.MustRegister("greeter", func(lc *LoadContext) (Plugin, error) {
		env.mu.Lock()
		defer env.mu.Unlock()
		p := &fakePlugin{lc: lc, providerID: lc.PluginID()}
		env.instances[lc.PluginID()] = append(env.instances[lc.PluginID()], p)
		if env.factoryErr != nil {
			return nil, env.factoryErr
		}
		return p, nil
	})

	opts = append([]HostOption{WithCatalog(catalog)}, opts...)
	env.host = NewHost(cfg, env.registry, opts...)
	t.Cleanup(func() { _ = env.host.Stop(context.Background()) })
	return env
}

// last returns the most recent plugin instance created for id.
func (e *testEnv) last(t *testing.T, id string) *fakePlugin {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.instances[id]
	if len(list) == 0 {
		t.Fatalf("no instance created for %s", id)
	}
	return list[len(list)-1]
}

// writePlugin creates dir/id with the given files and a plugin.yaml, and
// returns the loaded descriptor.
func writePlugin(t *testing.T, dir, id string, files map[string]string, manifest map[string]string) Descriptor {
	t.Helper()
	pdir := filepath.Join(dir, id)
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		t.Fatal(err)
	}
	d := Descriptor{ID: id, Version: "1.0.0", Manifest: manifest}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(pdir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		d.Paths = append(d.Paths, name)
	}
	if d.Manifest == nil {
		d.Manifest = map[string]string{}
	}
	if _, ok := d.Manifest[ManifestEntry]; !ok {
		d.Manifest[ManifestEntry] = "greeter"
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(pdir, DescriptorFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadDescriptor(path)
	if err != nil {
		t.Fatalf("load descriptor: %v", err)
	}
	return loaded
}

var greeterContract = provider.ContractOf[greeter]()
