package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/switchyard/observability"
	"github.com/kbukum/switchyard/plugin"
	"github.com/kbukum/switchyard/provider"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var echoContract = provider.NamedContract("echo")

type echoPlugin struct{}

func (echoPlugin) Activate(_ context.Context, pc *plugin.Context) error {
	_, err := pc.Register(echoContract, "echo-impl", provider.NewCapabilities(pc.ID()))
	return err
}

func (echoPlugin) Deactivate(context.Context) error { return nil }

type fixture struct {
	srv      *Server
	registry *provider.Registry
	host     *plugin.Host
	dir      string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	registry := provider.NewRegistry(provider.WithSink(observability.NewMemorySink()))
	catalog := plugin.NewCatalog()
	catalog.MustRegister("echo", func(*plugin.LoadContext) (plugin.Plugin, error) { return echoPlugin{}, nil })
	dir := t.TempDir()
	host := plugin.NewHost(plugin.Config{Dir: dir}, registry, plugin.WithCatalog(catalog))
	t.Cleanup(func() { _ = host.Stop(context.Background()) })

	srv, err := New(cfg, registry, host)
	require.NoError(t, err)
	return &fixture{srv: srv, registry: registry, host: host, dir: dir}
}

// token issues a bearer token when the fixture has auth enabled.
func (f *fixture) token(t *testing.T) string {
	t.Helper()
	require.NotNil(t, f.srv.Tokens())
	token, err := f.srv.Tokens().Issue("ops")
	require.NoError(t, err)
	return token
}

func authConfig() Config {
	return Config{Auth: AuthConfig{Secret: testSecret, Issuer: "switchyard"}}
}

// writeDescriptor creates a plugin directory and returns its descriptor path.
func (f *fixture) writeDescriptor(t *testing.T, id string) string {
	t.Helper()
	dir := filepath.Join(f.dir, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.txt"), []byte(id), 0o644))
	path := filepath.Join(dir, plugin.DescriptorFile)
	body := "id: " + id + "\nversion: 1.0.0\npaths: [main.txt]\nmanifest:\n  entry: echo\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestPluginLifecycleEndpoints(t *testing.T) {
	f := newFixture(t, Config{})
	path := f.writeDescriptor(t, "echo-a")

	rec := f.do(t, http.MethodPost, "/v1/plugins", LoadRequest{Path: path}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var info map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &info))
	assert.Equal(t, "echo-a", info["id"])
	assert.Equal(t, "loaded", info["state"])

	rec = f.do(t, http.MethodPost, "/v1/plugins/echo-a/activate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.registry.HasRegistrations(echoContract))

	rec = f.do(t, http.MethodGet, "/v1/contracts/echo/registrations", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var regs []RegistrationView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &regs))
	require.Len(t, regs, 1)
	assert.Equal(t, "echo-a", regs[0].ProviderID)
	assert.True(t, regs[0].Active)

	rec = f.do(t, http.MethodGet, "/v1/contracts", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var contracts []ContractView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &contracts))
	require.Len(t, contracts, 1)
	assert.Equal(t, ContractView{Name: "echo", Strategy: provider.KindPickOne, Registrations: 1, Active: 1}, contracts[0])

	rec = f.do(t, http.MethodPost, "/v1/plugins/echo-a/deactivate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &info))
	assert.Equal(t, "deactivated", info["state"])

	rec = f.do(t, http.MethodPost, "/v1/plugins/echo-a/reload", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/plugins", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &list))
	require.Len(t, list, 1)

	rec = f.do(t, http.MethodDelete, "/v1/plugins/echo-a", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.registry.HasRegistrations(echoContract))
	_, ok := f.host.Get("echo-a")
	assert.False(t, ok)
}

func TestLoadInlineDescriptorAndActivate(t *testing.T) {
	f := newFixture(t, authConfig())
	dir := filepath.Join(f.dir, "inline")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.txt"), []byte("x"), 0o644))

	req := LoadRequest{
		Descriptor: &plugin.Descriptor{
			ID:       "inline",
			Version:  "0.1.0",
			Dir:      dir,
			Paths:    []string{"main.txt"},
			Manifest: map[string]string{plugin.ManifestEntry: "echo"},
		},
		Activate: true,
	}
	rec := f.do(t, http.MethodPost, "/v1/plugins", req, f.token(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	hd, ok := f.host.Get("inline")
	require.True(t, ok)
	assert.Equal(t, plugin.StateActive, hd.State())
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, Config{})
	path := f.writeDescriptor(t, "dup")
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/plugins", LoadRequest{Path: path}, "").Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown plugin", http.MethodGet, "/v1/plugins/ghost", nil, http.StatusNotFound, "PLUGIN_NOT_FOUND"},
		{"activate unknown", http.MethodPost, "/v1/plugins/ghost/activate", nil, http.StatusNotFound, "PLUGIN_NOT_FOUND"},
		{"unload unknown", http.MethodDelete, "/v1/plugins/ghost", nil, http.StatusNotFound, "PLUGIN_NOT_FOUND"},
		{"deactivate loaded", http.MethodPost, "/v1/plugins/dup/deactivate", nil, http.StatusConflict, "INVALID_STATE"},
		{"duplicate load", http.MethodPost, "/v1/plugins", LoadRequest{Path: path}, http.StatusConflict, "ALREADY_EXISTS"},
		{"empty body", http.MethodPost, "/v1/plugins", LoadRequest{}, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing file", http.MethodPost, "/v1/plugins", LoadRequest{Path: filepath.Join(f.dir, "ghost", plugin.DescriptorFile)}, http.StatusBadRequest, "INVALID_INPUT"},
		{"descriptor outside dir", http.MethodPost, "/v1/plugins", LoadRequest{Path: "/nonexistent/plugin.yaml"}, http.StatusForbidden, "FORBIDDEN"},
		{"inline without auth", http.MethodPost, "/v1/plugins", LoadRequest{Descriptor: &plugin.Descriptor{ID: "x", Version: "1", Paths: []string{"x"}}}, http.StatusForbidden, "FORBIDDEN"},
		{"unknown contract", http.MethodGet, "/v1/contracts/nope/registrations", nil, http.StatusNotFound, "NOT_REGISTERED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestLoadFailureMapsToUnprocessable(t *testing.T) {
	f := newFixture(t, authConfig())
	req := LoadRequest{Descriptor: &plugin.Descriptor{
		ID:       "nowhere",
		Version:  "1",
		Dir:      f.dir,
		Paths:    []string{"missing.bin"},
		Manifest: map[string]string{plugin.ManifestEntry: "echo"},
	}}
	rec := f.do(t, http.MethodPost, "/v1/plugins", req, f.token(t))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "PLUGIN_LOAD_FAILURE", decode(t, rec).Error.Code)
	assert.Empty(t, f.host.List())
}

func TestAuth(t *testing.T) {
	f := newFixture(t, authConfig())

	rec := f.do(t, http.MethodGet, "/v1/contracts", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec).Error.Code)

	rec = f.do(t, http.MethodGet, "/v1/contracts", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewTokenService(AuthConfig{Secret: strings.Repeat("x", 32), Issuer: "switchyard"})
	require.NoError(t, err)
	forged, err := other.Issue("mallory")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/contracts", nil, forged).Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/contracts", nil, f.token(t)).Code)

	// Health and version stay open.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/version", nil, "").Code)
}

// A text/plain POST is what a cross-site form can send without a preflight.
func TestLoadRequiresJSONContentType(t *testing.T) {
	f := newFixture(t, Config{})
	marker := filepath.Join(t.TempDir(), "created")
	body := `{"descriptor":{"id":"evil","version":"1","paths":["/usr/bin/touch"],` +
		`"manifest":{"runtime":"process","preflight":"` + marker + `"}}}`

	req := httptest.NewRequest(http.MethodPost, "/v1/plugins", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, rec.Body.String())
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", decode(t, rec).Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/plugins/any/activate", nil)
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	var payload any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	rec = f.do(t, http.MethodPost, "/v1/plugins", payload, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	assert.NoFileExists(t, marker)
	assert.Empty(t, f.host.List())
}

func TestLoadConfinedToPluginDir(t *testing.T) {
	f := newFixture(t, authConfig())
	token := f.token(t)
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "tool"), []byte("#!/bin/sh\n"), 0o755))

	tests := []struct {
		name string
		desc plugin.Descriptor
	}{
		{"absolute path outside", plugin.Descriptor{ID: "abs", Version: "1", Dir: f.dir,
			Paths: []string{filepath.Join(outside, "tool")}, Manifest: map[string]string{plugin.ManifestEntry: "echo"}}},
		{"relative escape", plugin.Descriptor{ID: "rel", Version: "1", Dir: f.dir,
			Paths: []string{"../" + filepath.Base(outside) + "/tool"}, Manifest: map[string]string{plugin.ManifestEntry: "echo"}}},
		{"dir outside", plugin.Descriptor{ID: "dir", Version: "1", Dir: outside,
			Paths: []string{"tool"}, Manifest: map[string]string{plugin.ManifestEntry: "echo"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := tt.desc
			rec := f.do(t, http.MethodPost, "/v1/plugins", LoadRequest{Descriptor: &desc}, token)
			require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
			assert.Equal(t, "FORBIDDEN", decode(t, rec).Error.Code)
		})
	}
	assert.Empty(t, f.host.List())
}

func TestProcessPluginsNeedAuth(t *testing.T) {
	f := newFixture(t, Config{})
	dir := filepath.Join(f.dir, "proc")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	path := filepath.Join(dir, plugin.DescriptorFile)
	body := "id: proc\nversion: 1.0.0\npaths: [run.sh]\nmanifest:\n  runtime: process\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	rec := f.do(t, http.MethodPost, "/v1/plugins", LoadRequest{Path: path}, "")
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Empty(t, f.host.List())
}

func TestLoadWithoutPluginDir(t *testing.T) {
	registry := provider.NewRegistry()
	host := plugin.NewHost(plugin.Config{}, registry)
	srv, err := New(Config{}, registry, host)
	require.NoError(t, err)

	f := &fixture{srv: srv, registry: registry, host: host}
	rec := f.do(t, http.MethodPost, "/v1/plugins", LoadRequest{Path: "/srv/plugins/a/plugin.yaml"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}

func TestTokenService(t *testing.T) {
	tokens, err := NewTokenService(AuthConfig{Secret: testSecret, TokenTTL: -time.Minute})
	require.NoError(t, err)
	// A negative TTL falls back to the default, so the token is valid.
	token, err := tokens.Issue("ops")
	require.NoError(t, err)
	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)

	_, err = NewTokenService(AuthConfig{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	registry := provider.NewRegistry()
	srv, err := New(Config{}, registry, nil, WithHealth(func(context.Context) *observability.ServiceHealth {
		sh := observability.NewServiceHealth("switchyard", "test")
		sh.AddComponent(observability.Health{Name: "plugin-host", Status: observability.HealthStatusDown})
		return sh
	}))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/plugins", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "plugin routes need a host")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hits"`)
}

func TestServerHealthBeforeStart(t *testing.T) {
	srv, err := New(Config{Host: "127.0.0.1", Port: 0}, provider.NewRegistry(), nil)
	require.NoError(t, err)
	assert.Equal(t, observability.HealthStatusDown, srv.Health(context.Background()).Status)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Auth: AuthConfig{Secret: "short"}}
	cfg.ApplyDefaults()
	assert.Error(t, cfg.Validate())

	cfg = Config{Port: 70000}
	assert.Error(t, cfg.Validate())

	cfg = Config{}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 9090, cfg.Port)
}
