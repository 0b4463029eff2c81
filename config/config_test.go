package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug logging in development, got %q", cfg.Logging.Level)
		}
		if cfg.Logging.ServiceName != "svc" {
			t.Errorf("expected logging service name to follow config name, got %q", cfg.Logging.ServiceName)
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info logging, got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid", ServiceConfig{Name: "svc", Environment: "staging"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "qa"}, "config.environment must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Selection     struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"selection"`
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	yamlContent := `
name: switchyard
environment: staging
selection:
  cache_ttl: 90s
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	var cfg testConfig
	if err := LoadConfig("switchyard", &cfg, WithConfigFile(configPath), WithFileSystem(RealFileSystem{})); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "switchyard" || cfg.Environment != "staging" {
		t.Errorf("unexpected base config: %+v", cfg.ServiceConfig)
	}
	if cfg.Selection.CacheTTL != 90*time.Second {
		t.Errorf("expected cache ttl 90s, got %v", cfg.Selection.CacheTTL)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(configPath, []byte("name: switchyard\nselection:\n  cache_ttl: 1m\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("SWITCHYARD_SELECTION_CACHE_TTL", "5m")

	var cfg testConfig
	if err := LoadConfig("switchyard", &cfg, WithConfigFile(configPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Selection.CacheTTL != 5*time.Minute {
		t.Errorf("expected env override 5m, got %v", cfg.Selection.CacheTTL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

type mockFS struct {
	files  map[string]bool
	loaded []string
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error {
	m.loaded = append(m.loaded, path)
	return nil
}

func TestFindConfigFileWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		filepath.Join("config", "config.yml"): true,
	}}
	if got := findConfigFile(fs, "switchyard"); got != filepath.Join("config", "config.yml") {
		t.Errorf("expected config/config.yml, got %q", got)
	}
}

func TestLoadConfigLoadsEnvFile(t *testing.T) {
	fs := &mockFS{files: map[string]bool{".env": true}}
	var cfg testConfig
	if err := LoadConfig("switchyard", &cfg, WithFileSystem(fs)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff([]string{".env"}, fs.loaded); diff != "" {
		t.Errorf("env files loaded (-want +got):\n%s", diff)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("SELECTION_CACHE_TTL")
	want := []string{"selection_cache_ttl", "selection.cache_ttl", "selection.cache.ttl"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("variants (-want +got):\n%s", diff)
	}
}

func TestBindPrefixedEnvIgnoresOtherPrefixes(t *testing.T) {
	v := viper.New()
	bindPrefixedEnv(v, "SWITCHYARD", []string{"OTHER_NAME=x", "SWITCHYARD_NAME=y"})
	if v.GetString("name") != "y" {
		t.Errorf("expected name=y, got %q", v.GetString("name"))
	}
	if v.IsSet("other_name") {
		t.Error("unprefixed variables must not be bound")
	}
}
