package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpn/caseflow/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %s", cfg.Server.Addr())
	}
	if cfg.Storage.Backend != BackendFile || cfg.Storage.Key != "caseflow:multi_provider_config" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Providers.RequestTimeout() != time.Minute {
		t.Errorf("RequestTimeout() = %v", cfg.Providers.RequestTimeout())
	}
	if cfg.Transcoder.MaxCapture() != 30*time.Minute {
		t.Errorf("MaxCapture() = %v", cfg.Transcoder.MaxCapture())
	}
	if len(cfg.Providers.Endpoints()) != 0 {
		t.Errorf("Endpoints() = %v, want none", cfg.Providers.Endpoints())
	}
	if cfg.Providers.BuiltinURL != "" {
		t.Errorf("builtin enabled by default")
	}
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  backend: sqlite
  sqlite_path: /tmp/caseflow-test.db
providers:
  builtin_url: https://gateway.internal/v1
  base_urls:
    openai: https://proxy.internal/openai/v1
logging:
  level: debug
  format: text
`)
	t.Setenv("CASEFLOW_SERVER_PORT", "7070")
	t.Setenv("CASEFLOW_PROVIDERS_BASE_URLS_GROQ", "http://groq.local/openai/v1")
	t.Setenv(EnvProviderKeys, "gsk_aaaaaaaaaaaaaaaa, gemini=AIzaBBBBBBBBBBBBBB")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.SQLitePath != "/tmp/caseflow-test.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	eps := cfg.Providers.Endpoints()
	want := []Endpoint{
		{Provider: domain.ProviderGroq, URL: "http://groq.local/openai/v1"},
		{Provider: domain.ProviderOpenAI, URL: "https://proxy.internal/openai/v1"},
	}
	if len(eps) != len(want) {
		t.Fatalf("Endpoints() = %v, want %v", eps, want)
	}
	for i := range want {
		if eps[i] != want[i] {
			t.Errorf("Endpoints()[%d] = %v, want %v", i, eps[i], want[i])
		}
	}

	if len(cfg.Providers.Seeds) != 2 ||
		cfg.Providers.Seeds[0].Provider != domain.ProviderGroq ||
		cfg.Providers.Seeds[1].Provider != domain.ProviderGemini {
		t.Errorf("Seeds = %+v", cfg.Providers.Seeds)
	}
}

func TestLoadConfigValidationCollectsAllErrors(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 70000
storage:
  backend: mongo
providers:
  builtin_url: "ftp://nope"
  batch_concurrency: 0
  base_urls:
    mistral: https://api.mistral.ai
logging:
  level: verbose
`)

	_, err := loadConfig(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	for _, field := range []string{
		"server.port", "storage.backend", "providers.builtin_url",
		"providers.batch_concurrency", "mistral", "logging.level",
	} {
		if !verr.HasError(field) {
			t.Errorf("missing validation error for %s in %v", field, verr.Errors)
		}
	}
	if !IsValidationError(err) {
		t.Error("IsValidationError() = false")
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := loadConfig(path)
	if !IsConfigError(err) {
		t.Fatalf("error = %v, want *ConfigError", err)
	}
}

func TestValidateBackendRequirements(t *testing.T) {
	base := func() Configuration {
		return Configuration{
			Server:     ServerConfig{Port: 8080, ReadTimeoutSeconds: 1, WriteTimeoutSeconds: 1, ShutdownTimeoutSeconds: 1, MaxUploadMB: 1},
			Storage:    StorageConfig{Backend: BackendMemory, Key: "k"},
			Providers:  ProvidersConfig{RequestTimeoutSeconds: 1, BatchConcurrency: 1},
			Transcoder: TranscoderConfig{MaxCaptureSeconds: 1},
		}
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory backend: %v", err)
	}

	tests := map[string]string{
		BackendFile:   "storage.file_dir",
		BackendRedis:  "storage.redis_addr",
		BackendSQLite: "storage.sqlite_path",
	}
	for backend, field := range tests {
		t.Run(backend, func(t *testing.T) {
			cfg := base()
			cfg.Storage.Backend = backend
			var verr *ValidationError
			if err := cfg.Validate(); !errors.As(err, &verr) || !verr.HasError(field) {
				t.Errorf("Validate() = %v, want error on %s", err, field)
			}
		})
	}
}

func TestParseProviderKeys(t *testing.T) {
	seeds, err := parseProviderKeys("sk-ant-api03-xxxx, sk-or-v1-yyyy, sk-proj-zzzz, openai=sk-later")
	if err != nil {
		t.Fatalf("parseProviderKeys() error = %v", err)
	}
	want := []ProviderSeed{
		{Provider: domain.ProviderAnthropic, APIKey: "sk-ant-api03-xxxx"},
		{Provider: domain.ProviderOpenRouter, APIKey: "sk-or-v1-yyyy"},
		{Provider: domain.ProviderOpenAI, APIKey: "sk-later"},
	}
	if len(seeds) != len(want) {
		t.Fatalf("seeds = %+v, want %+v", seeds, want)
	}
	for i := range want {
		if seeds[i] != want[i] {
			t.Errorf("seeds[%d] = %+v, want %+v", i, seeds[i], want[i])
		}
	}

	for _, bad := range []string{"mystery-key", "mistral=abc", "builtin=abc", "openai="} {
		if _, err := parseProviderKeys(bad); err == nil {
			t.Errorf("parseProviderKeys(%q) succeeded, want error", bad)
		}
	}
}

func TestGetConfigSingleton(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)

	path := writeConfig(t, "server:\n  port: 8181\n")
	first, err := GetConfigWithPath(path)
	if err != nil {
		t.Fatalf("GetConfigWithPath() error = %v", err)
	}
	second, _ := GetConfig()
	if first != second {
		t.Error("GetConfig() returned a different instance")
	}
}
