package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/hpn/caseflow/internal/domain"
)

const (
	defaultConfigName = "config"
	defaultConfigType = "yaml"
	envPrefix         = "CASEFLOW"

	// EnvProviderKeys seeds provider credentials, comma-separated. Entries are
	// "provider=key" or a bare key whose provider is detected from its prefix.
	EnvProviderKeys = "CASEFLOW_PROVIDER_KEYS"
)

// loadConfig resolves, highest priority first: CASEFLOW_* environment
// variables, the config file, then defaults.
func loadConfig(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(defaultConfigName)
	v.SetConfigType(defaultConfigType)
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/caseflow")
		v.AddConfigPath("$HOME/.caseflow")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &ConfigError{
				Op:  "read",
				Err: fmt.Errorf("failed to read config file: %w", err),
			}
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{
			Op:  "unmarshal",
			Err: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}

	seeds, err := parseProviderKeys(os.Getenv(EnvProviderKeys))
	if err != nil {
		return nil, &ConfigError{Op: "provider_keys", Err: err}
	}
	cfg.Providers.Seeds = seeds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 300)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("server.max_upload_mb", 100)

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.key", "caseflow:multi_provider_config")
	v.SetDefault("storage.file_dir", "./data")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.sqlite_path", "./data/caseflow.db")

	v.SetDefault("providers.builtin_url", "")
	v.SetDefault("providers.builtin_token", "")
	v.SetDefault("providers.request_timeout_seconds", 60)
	v.SetDefault("providers.batch_concurrency", 4)
	// Registering every key lets AutomaticEnv pick up
	// CASEFLOW_PROVIDERS_BASE_URLS_<ID>.
	for _, id := range domain.AllProviders() {
		if id != domain.ProviderBuiltin {
			v.SetDefault("providers.base_urls."+string(id), "")
		}
	}

	v.SetDefault("transcoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcoder.ffprobe_path", "ffprobe")
	v.SetDefault("transcoder.max_capture_seconds", 1800)
	v.SetDefault("transcoder.temp_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// parseProviderKeys reads the CASEFLOW_PROVIDER_KEYS format. A later entry for
// the same provider replaces an earlier one.
func parseProviderKeys(raw string) ([]ProviderSeed, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var seeds []ProviderSeed
	index := make(map[domain.ProviderID]int)
	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		var id domain.ProviderID
		key := entry
		if name, rest, ok := strings.Cut(entry, "="); ok {
			id = domain.ProviderID(strings.ToLower(strings.TrimSpace(name)))
			key = strings.TrimSpace(rest)
		} else {
			id = detectProviderFromKey(key)
		}

		switch {
		case id == "":
			return nil, fmt.Errorf("entry %d: cannot tell which provider the key belongs to; use provider=key", i)
		case !domain.IsKnown(id) || id == domain.ProviderBuiltin:
			return nil, fmt.Errorf("entry %d: unknown provider %q", i, id)
		case key == "":
			return nil, fmt.Errorf("entry %d: empty key for %s", i, id)
		}

		seed := ProviderSeed{Provider: id, APIKey: key}
		if at, ok := index[id]; ok {
			seeds[at] = seed
			continue
		}
		index[id] = len(seeds)
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

// detectProviderFromKey identifies the vendor from its key prefix. More
// specific prefixes are checked first.
func detectProviderFromKey(key string) domain.ProviderID {
	switch {
	case strings.HasPrefix(key, "sk-ant-"):
		return domain.ProviderAnthropic
	case strings.HasPrefix(key, "sk-or-"):
		return domain.ProviderOpenRouter
	case strings.HasPrefix(key, "gsk_"):
		return domain.ProviderGroq
	case strings.HasPrefix(key, "AIza"):
		return domain.ProviderGemini
	case strings.HasPrefix(key, "sk-"):
		return domain.ProviderOpenAI
	default:
		return ""
	}
}
