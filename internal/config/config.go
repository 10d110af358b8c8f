// Package config loads caseflow settings from defaults, config.yaml and
// CASEFLOW_* environment variables using Viper.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/hpn/caseflow/internal/domain"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Configuration holds all application configuration values.
type Configuration struct {
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Storage    StorageConfig    `json:"storage" mapstructure:"storage"`
	Providers  ProvidersConfig  `json:"providers" mapstructure:"providers"`
	Transcoder TranscoderConfig `json:"transcoder" mapstructure:"transcoder"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                   string `json:"host" mapstructure:"host"`
	Port                   int    `json:"port" mapstructure:"port"`
	ReadTimeoutSeconds     int    `json:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `json:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`

	// MaxUploadMB caps multipart uploads on the media endpoints.
	MaxUploadMB int `json:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// StorageConfig selects where the provider configuration is persisted.
type StorageConfig struct {
	Backend       string `json:"backend" mapstructure:"backend"`
	Key           string `json:"key" mapstructure:"key"`
	FileDir       string `json:"file_dir" mapstructure:"file_dir"`
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db"`
	SQLitePath    string `json:"sqlite_path" mapstructure:"sqlite_path"`
}

// ProvidersConfig holds endpoint and dispatch settings.
type ProvidersConfig struct {
	// BuiltinURL enables the built-in provider. Empty leaves it unavailable.
	BuiltinURL   string `json:"builtin_url" mapstructure:"builtin_url"`
	BuiltinToken string `json:"-" mapstructure:"builtin_token"`

	RequestTimeoutSeconds int `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	BatchConcurrency      int `json:"batch_concurrency" mapstructure:"batch_concurrency"`

	// BaseURLs overrides vendor endpoints by provider id. Empty values are ignored.
	BaseURLs map[string]string `json:"base_urls" mapstructure:"base_urls"`

	// Seeds come from CASEFLOW_PROVIDER_KEYS and are added to the store at
	// startup when the provider is not configured yet.
	Seeds []ProviderSeed `json:"-" mapstructure:"-"`
}

// RequestTimeout returns the per-call HTTP timeout.
func (p ProvidersConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// Endpoints returns the non-empty base URL overrides in a stable order.
func (p ProvidersConfig) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(p.BaseURLs))
	for id, u := range p.BaseURLs {
		if u != "" {
			out = append(out, Endpoint{Provider: domain.ProviderID(id), URL: u})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Endpoint is one base URL override.
type Endpoint struct {
	Provider domain.ProviderID
	URL      string
}

// ProviderSeed is a credential supplied through the environment.
type ProviderSeed struct {
	Provider domain.ProviderID
	APIKey   string
}

// TranscoderConfig holds media transcoding settings.
type TranscoderConfig struct {
	FFmpegPath        string `json:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath       string `json:"ffprobe_path" mapstructure:"ffprobe_path"`
	MaxCaptureSeconds int    `json:"max_capture_seconds" mapstructure:"max_capture_seconds"`
	TempDir           string `json:"temp_dir" mapstructure:"temp_dir"`
}

// MaxCapture bounds video capture when the duration is unknown.
func (t TranscoderConfig) MaxCapture() time.Duration {
	return time.Duration(t.MaxCaptureSeconds) * time.Second
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" mapstructure:"level"`

	// Format is json or text.
	Format string `json:"format" mapstructure:"format"`
}

var (
	configInstance *Configuration
	configOnce     sync.Once
	configErr      error
)

// GetConfig returns the singleton Configuration, loading it on first call.
func GetConfig() (*Configuration, error) {
	configOnce.Do(func() {
		configInstance, configErr = loadConfig("")
	})
	return configInstance, configErr
}

// GetConfigWithPath is GetConfig with an explicit config file.
func GetConfigWithPath(configPath string) (*Configuration, error) {
	configOnce.Do(func() {
		configInstance, configErr = loadConfig(configPath)
	})
	return configInstance, configErr
}

// ResetConfig clears the singleton. Used by tests.
func ResetConfig() {
	configOnce = sync.Once{}
	configInstance = nil
	configErr = nil
}

// Validate checks every section and reports all problems at once.
func (c *Configuration) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535")
	}
	if c.Server.ReadTimeoutSeconds <= 0 || c.Server.WriteTimeoutSeconds <= 0 || c.Server.ShutdownTimeoutSeconds <= 0 {
		add("server timeouts must be positive")
	}
	if c.Server.MaxUploadMB <= 0 {
		add("server.max_upload_mb must be positive")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.FileDir == "" {
			add("storage.file_dir is required for the file backend")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			add("storage.redis_addr is required for the redis backend")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		add("storage.backend '%s' is invalid, must be one of: memory, file, redis, sqlite", c.Storage.Backend)
	}
	if c.Storage.Key == "" {
		add("storage.key is required")
	}

	if c.Providers.BuiltinURL != "" && !isHTTPURL(c.Providers.BuiltinURL) {
		add("providers.builtin_url '%s' is not an http(s) URL", c.Providers.BuiltinURL)
	}
	for id, u := range c.Providers.BaseURLs {
		if !domain.IsKnown(domain.ProviderID(id)) {
			add("providers.base_urls has unknown provider '%s'", id)
			continue
		}
		if u != "" && !isHTTPURL(u) {
			add("providers.base_urls.%s '%s' is not an http(s) URL", id, u)
		}
	}
	if c.Providers.RequestTimeoutSeconds <= 0 {
		add("providers.request_timeout_seconds must be positive")
	}
	if c.Providers.BatchConcurrency <= 0 {
		add("providers.batch_concurrency must be positive")
	}

	if c.Transcoder.MaxCaptureSeconds <= 0 {
		add("transcoder.max_capture_seconds must be positive")
	}

	if c.Logging.Level != "" && !isValidLogLevel(c.Logging.Level) {
		add("logging.level '%s' is invalid, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		add("logging.format '%s' is invalid, must be json or text", c.Logging.Format)
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
