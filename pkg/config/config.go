package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for surge-agent.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, machine secrets) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// DryRun makes every mutating backend call log its payload instead of
	// executing. The CLI flag overrides this.
	DryRun bool `yaml:"dry_run" env:"DRY_RUN" env-default:"true"`

	// Model endpoints
	Extraction ExtractionConfig `yaml:"extraction"`
	Resolver   ResolverConfig   `yaml:"resolver"`

	// Backend asset API
	Backend BackendConfig `yaml:"backend"`

	// Cached read-mirror of backend state
	Mirror MirrorConfig `yaml:"mirror"`

	// Downstream cache refresh collaborator
	CacheRefresh CacheRefreshConfig `yaml:"cache_refresh"`
}

// ExtractionConfig holds the default extraction model endpoint
// (OpenAI-compatible, JSON mode).
type ExtractionConfig struct {
	BaseURL     string  `yaml:"base_url" env:"EXTRACTION_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model       string  `yaml:"model" env:"EXTRACTION_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string  `yaml:"-" env:"OPENAI_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"EXTRACTION_TEMPERATURE" env-default:"0"`
	// RequestsPerSecond throttles model calls; 0 disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"EXTRACTION_RPS" env-default:"2"`
}

// ResolverConfig holds the higher-capability model used by the field-spec
// resolver stage. Typed batch conversion is failure-prone, so it runs on a
// stronger model than the mapping calls.
type ResolverConfig struct {
	Model  string `yaml:"model" env:"RESOLVER_MODEL" env-default:"claude-sonnet-4-20250514"`
	APIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
}

// BackendConfig holds the chaincode asset API connection settings.
type BackendConfig struct {
	Host string `yaml:"host" env:"BACKEND_HOST" env-default:"localhost"`
	Port int    `yaml:"port" env:"BACKEND_PORT" env-default:"3000"`
	// TimeoutSeconds is the fixed per-request timeout for backend calls.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"BACKEND_TIMEOUT_SECONDS" env-default:"60"`
	// TypeNamespace is prepended to asset type names in chaincode payloads.
	TypeNamespace string `yaml:"type_namespace" env:"BACKEND_TYPE_NAMESPACE" env-default:"eu.surgetech.ewc.bc.chaincode.model.asset."`
}

// MirrorConfig holds the Mongo connection for the cached read-mirror of
// backend state (cached_<AssetType> collections).
type MirrorConfig struct {
	URI      string `yaml:"uri" env:"MIRROR_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"MIRROR_DATABASE" env-default:"kering"`
	// TimeoutSeconds bounds server selection and individual lookups.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"MIRROR_TIMEOUT_SECONDS" env-default:"5"`
}

// CacheRefreshConfig holds the ultra-cache refresh collaborator settings.
// Per-org machine secrets live in a YAML file outside the main config.
type CacheRefreshConfig struct {
	SecretsPath string `yaml:"secrets_path" env:"SECRETS_PATH" env-default:"secrets.yaml"`
	// Domain is the host suffix: https://<org>[.<env>].<domain>
	Domain string `yaml:"domain" env:"CACHE_REFRESH_DOMAIN" env-default:"cp-bc.com"`
	// TimeoutSeconds is the per-request timeout for refresh calls.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"CACHE_REFRESH_TIMEOUT_SECONDS" env-default:"120"`
}

// Load reads configuration from path with environment variable overrides.
// The version parameter is injected at build time and set on the returned
// Config. A missing config file is not an error: every field has a default or
// comes from the environment.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	return cfg, nil
}

// BaseURL returns the backend API base URL.
func (c *BackendConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// Timeout returns the per-request backend timeout.
func (c *BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the mirror lookup timeout.
func (c *MirrorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-request cache refresh timeout.
func (c *CacheRefreshConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
