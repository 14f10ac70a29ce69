// Package config loads the habita service configuration from per-environment
// YAML files with ${VAR} expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the habita API configuration.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Search        SearchConfig        `yaml:"search"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Index         IndexConfig         `yaml:"index"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig selects the active provider and the batching policy.
type EmbeddingConfig struct {
	Provider     string                    `yaml:"provider"` // hf | openai
	BatchSize    int                       `yaml:"batch_size"`
	BatchDelayMS int                       `yaml:"batch_delay_ms"`
	MaxRetries   int                       `yaml:"max_retries"`
	CacheTTLSec  int                       `yaml:"cache_ttl_sec"` // query embedding cache, 0 disables
	Providers    map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds one embedding provider's settings.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	TopK       int     `yaml:"top_k"`
	MinScore   float64 `yaml:"min_score"`
	MaxResults int     `yaml:"max_results"`
}

// TranscriptionConfig holds voice search settings. OpenAI Whisper is tried
// first when its key is set; the Hugging Face model is the fallback.
type TranscriptionConfig struct {
	OpenAIAPIKey string `yaml:"openai_api_key"`
	HFAPIKey     string `yaml:"hf_api_key"`
	HFModel      string `yaml:"hf_model"`
	MaxUploadMB  int    `yaml:"max_upload_mb"`
}

// IndexConfig holds listing index settings.
type IndexConfig struct {
	KeyPrefix       string `yaml:"key_prefix"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	ReadyTimeoutSec int    `yaml:"ready_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ActiveProvider returns the selected provider's settings.
func (c *Config) ActiveProvider() ProviderConfig {
	return c.Embedding.Providers[c.Embedding.Provider]
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hf"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 10
	}
	if c.Embedding.BatchDelayMS <= 0 {
		c.Embedding.BatchDelayMS = 800
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = 4
	}
	if c.Embedding.CacheTTLSec < 0 {
		c.Embedding.CacheTTLSec = 0
	}
	if c.Embedding.Providers == nil {
		c.Embedding.Providers = map[string]ProviderConfig{}
	}
	applyProviderDefaults(c.Embedding.Providers, "hf", ProviderConfig{
		Model:      "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions: 384,
	})
	applyProviderDefaults(c.Embedding.Providers, "openai", ProviderConfig{
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	})
	if c.Search.TopK <= 0 {
		c.Search.TopK = 12
	}
	if c.Search.MinScore <= 0 {
		c.Search.MinScore = 0.56
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 10
	}
	if c.Transcription.HFModel == "" {
		c.Transcription.HFModel = "openai/whisper-large-v3"
	}
	if c.Transcription.MaxUploadMB <= 0 {
		c.Transcription.MaxUploadMB = 15
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "habita:listing:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.ReadyTimeoutSec <= 0 {
		c.Index.ReadyTimeoutSec = 60
	}
}

func applyProviderDefaults(providers map[string]ProviderConfig, name string, def ProviderConfig) {
	p := providers[name]
	if p.Model == "" {
		p.Model = def.Model
	}
	if p.Dimensions <= 0 {
		p.Dimensions = def.Dimensions
	}
	providers[name] = p
}

// Validate checks the configuration for correctness. Missing credentials
// for the active provider are fatal here, not per-request.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Embedding.Provider {
	case "hf", "openai":
	default:
		return fmt.Errorf("embedding.provider must be \"hf\" or \"openai\", got %q", c.Embedding.Provider)
	}
	active := c.ActiveProvider()
	if active.APIKey == "" {
		return fmt.Errorf("embedding.providers.%s.api_key is required", c.Embedding.Provider)
	}
	if active.Dimensions <= 0 {
		return fmt.Errorf("embedding.providers.%s.dimensions must be positive", c.Embedding.Provider)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be in [0,1], got %g", c.Search.MinScore)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
