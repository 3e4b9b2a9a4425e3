// Package config provides configuration loading and structs for the kioku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Vectors   VectorsConfig   `yaml:"vectors"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RequestTimeout bounds each request when set; 0 leaves requests unbounded.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds the root of the partition tree.
type StorageConfig struct {
	VectorsPath string `yaml:"vectors_path"`
}

// VectorsConfig holds collection behavior.
type VectorsConfig struct {
	DefaultSource     string `yaml:"default_source"`
	BatchSize         int    `yaml:"batch_size"`
	DefaultTopK       int    `yaml:"default_top_k"`
	EnableModelScopes *bool  `yaml:"enable_model_scopes"`
	QueryConcurrency  int    `yaml:"query_concurrency"`
}

// ModelScopesOrDefault returns whether partitions are split by model; defaults to true when unset.
func (v *VectorsConfig) ModelScopesOrDefault() bool {
	if v.EnableModelScopes != nil {
		return *v.EnableModelScopes
	}
	return true
}

// EmbeddingConfig holds the local model and the remote provider settings.
type EmbeddingConfig struct {
	// CacheSize bounds the query embedding cache; 0 disables it, unset selects the default.
	CacheSize      *int                      `yaml:"cache_size"`
	RequestTimeout time.Duration             `yaml:"request_timeout"`
	Local          LocalModelConfig          `yaml:"local"`
	Providers      map[string]ProviderConfig `yaml:"providers"`
}

// CacheSizeOrDefault returns the configured cache size; defaults to 1024 when unset.
func (e *EmbeddingConfig) CacheSizeOrDefault() int {
	if e.CacheSize != nil {
		return *e.CacheSize
	}
	return 1024
}

// LocalModelConfig holds ONNX embedder settings for the transformers source.
type LocalModelConfig struct {
	ModelName  string `yaml:"model_name"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// ProviderConfig holds defaults for one remote source. Request headers override them.
type ProviderConfig struct {
	APIKey            string  `yaml:"api_key,omitempty"`
	APIKeyEnv         string  `yaml:"api_key_env,omitempty"`
	APIURL            string  `yaml:"api_url,omitempty"`
	Model             string  `yaml:"model,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// ResolvedAPIKey returns APIKey, or the value of the APIKeyEnv environment variable when APIKey is empty.
func (p ProviderConfig) ResolvedAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.VectorsPath = expandPath(cfg.Storage.VectorsPath, configDir)
	if cfg.Embedding.Local.ModelPath != "" {
		cfg.Embedding.Local.ModelPath = expandPath(cfg.Embedding.Local.ModelPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
