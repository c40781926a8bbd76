// Package config provides configuration loading and structs for the Kotae server.
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
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Demo       DemoConfig       `yaml:"demo"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the vector store backend selection and its paths.
type StorageConfig struct {
	Backend      string `yaml:"backend"`
	ChromaPath   string `yaml:"chroma_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	CatalogPath  string `yaml:"catalog_path"`
}

// IngestConfig holds upload validation and chunking settings.
type IngestConfig struct {
	MaxFileSize  int64 `yaml:"max_file_size"`
	ChunkSize    int   `yaml:"chunk_size"`
	ChunkOverlap int   `yaml:"chunk_overlap"`
}

// EmbeddingConfig holds remote embedding API settings and the local fallback
// backend selection. APIKey falls back to $OPENAI_API_KEY when empty.
type EmbeddingConfig struct {
	BaseURL               string `yaml:"base_url"`
	APIKey                string `yaml:"api_key"`
	Model                 string `yaml:"model"`
	Dimensions            int    `yaml:"dimensions"`
	BatchSize             int    `yaml:"batch_size"`
	BatchDelayMS          int    `yaml:"batch_delay_ms"`
	ProbeTimeoutSeconds   int    `yaml:"probe_timeout_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	CacheSize             int    `yaml:"cache_size"`
	ONNXModelPath         string `yaml:"onnx_model_path"`
	ONNXMaxTokens         int    `yaml:"onnx_max_tokens"`
}

// BatchDelay returns the pause enforced between embedding batches.
func (e *EmbeddingConfig) BatchDelay() time.Duration {
	return time.Duration(e.BatchDelayMS) * time.Millisecond
}

// ProbeTimeout returns the deadline for the construction-time probe call.
func (e *EmbeddingConfig) ProbeTimeout() time.Duration {
	return time.Duration(e.ProbeTimeoutSeconds) * time.Second
}

// RequestTimeout returns the deadline for a single embedding request.
func (e *EmbeddingConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutSeconds) * time.Second
}

// GenerationConfig holds remote LLM API settings.
// APIKey falls back to $OPENAI_API_KEY when empty.
type GenerationConfig struct {
	BaseURL               string  `yaml:"base_url"`
	APIKey                string  `yaml:"api_key"`
	Model                 string  `yaml:"model"`
	MaxTokens             int     `yaml:"max_tokens"`
	Temperature           float64 `yaml:"temperature"`
	ProbeTimeoutSeconds   int     `yaml:"probe_timeout_seconds"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
}

// ProbeTimeout returns the deadline for the construction-time probe call.
func (g *GenerationConfig) ProbeTimeout() time.Duration {
	return time.Duration(g.ProbeTimeoutSeconds) * time.Second
}

// RequestTimeout returns the deadline for a single completion request.
func (g *GenerationConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSeconds) * time.Second
}

// RetrievalConfig holds similarity search settings.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	MaxTopK             int     `yaml:"max_top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	FallbackThreshold   float64 `yaml:"fallback_threshold"`
	MaxQueryLength      int     `yaml:"max_query_length"`
}

// DemoConfig controls the demo answer flow for empty-store queries.
type DemoConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands
// paths, and resolves API keys from the environment when unset.
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
	cfg.Storage.ChromaPath = expandPath(cfg.Storage.ChromaPath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	if cfg.Embedding.ONNXModelPath != "" {
		cfg.Embedding.ONNXModelPath = expandPath(cfg.Embedding.ONNXModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return &cfg, nil
}

// Default returns a fully defaulted config without reading any file.
// Paths are not expanded.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Save writes the config to path. Used by the init command to write a
// starter config file.
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
