// Package config provides configuration loading and structs for the inqdoc service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Search      SearchConfig      `yaml:"search"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Completion  CompletionConfig  `yaml:"completion"`
	Redis       RedisConfig       `yaml:"redis"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxUploadMiB int    `yaml:"max_upload_mib"`
}

// StorageConfig selects where document bytes live. The ledger always uses DatabasePath.
type StorageConfig struct {
	// Backend is "disk" or "sqlite".
	Backend      string `yaml:"backend"`
	Root         string `yaml:"root"`
	DatabasePath string `yaml:"database_path"`
}

// ExtractionConfig holds text extraction settings.
type ExtractionConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// CacheBackend is "memory" or "redis".
	CacheBackend    string `yaml:"cache_backend"`
	CacheMaxEntries int    `yaml:"cache_max_entries"`
	LLMFallback     *bool  `yaml:"llm_fallback"`
}

// LLMFallbackOrDefault returns whether the completion fallback is used; defaults to true.
func (e *ExtractionConfig) LLMFallbackOrDefault() bool {
	if e.LLMFallback != nil {
		return *e.LLMFallback
	}
	return true
}

// ChunkingConfig holds chunking settings. Zero sizes keep the strategy defaults.
type ChunkingConfig struct {
	Strategy        string `yaml:"strategy"`
	MaxChunkSize    int    `yaml:"max_chunk_size"`
	TargetChunkSize int    `yaml:"target_chunk_size"`
	MinChunkSize    int    `yaml:"min_chunk_size"`
	ChunkOverlap    *int   `yaml:"chunk_overlap"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	CacheSize  int    `yaml:"cache_size"`
	Workers    int    `yaml:"workers"`
	// RedisCache shares vectors through the redis section when it is configured.
	RedisCache bool          `yaml:"redis_cache"`
	RedisTTL   time.Duration `yaml:"redis_ttl"`
}

// VectorStoreConfig configures every backend; a backend is registered when its
// required fields are set. Memory is always available.
type VectorStoreConfig struct {
	Default  string         `yaml:"default"`
	Memory   MemoryConfig   `yaml:"memory"`
	Pinecone PineconeConfig `yaml:"pinecone"`
	Chroma   ChromaConfig   `yaml:"chroma"`
	Milvus   MilvusConfig   `yaml:"milvus"`
}

// MemoryConfig holds the in-process store settings. An empty Path disables persistence.
type MemoryConfig struct {
	Path string `yaml:"path"`
}

type PineconeConfig struct {
	APIKey    string `yaml:"api_key"`
	Index     string `yaml:"index"`
	Host      string `yaml:"host"`
	Namespace string `yaml:"namespace"`
}

type ChromaConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

type MilvusConfig struct {
	Address    string `yaml:"address"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// SearchConfig holds hybrid search defaults.
type SearchConfig struct {
	DefaultTopK    int     `yaml:"default_top_k"`
	MaxTopK        int     `yaml:"max_top_k"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	Rerank         *bool   `yaml:"rerank"`
	EnhanceContext *bool   `yaml:"enhance_context"`
}

// PromptConfig holds the answer prompt settings.
type PromptConfig struct {
	MaxTokens int `yaml:"max_tokens"`
	// Template must contain {context} and {question}; empty uses the built-in template.
	Template string `yaml:"template"`
	// ContextResults is how many search results are offered to the budgeter.
	ContextResults int `yaml:"context_results"`
}

// CompletionConfig lists providers in the order they are tried.
type CompletionConfig struct {
	Providers   []CompletionProvider `yaml:"providers"`
	Temperature float64              `yaml:"temperature"`
	MaxTokens   int                  `yaml:"max_tokens"`
}

type CompletionProvider struct {
	Name              string  `yaml:"name"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// RedisConfig is shared by the extraction and embedding caches. Empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// WatchConfig holds settings for watching the disk store root.
type WatchConfig struct {
	Extensions []string      `yaml:"extensions"`
	Recursive  *bool         `yaml:"recursive"`
	Debounce   time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads .env next to the config file, expands ${VAR} references, parses the
// YAML, applies defaults and expands paths.
func Load(path string) (*Config, error) {
	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.expandPaths(configDir)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a config with defaults only, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cwd, _ := os.Getwd()
	cfg.expandPaths(cwd)
	return &cfg
}

func (c *Config) expandPaths(configDir string) {
	c.Storage.Root = expandPath(c.Storage.Root, configDir)
	c.Storage.DatabasePath = expandPath(c.Storage.DatabasePath, configDir)
	if c.Embedding.ModelPath != "" {
		c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, configDir)
	}
	if c.VectorStore.Memory.Path != "" {
		c.VectorStore.Memory.Path = expandPath(c.VectorStore.Memory.Path, configDir)
	}
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "disk", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be disk or sqlite, got %q", c.Storage.Backend))
	}
	switch c.Extraction.CacheBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("extraction.cache_backend redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("extraction.cache_backend must be memory or redis, got %q", c.Extraction.CacheBackend))
	}
	if c.Search.SemanticWeight < 0 || c.Search.KeywordWeight < 0 {
		errs = append(errs, errors.New("search weights must not be negative"))
	}
	if t := c.Prompt.Template; t != "" && (!strings.Contains(t, "{context}") || !strings.Contains(t, "{question}")) {
		errs = append(errs, errors.New("prompt.template must contain {context} and {question}"))
	}
	for i, p := range c.Completion.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("completion.providers[%d]: name is required", i))
		}
	}
	return errors.Join(errs...)
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

// LoadDotEnv loads variables from path without overriding the environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default become empty.
func ExpandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := envPattern.FindStringSubmatch(m)
		if v, ok := os.LookupEnv(sub[1]); ok && v != "" {
			return v
		}
		return sub[2]
	})
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
