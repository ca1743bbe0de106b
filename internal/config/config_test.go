package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
extraction:
  cache_ttl: 90s
chunking:
  strategy: semantic
  chunk_overlap: 0
completion:
  providers:
    - name: groq
      model: llama-3.1-8b-instant
      max_retries: 2
    - name: ollama
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Extraction.CacheTTL != 90*time.Second {
		t.Errorf("cache_ttl: got %v", cfg.Extraction.CacheTTL)
	}
	if cfg.Chunking.Strategy != "semantic" || cfg.Chunking.ChunkOverlap == nil || *cfg.Chunking.ChunkOverlap != 0 {
		t.Errorf("chunking: got %+v", cfg.Chunking)
	}
	if len(cfg.Completion.Providers) != 2 || cfg.Completion.Providers[0].MaxRetries != 2 {
		t.Errorf("completion providers: got %+v", cfg.Completion.Providers)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  host: "localhost"
  port: 8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  root: "./docs"
  database_path: "./data/db/inqdoc.db"
vector_store:
  memory:
    path: "./data/vectors.json"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db", "inqdoc.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "docs"); cfg.Storage.Root != want {
		t.Errorf("root = %s, want %s", cfg.Storage.Root, want)
	}
	if want := filepath.Join(dir, "data", "vectors.json"); cfg.VectorStore.Memory.Path != want {
		t.Errorf("memory path = %s, want %s", cfg.VectorStore.Memory.Path, want)
	}
}

func TestLoad_envExpansionAndDotEnv(t *testing.T) {
	path := writeConfig(t, `
vector_store:
  default: pinecone
  pinecone:
    api_key: "${INQDOC_TEST_PINECONE_KEY}"
    index: "${INQDOC_TEST_INDEX:-docs}"
completion:
  providers:
    - name: openrouter
      api_key: ${INQDOC_TEST_OPENROUTER_KEY}
`)
	dotenv := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(dotenv, []byte("INQDOC_TEST_OPENROUTER_KEY=from-dotenv\nINQDOC_TEST_PINECONE_KEY=ignored\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INQDOC_TEST_PINECONE_KEY", "pc-secret")
	t.Cleanup(func() { _ = os.Unsetenv("INQDOC_TEST_OPENROUTER_KEY") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VectorStore.Pinecone.APIKey != "pc-secret" {
		t.Errorf("environment should win over .env: got %q", cfg.VectorStore.Pinecone.APIKey)
	}
	if cfg.VectorStore.Pinecone.Index != "docs" {
		t.Errorf("default value: got %q", cfg.VectorStore.Pinecone.Index)
	}
	if cfg.Completion.Providers[0].APIKey != "from-dotenv" {
		t.Errorf(".env value: got %q", cfg.Completion.Providers[0].APIKey)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("INQDOC_TEST_A", "alpha")
	tests := []struct {
		in, want string
	}{
		{"${INQDOC_TEST_A}", "alpha"},
		{"x-${INQDOC_TEST_A}-y", "x-alpha-y"},
		{"${INQDOC_TEST_UNSET}", ""},
		{"${INQDOC_TEST_UNSET:-fallback}", "fallback"},
		{"$INQDOC_TEST_A", "$INQDOC_TEST_A"},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandEnv(tt.in); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name, content, want string
	}{
		{"backend", "storage:\n  backend: s3\n", "storage.backend"},
		{"redis cache without redis", "extraction:\n  cache_backend: redis\n", "redis.addr"},
		{"template", "prompt:\n  template: \"no placeholders\"\n", "prompt.template"},
		{"provider name", "completion:\n  providers:\n    - model: x\n", "name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load: got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Search.DefaultTopK != 10 {
		t.Errorf("default top k: got %d", cfg.Search.DefaultTopK)
	}
	if cfg.Search.SemanticWeight != 0.7 || cfg.Search.KeywordWeight != 0.3 {
		t.Errorf("default weights: got %v/%v", cfg.Search.SemanticWeight, cfg.Search.KeywordWeight)
	}
	if cfg.Extraction.CacheTTL != 5*time.Minute {
		t.Errorf("default cache ttl: got %v", cfg.Extraction.CacheTTL)
	}
	if cfg.Prompt.MaxTokens != 120000 {
		t.Errorf("default prompt budget: got %d", cfg.Prompt.MaxTokens)
	}
	if cfg.VectorStore.Default != "memory" || cfg.Storage.Backend != "disk" {
		t.Errorf("default backends: got %q/%q", cfg.VectorStore.Default, cfg.Storage.Backend)
	}
	if cfg.Watch.Extensions == nil || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if !cfg.Extraction.LLMFallbackOrDefault() {
		t.Error("llm fallback should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_keepsExplicitWeights(t *testing.T) {
	cfg := &Config{Search: SearchConfig{SemanticWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Search.SemanticWeight != 1 || cfg.Search.KeywordWeight != 0 {
		t.Errorf("weights: got %v/%v", cfg.Search.SemanticWeight, cfg.Search.KeywordWeight)
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
