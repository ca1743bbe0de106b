package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMiB == 0 {
		cfg.Server.MaxUploadMiB = 64
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "disk"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "./data/documents"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/inqdoc.db"
	}
	if cfg.Extraction.CacheTTL == 0 {
		cfg.Extraction.CacheTTL = 5 * time.Minute
	}
	if cfg.Extraction.CacheBackend == "" {
		cfg.Extraction.CacheBackend = "memory"
	}
	if cfg.Extraction.CacheMaxEntries == 0 {
		cfg.Extraction.CacheMaxEntries = 1000
	}
	if cfg.Chunking.Strategy == "" {
		cfg.Chunking.Strategy = "sliding-window"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Workers == 0 {
		cfg.Embedding.Workers = 4
	}
	if cfg.Embedding.RedisTTL == 0 {
		cfg.Embedding.RedisTTL = 24 * time.Hour
	}
	if cfg.VectorStore.Default == "" {
		cfg.VectorStore.Default = "memory"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 50
	}
	if cfg.Search.SemanticWeight == 0 && cfg.Search.KeywordWeight == 0 {
		cfg.Search.SemanticWeight = 0.7
		cfg.Search.KeywordWeight = 0.3
	}
	if cfg.Prompt.MaxTokens == 0 {
		cfg.Prompt.MaxTokens = 120000
	}
	if cfg.Prompt.ContextResults == 0 {
		cfg.Prompt.ContextResults = 10
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".csv", ".json", ".pdf", ".docx", ".xlsx", ".pptx", ".odp", ".ods", ".odt", ".rtf"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
