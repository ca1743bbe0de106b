package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hyperjump/inqdoc/internal/chunking"
	"github.com/hyperjump/inqdoc/internal/completion"
	"github.com/hyperjump/inqdoc/internal/config"
	"github.com/hyperjump/inqdoc/internal/embedding"
	"github.com/hyperjump/inqdoc/internal/extract"
	"github.com/hyperjump/inqdoc/internal/prompt"
	"github.com/hyperjump/inqdoc/internal/search"
	"github.com/hyperjump/inqdoc/internal/storage"
	"github.com/hyperjump/inqdoc/internal/vectorstore"
)

const (
	connectTimeout   = 30 * time.Second
	redisPingTimeout = 2 * time.Second
)

// New builds every component from cfg. Remote vector stores are registered when
// configured and connected on first use.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = p.Close()
		}
	}()

	ledger, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	p.onClose(ledger.Close)
	p.Ledger = ledger

	switch cfg.Storage.Backend {
	case "sqlite":
		p.Documents = ledger
	default:
		disk, err := storage.NewDiskStore(cfg.Storage.Root)
		if err != nil {
			return nil, err
		}
		p.Documents = disk
	}

	rdb := connectRedis(ctx, cfg.Redis, logger)
	if rdb != nil {
		p.onClose(rdb.Close)
	}

	providers := make([]completion.ProviderConfig, len(cfg.Completion.Providers))
	for i, pc := range cfg.Completion.Providers {
		providers[i] = completion.ProviderConfig(pc)
	}
	gwOpts := []completion.Option{completion.WithLogger(logger)}
	if cfg.Completion.Temperature > 0 || cfg.Completion.MaxTokens > 0 {
		gwOpts = append(gwOpts, completion.WithAnswerOptions(completion.CallOptions{
			Temperature: cfg.Completion.Temperature,
			MaxTokens:   cfg.Completion.MaxTokens,
		}))
	}
	p.Gateway = completion.NewGatewayFromConfig(ctx, completion.NewProviderRegistry(), providers, gwOpts...)

	extractOpts := []extract.ServiceOption{extract.WithLogger(logger), extract.WithTTL(cfg.Extraction.CacheTTL)}
	switch {
	case cfg.Extraction.CacheBackend == "redis" && rdb != nil:
		extractOpts = append(extractOpts, extract.WithCache(extract.NewRedisCache(rdb, "", cfg.Extraction.CacheTTL, logger)))
	default:
		if cfg.Extraction.CacheBackend == "redis" {
			logger.Warn("redis unavailable, extraction cache is in-process")
		}
		extractOpts = append(extractOpts, extract.WithCache(
			extract.NewMemoryCache(cfg.Extraction.CacheTTL, extract.WithMaxEntries(cfg.Extraction.CacheMaxEntries))))
	}
	if cfg.Extraction.LLMFallbackOrDefault() && len(p.Gateway.Providers()) > 0 {
		extractOpts = append(extractOpts, extract.WithFallback(p.Gateway))
	}
	p.Extractor = extract.NewService(p.Documents, extractOpts...)

	chunkers, err := newChunkers(cfg.Chunking)
	if err != nil {
		return nil, err
	}
	p.Chunkers = chunkers

	emb, err := embedding.New(ctx, embedding.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		ModelPath:  cfg.Embedding.ModelPath,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		CacheSize:  cfg.Embedding.CacheSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Embedding.RedisCache && rdb != nil {
		ns := fmt.Sprintf("%s/%s/%d", cfg.Embedding.Provider, cfg.Embedding.Model, emb.Dimensions())
		emb = embedding.NewRedisCachedEmbedder(emb, rdb, ns, cfg.Embedding.RedisTTL, logger)
	}
	p.Embedder = emb

	pool, err := embedding.NewPool(cfg.Embedding.Workers, logger)
	if err != nil {
		return nil, err
	}
	p.Pool = pool

	stores, err := newStores(cfg.VectorStore, emb, pool, logger)
	if err != nil {
		return nil, err
	}
	p.Stores = stores

	counter := prompt.NewCounter(logger)
	p.Budgeter = prompt.NewBudgeter(counter, logger)

	p.settings = settingsFromConfig(cfg)
	p.searcher = search.NewSearcher(p.Embedder, p.Stores, logger)

	logger.Info("pipeline ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.Strings("vector_stores", stores.Names()),
		zap.String("default_store", stores.Default()),
		zap.String("default_chunker", chunkers.Default()),
		zap.Strings("completion", p.Gateway.Providers()),
		zap.Bool("exact_tokens", counter.Exact()),
	)
	ok = true
	return p, nil
}

// connectRedis returns nil when Redis is not configured or not reachable.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, shared caches disabled", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func newChunkers(cfg config.ChunkingConfig) (*chunking.Registry, error) {
	var opts []chunking.Option
	if cfg.MaxChunkSize > 0 {
		opts = append(opts, chunking.WithMaxChunkSize(cfg.MaxChunkSize))
	}
	if cfg.TargetChunkSize > 0 {
		opts = append(opts, chunking.WithTargetChunkSize(cfg.TargetChunkSize))
	}
	if cfg.MinChunkSize > 0 {
		opts = append(opts, chunking.WithMinChunkSize(cfg.MinChunkSize))
	}
	if cfg.ChunkOverlap != nil {
		opts = append(opts, chunking.WithChunkOverlap(*cfg.ChunkOverlap))
	}
	reg := chunking.NewDefaultRegistry(opts...)
	if err := reg.SetDefault(cfg.Strategy); err != nil {
		return nil, err
	}
	// Build once so invalid sizes fail at startup.
	if _, err := reg.Get(""); err != nil {
		return nil, err
	}
	return reg, nil
}

func newStores(cfg config.VectorStoreConfig, emb embedding.Embedder, pool *ants.Pool, logger *zap.Logger) (*vectorstore.Registry, error) {
	opts := []vectorstore.Option{vectorstore.WithEmbedder(emb), vectorstore.WithPool(pool)}
	reg := vectorstore.NewRegistry()

	reg.Register(vectorstore.NameMemory, func() (vectorstore.Client, error) {
		return vectorstore.NewMemoryStore(cfg.Memory.Path, opts...)
	})
	if cfg.Pinecone.APIKey != "" {
		pc := vectorstore.PineconeConfig{
			APIKey:    cfg.Pinecone.APIKey,
			Index:     cfg.Pinecone.Index,
			Host:      cfg.Pinecone.Host,
			Namespace: cfg.Pinecone.Namespace,
		}
		reg.Register(vectorstore.NamePinecone, func() (vectorstore.Client, error) {
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			return vectorstore.NewPineconeStore(ctx, pc, logger, opts...)
		})
	}
	if cfg.Chroma.URL != "" {
		cc := vectorstore.ChromaConfig{URL: cfg.Chroma.URL, Collection: cfg.Chroma.Collection}
		reg.Register(vectorstore.NameChroma, func() (vectorstore.Client, error) {
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			return vectorstore.NewChromaStore(ctx, cc, logger, opts...)
		})
	}
	if cfg.Milvus.Address != "" {
		mc := vectorstore.MilvusConfig{
			Address:    cfg.Milvus.Address,
			Username:   cfg.Milvus.Username,
			Password:   cfg.Milvus.Password,
			Database:   cfg.Milvus.Database,
			Collection: cfg.Milvus.Collection,
			Dimensions: emb.Dimensions(),
		}
		reg.Register(vectorstore.NameMilvus, func() (vectorstore.Client, error) {
			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			return vectorstore.NewMilvusStore(ctx, mc, logger, opts...)
		})
	}
	if err := reg.SetDefault(cfg.Default); err != nil {
		return nil, fmt.Errorf("vector_store.default: %w", err)
	}
	return reg, nil
}

func settingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	s.Search.TopK = cfg.Search.DefaultTopK
	s.Search.Weights = search.Weights{Semantic: cfg.Search.SemanticWeight, Keyword: cfg.Search.KeywordWeight}
	if cfg.Search.Rerank != nil {
		s.Search.Rerank = *cfg.Search.Rerank
	}
	if cfg.Search.EnhanceContext != nil {
		s.Search.EnhanceContext = *cfg.Search.EnhanceContext
	}
	s.MaxTopK = cfg.Search.MaxTopK
	s.PromptMaxTokens = cfg.Prompt.MaxTokens
	if cfg.Prompt.Template != "" {
		s.PromptTemplate = cfg.Prompt.Template
	}
	s.ContextResults = cfg.Prompt.ContextResults
	return s
}
