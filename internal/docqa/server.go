package docqa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/llm/resilience"
	storeopts "github.com/kart-io/docqa/pkg/options/store"

	// Register LLM providers.
	_ "github.com/kart-io/docqa/pkg/llm/ollama"
	_ "github.com/kart-io/docqa/pkg/llm/openai"
)

// Name is the name of the application.
const Name = "docqa"

// Server represents the document QA server.
type Server struct {
	cfg     *Config
	srv     *http.Server
	cleanup []func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. Logger.
	cfg.LogOptions.AddInitialField("service.name", Name)
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting document QA service...")

	var cleanup []func()

	// 2. Metadata database.
	if err := os.MkdirAll(cfg.StoreOptions.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(filepath.Join(cfg.StoreOptions.DataDir, "docqa.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	docStore, err := store.NewDocumentStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document store: %w", err)
	}
	logger.Info("Document store initialized")

	// 3. Vector store.
	var vectorStore store.VectorStore
	switch cfg.StoreOptions.Backend {
	case storeopts.BackendMilvus:
		milvusClient, merr := milvus.New(cfg.MilvusOptions)
		if merr != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", merr)
		}
		cleanup = append(cleanup, func() { _ = milvusClient.Close(context.Background()) })

		vectorStore, err = store.NewMilvusStore(ctx, milvusClient,
			cfg.StoreOptions.Collection, cfg.PipelineOptions.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus store: %w", err)
		}
	default:
		vectorStore, err = store.NewLocalStore(
			filepath.Join(cfg.StoreOptions.DataDir, "index.jsonl"),
			cfg.PipelineOptions.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local store: %w", err)
		}
	}
	cleanup = append(cleanup, func() { _ = vectorStore.Close(context.Background()) })
	logger.Infow("Vector store initialized", "backend", cfg.StoreOptions.Backend)

	// 4. Redis. A dead Redis disables caching but does not stop the service.
	var redisClient *goredis.Client
	if cfg.CacheOptions.Enabled && cfg.CacheOptions.Redis != nil {
		redisOpts := cfg.CacheOptions.Redis
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         redisOpts.Addr(),
			Password:     redisOpts.Password,
			DB:           redisOpts.Database,
			MaxRetries:   redisOpts.MaxRetries,
			PoolSize:     redisOpts.PoolSize,
			MinIdleConns: redisOpts.MinIdleConns,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnw("Failed to connect to redis, cache is disabled", "error", err.Error())
			_ = redisClient.Close()
			redisClient = nil
		} else {
			cleanup = append(cleanup, func() { _ = redisClient.Close() })
			logger.Infow("Redis cache initialized",
				"addr", redisOpts.Addr(),
				"ttl", cfg.CacheOptions.TTL,
			)
		}
	} else {
		logger.Info("Cache is disabled")
	}

	var queryCache *biz.QueryCache
	if redisClient != nil {
		queryCache = biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
			Enabled:   true,
			TTL:       cfg.CacheOptions.TTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix,
		})
	}

	// 5. LLM providers, wrapped for retry and circuit breaking.
	embedProvider, err := buildEmbeddingProvider(cfg, redisClient)
	if err != nil {
		return nil, err
	}
	chatProvider, err := buildChatProvider(cfg)
	if err != nil {
		return nil, err
	}

	// 6. Worker pools.
	if err := pool.InitGlobalWithConfig(pool.DefaultGlobalConfig()); err != nil {
		return nil, fmt.Errorf("failed to initialize worker pools: %w", err)
	}
	cleanup = append(cleanup, func() { _ = pool.CloseGlobal() })

	// 7. Biz layer.
	svc, err := buildService(cfg, vectorStore, docStore, embedProvider, chatProvider, queryCache)
	if err != nil {
		return nil, err
	}
	logger.Infow("Document QA service initialized",
		"cache.enabled", queryCache != nil,
		"chunk_size", cfg.PipelineOptions.ChunkSize,
		"top_k", cfg.PipelineOptions.TopK,
	)

	// 8. HTTP server.
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, handler.NewHandler(svc))

	srv := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("Document QA service is ready")
	return &Server{cfg: cfg, srv: srv, cleanup: cleanup}, nil
}

func buildEmbeddingProvider(cfg *Config, redisClient *goredis.Client) (llm.EmbeddingProvider, error) {
	provider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.MaxAttempts = cfg.EmbeddingOptions.MaxRetries
	var wrapped llm.EmbeddingProvider = resilience.NewResilientEmbeddingProvider(provider, retryConfig, nil)

	if redisClient != nil {
		wrapped = llm.NewCachedEmbeddingProvider(wrapped, redisClient, nil)
		logger.Info("Embedding cache enabled")
	}
	return wrapped, nil
}

func buildChatProvider(cfg *Config) (llm.ChatProvider, error) {
	provider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	retryConfig := resilience.DefaultRetryConfig()
	retryConfig.MaxAttempts = cfg.ChatOptions.MaxRetries
	return resilience.NewResilientChatProvider(provider, retryConfig, nil), nil
}

func buildService(
	cfg *Config,
	vectorStore store.VectorStore,
	docStore *store.DocumentStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	queryCache *biz.QueryCache,
) (biz.Service, error) {
	po := cfg.PipelineOptions

	indexer, err := biz.NewIndexer(vectorStore, docStore, embedProvider, &biz.IndexerConfig{
		ChunkSize:      po.ChunkSize,
		ChunkOverlap:   po.ChunkOverlap,
		EmbeddingDim:   po.EmbeddingDim,
		EmbedBatchSize: po.EmbedBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	retriever, err := biz.NewRetriever(vectorStore, embedProvider, &biz.RetrieverConfig{
		TopK:                po.TopK,
		MaxTopK:             po.MaxTopK,
		SimilarityThreshold: float32(po.SimilarityThreshold),
		DedupByDocument:     po.DedupByDocument,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retriever: %w", err)
	}

	generator, err := biz.NewGenerator(chatProvider, &biz.GeneratorConfig{
		SystemPrompt:     po.SystemPrompt,
		MaxContextTokens: po.MaxContextTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	return biz.NewService(indexer, retriever, generator, queryCache, docStore, vectorStore, &biz.ServiceConfig{
		MaxTextSize: po.MaxTextSize,
	})
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails. Shutdown drains in-flight requests within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		for i := len(s.cleanup) - 1; i >= 0; i-- {
			s.cleanup[i]()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
