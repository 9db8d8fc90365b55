package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/jarvis/internal/api"
	"github.com/nidhogg/jarvis/internal/cache"
	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/nidhogg/jarvis/internal/config"
	"github.com/nidhogg/jarvis/internal/embedding"
	"github.com/nidhogg/jarvis/internal/history"
	"github.com/nidhogg/jarvis/internal/logging"
	"github.com/nidhogg/jarvis/internal/orchestrator"
	"github.com/nidhogg/jarvis/internal/provider"
	"github.com/nidhogg/jarvis/internal/rag"
	"github.com/nidhogg/jarvis/internal/store"
	"github.com/nidhogg/jarvis/internal/vectorstore"
	"go.uber.org/zap"
)

func main() {
	ingestPath := flag.String("ingest", "", "replace the knowledge collection with the chunks of a JSON file and exit")
	flag.Parse()

	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "development"
	}
	_ = godotenv.Load(".env." + appEnv)
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/jarvis.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development || appEnv == "development",
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Jarvis...", zap.String("env", appEnv))
	logger.Info("Config loaded", zap.String("path", cfgPath))
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Embeddings
	embedder, err := embedding.New(ctx, embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout.Std(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to build embedder", zap.Error(err))
	}
	if c, ok := embedder.(io.Closer); ok {
		defer c.Close()
	}
	dim := embedder.Dimension()
	if dim == 0 {
		probe, err := embedding.EmbedOne(ctx, embedder, "dimension probe")
		if err != nil {
			logger.Fatal("embedding probe failed", zap.Error(err))
		}
		dim = len(probe)
	}
	logger.Info("Embedder ready", zap.String("provider", cfg.Embedding.Provider), zap.Int("dimension", dim))

	// Vector index
	backend, err := vectorstore.Open(vectorstore.Config{
		Mode:   cfg.VectorDB.Mode,
		Qdrant: vectorstore.QdrantConfig{Host: cfg.VectorDB.Qdrant.Host, Port: cfg.VectorDB.Qdrant.Port},
	}, logger)
	if err != nil {
		logger.Fatal("failed to open vector index", zap.Error(err))
	}
	defer backend.Close()

	knowledge, err := backend.Collection(ctx, cfg.VectorDB.KnowledgeCollection, dim)
	if err != nil {
		logger.Fatal("failed to open knowledge collection", zap.Error(err))
	}

	registry := classifier.DefaultRegistry()
	ingester := rag.NewIngester(knowledge, embedder, registry, cfg.Knowledge.Concurrency, logger)

	if *ingestPath != "" {
		n, err := ingester.IngestFile(ctx, *ingestPath)
		if err != nil {
			logger.Fatal("ingestion failed", zap.String("path", *ingestPath), zap.Error(err))
		}
		logger.Info("Ingestion complete", zap.String("path", *ingestPath), zap.Int("chunks", n))
		return
	}

	if cfg.Knowledge.Path != "" {
		if n, err := ingester.IngestFile(ctx, cfg.Knowledge.Path); err != nil {
			logger.Warn("initial ingestion failed", zap.String("path", cfg.Knowledge.Path), zap.Error(err))
		} else {
			logger.Info("Knowledge loaded", zap.Int("chunks", n))
		}
		if cfg.Knowledge.Watch {
			if err := ingester.Watch(ctx, cfg.Knowledge.Path); err != nil {
				logger.Warn("knowledge watch unavailable", zap.Error(err))
			}
		}
	}

	cacheIndex, err := backend.Collection(ctx, cfg.VectorDB.CacheCollection, dim)
	if err != nil {
		logger.Fatal("failed to open cache collection", zap.Error(err))
	}
	semCache := cache.New(cacheIndex, embedder, cache.Config{
		MaxSize:   cfg.Cache.MaxSize,
		Threshold: *cfg.Cache.Threshold,
	}, logger)

	// Classifier
	var cls *classifier.Classifier
	if cfg.Classifier.CentroidsPath != "" {
		refs, err := classifier.LoadReferences(cfg.Classifier.CentroidsPath, registry)
		if err != nil {
			logger.Fatal("failed to load classifier centroids", zap.Error(err))
		}
		cls, err = classifier.NewWithReferences(embedder, registry, refs, *cfg.Classifier.Threshold, logger)
		if err != nil {
			logger.Fatal("failed to build classifier", zap.Error(err))
		}
	} else {
		cls, err = classifier.New(ctx, embedder, registry, *cfg.Classifier.Threshold, logger)
		if err != nil {
			logger.Fatal("failed to build classifier", zap.Error(err))
		}
	}

	// Generation backends, in failover order
	var providers []provider.Provider
	for _, pc := range cfg.Providers {
		p, err := provider.New(ctx, provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		}, logger)
		if err != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.String("type", pc.Type), zap.Error(err))
			continue
		}
		if c, ok := p.(io.Closer); ok {
			defer c.Close()
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		logger.Fatal("no usable providers")
	}
	failover := provider.NewFailover(providers, provider.FailoverOptions{
		Timeout:     cfg.Generation.Timeout.Std(),
		Temperature: cfg.Generation.Temperature,
	}, logger)

	probes := map[string]api.Probe{
		"vectordb": func(ctx context.Context) error {
			_, err := knowledge.Count(ctx)
			return err
		},
	}
	hist, closeHistory, err := openHistory(ctx, cfg.History, probes, logger)
	if err != nil {
		logger.Fatal("failed to open history store", zap.String("backend", cfg.History.Backend), zap.Error(err))
	}
	defer closeHistory()

	retriever := rag.NewRetriever(knowledge, embedder, logger)
	orch := orchestrator.New(orchestrator.Deps{
		Cache:      semCache,
		Classifier: cls,
		Retriever:  retriever,
		Generator:  failover,
		History:    hist,
		Registry:   registry,
	}, orchestrator.Config{
		HistoryLength: cfg.History.Length,
		Owner:         cfg.Assistant.Owner,
	}, logger)

	handler := api.NewHandler(api.Options{
		Answerer:       orch,
		Cache:          semCache,
		Knowledge:      retriever,
		TopK:           cfg.Retrieval.TopK,
		Probes:         probes,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout.Std(),
	}, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Jarvis listening", zap.String("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down Jarvis...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// openHistory builds the configured conversation store and registers its
// health probe.
func openHistory(ctx context.Context, cfg config.HistoryConfig, probes map[string]api.Probe, logger *zap.Logger) (history.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		r, err := history.NewRedis(cfg.Redis.URL, cfg.Redis.TTL.Std(), logger)
		if err != nil {
			return nil, nil, err
		}
		probes["redis"] = r.Ping
		return r, func() { r.Close() }, nil
	case "postgres":
		s, err := store.New(ctx, cfg.Postgres.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx, cfg.Postgres.MigrationsDir); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		probes["postgres"] = s.Ping
		return s, s.Close, nil
	default:
		logger.Info("history: in-process memory")
		return history.NewMemory(), func() {}, nil
	}
}
