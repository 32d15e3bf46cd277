// Package app assembles the services shared by the API server, the worker
// and the CLI from a config.Config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/projectsamarth/samarth/internal/cache"
	"github.com/projectsamarth/samarth/internal/config"
	"github.com/projectsamarth/samarth/internal/database"
	"github.com/projectsamarth/samarth/internal/embedding"
	"github.com/projectsamarth/samarth/internal/index"
	"github.com/projectsamarth/samarth/internal/indexer"
	"github.com/projectsamarth/samarth/internal/llm"
	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/rag"
	"github.com/projectsamarth/samarth/internal/session"
	"github.com/projectsamarth/samarth/internal/vectorstore"
)

type App struct {
	Config   *config.Config
	Gateway  llm.Gateway
	Embedder embedding.Embedder
	Index    *index.Handle
	Pipeline *rag.Pipeline
	Sessions *session.Manager

	// DB and Redis are nil unless configured.
	DB    *pgxpool.Pool
	Redis *redis.Client
	Cache *cache.Cache

	vectors *vectorstore.PgVectorStore
	expect  index.Expect
}

// New connects the configured backends and loads the index from
// cfg.Index.Path. A missing or incompatible index is logged, not returned:
// the app starts and answers with an unavailable-index error until an index
// is reloaded.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Database.URL != "" {
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.DB = pool
		if err := database.RunMigrations(ctx, pool, cfg.Database.MigrationsPath); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.vectors = vectorstore.NewPgVectorStore(pool, cfg.Embedding.Model)
	}

	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.Cache = cache.NewCache(a.Redis, "samarth:")
		if err := a.Cache.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, embedding cache disabled", "addr", cfg.Redis.Addr, "error", err)
			a.Cache = nil
		}
	}

	a.Gateway = llm.NewGateway(cfg.LLM)
	a.Embedder = newEmbedder(a.Gateway, cfg, a.Cache)

	a.expect = index.Expect{Model: a.Embedder.Model()}
	if dim, err := probeDimension(ctx, a.Embedder); err != nil {
		slog.Warn("could not determine embedding dimension; checking at search time", "model", a.expect.Model, "error", err)
	} else {
		a.expect.Dimension = dim
	}

	a.Index = index.NewHandle(nil)
	if _, err := a.Index.Reload(cfg.Index.Path, a.Expect()); err != nil {
		slog.Warn("index not loaded", "path", cfg.Index.Path, "error", err)
	}

	var searcher rag.VectorSearcher = a.Index
	if cfg.Index.Backend == "pgvector" {
		if a.vectors == nil {
			a.Close()
			return nil, fmt.Errorf("pgvector backend requires DATABASE_URL")
		}
		searcher = a.vectors
	}

	retriever := rag.NewRetriever(searcher, a.Embedder)
	generator := rag.NewGenerator(a.Gateway, rag.GeneratorOptions{
		Provider: cfg.LLM.DefaultProvider,
		Model:    cfg.LLM.DefaultModel,
	})
	a.Pipeline = rag.NewPipeline(retriever, generator, cfg.Index.TopK)
	a.Sessions = session.NewManager(a.Pipeline, session.Options{
		IdleTTL:     cfg.Session.IdleTTL,
		MaxSessions: cfg.Session.MaxSessions,
	})

	slog.Info("app ready",
		"llm_provider", cfg.LLM.DefaultProvider,
		"embedding_model", a.Embedder.Model(),
		"index_backend", cfg.Index.Backend,
		"index_loaded", a.Index.Ready(),
		"database", a.DB != nil,
		"cache", a.Cache != nil,
	)
	return a, nil
}

func newEmbedder(gw llm.Gateway, cfg *config.Config, c *cache.Cache) embedding.Embedder {
	svc := embedding.NewService(gw, embedding.Options{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BatchSize: cfg.Embedding.BatchSize,
		Timeout:   cfg.Embedding.Timeout,
	})
	if c == nil {
		return svc
	}
	return embedding.NewCachedEmbedder(svc, c, cfg.Redis.CacheTTL)
}

// Expect is the embedding space a loaded index must match. Dimension is
// zero when the embedder could not be reached at startup.
func (a *App) Expect() index.Expect {
	return a.expect
}

func probeDimension(ctx context.Context, e embedding.Embedder) (int, error) {
	v, err := e.EmbedSingle(ctx, "rainfall")
	if err != nil {
		return 0, err
	}
	return len(v), nil
}

// TurnBudget is the longest one question can take: embedding the question,
// then the chat call with every retry and the fallback. Zero means
// unbounded.
func TurnBudget(cfg *config.Config) time.Duration {
	chat := llm.CallBudget(cfg.LLM)
	if chat == 0 {
		return 0
	}
	embed := cfg.Embedding.Timeout
	if embed <= 0 {
		primary := cfg.LLM
		primary.FallbackProvider = ""
		embed = llm.CallBudget(primary)
	}
	return embed + chat
}

// Builder returns the offline index builder. When a database is configured
// the built index is mirrored into pgvector.
func (a *App) Builder() *indexer.Builder {
	var mirror indexer.Mirror
	if a.vectors != nil {
		mirror = a.vectors
	}
	return indexer.NewBuilder(indexer.Config{
		Inputs: []indexer.Input{
			{Path: a.Config.Data.CropCSV, Source: models.SourceCropProduction},
			{Path: a.Config.Data.RainfallCSV, Source: models.SourceRainfall},
		},
		IndexPath: a.Config.Index.Path,
		BatchSize: a.Config.Embedding.BatchSize,
	}, a.Embedder, mirror)
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Warn("close redis", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
