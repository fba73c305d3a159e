// Package app wires configuration into the services shared by the API server
// and the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/timmy/emoreply/internal/api"
	"github.com/timmy/emoreply/internal/config"
	"github.com/timmy/emoreply/internal/logger"
	"github.com/timmy/emoreply/internal/repository"
	"github.com/timmy/emoreply/internal/service"
	"github.com/timmy/emoreply/internal/storage"
	"gorm.io/gorm"
)

// Options select the optional components to build.
type Options struct {
	// WithAudit opens the reply log database and transcript archive when
	// they are enabled in config.
	WithAudit bool
}

// App holds the constructed services and the resources they own.
type App struct {
	Config   *config.Config
	Replies  *service.ReplyService
	Index    *service.FeedbackIndex
	Seeder   *service.SeedService
	Recorder *service.ReplyRecorder
	Logs     *repository.ReplyLogRepository

	closers []io.Closer
	db      *gorm.DB
}

// New builds every collaborator from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}
	log := logger.With(logger.Fields{logger.FieldComponent: "app"})

	classifier := service.NewEmotionService(&service.EmotionConfig{
		URL:                 cfg.Classifier.URL,
		ModelID:             cfg.Classifier.ModelID,
		Timeout:             cfg.Classifier.Timeout,
		BreakerEnabled:      cfg.Classifier.Breaker.Enabled,
		ConsecutiveFailures: cfg.Classifier.Breaker.ConsecutiveFailures,
		OpenTimeout:         cfg.Classifier.Breaker.OpenTimeout,
	})

	embedder, err := service.NewEmbeddingProvider(&service.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
		CacheSize:  cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	vectors, err := a.openIndex(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Index = service.NewFeedbackIndex(vectors, embedder, &service.FeedbackIndexConfig{
		DefaultLimit: cfg.Retrieval.Limit,
		MaxLimit:     cfg.Retrieval.MaxLimit,
	})
	// Replies degrade gracefully without the index, so this is not fatal.
	if err := a.Index.EnsureCollection(ctx); err != nil {
		log.Warn(ctx, "Feedback index unavailable at startup: backend=%s, error=%v", cfg.Index.Backend, err)
	}

	generator, err := service.NewGenerator(&service.GeneratorConfig{
		Provider:    cfg.Generation.Provider,
		Model:       cfg.Generation.Model,
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     cfg.Generation.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("generator: %w", err)
	}

	a.Replies = service.NewReplyService(classifier, a.Index, generator, &service.ReplyConfig{
		RetrievalLimit: cfg.Retrieval.Limit,
	})
	a.Seeder = service.NewSeedService(classifier, a.Index, &service.SeedConfig{
		Workers:   cfg.Ingest.Workers,
		BatchSize: cfg.Ingest.BatchSize,
	})

	if opts.WithAudit {
		if err := a.openAudit(ctx, cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	log.Info(ctx, "Services ready: index=%s, embedding=%s/%s, generation=%s",
		cfg.Index.Backend, cfg.Embedding.Provider, embedder.GetModel(), cfg.Generation.Model)
	return a, nil
}

func (a *App) openIndex(cfg *config.Config) (service.VectorIndex, error) {
	switch cfg.Index.Backend {
	case "bolt":
		idx, err := repository.NewBoltIndex(cfg.Index.Bolt.Path, cfg.Index.Collection, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("bolt index: %w", err)
		}
		a.closers = append(a.closers, idx)
		return idx, nil
	case "qdrant", "":
		repo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Index.Qdrant.Host,
			Port:            cfg.Index.Qdrant.Port,
			Collection:      cfg.Index.Collection,
			APIKey:          cfg.Index.Qdrant.APIKey,
			UseTLS:          cfg.Index.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant index: %w", err)
		}
		a.closers = append(a.closers, repo)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}

// openAudit opens the reply log and transcript archive. Either may be
// disabled; the recorder skips what is missing.
func (a *App) openAudit(ctx context.Context, cfg *config.Config) error {
	var logs service.ReplyLogWriter
	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		a.db = db
		a.Logs = repository.NewReplyLogRepository(db)
		logs = a.Logs
	}

	var archive storage.ObjectStorage
	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
			Prefix:    cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("storage bucket: %w", err)
		}
		archive = store
	}

	if logs != nil || archive != nil {
		a.Recorder = service.NewReplyRecorder(logs, archive)
	}
	return nil
}

// Services exposes the App to the HTTP layer.
func (a *App) Services() *api.Services {
	return &api.Services{
		Replies:  a.Replies,
		Index:    a.Index,
		Seeder:   a.Seeder,
		Recorder: a.Recorder,
		Logs:     a.Logs,
	}
}

// Close releases the index connection and database handle.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.db != nil {
		if err := repository.CloseDB(a.db); err != nil {
			errs = append(errs, err)
		}
		a.db = nil
	}
	return errors.Join(errs...)
}
