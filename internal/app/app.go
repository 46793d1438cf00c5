// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/api"
	"github.com/JakeFAU/movie-catalog-crawler/internal/archive"
	"github.com/JakeFAU/movie-catalog-crawler/internal/assemble"
	"github.com/JakeFAU/movie-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/movie-catalog-crawler/internal/config"
	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/discover"
	"github.com/JakeFAU/movie-catalog-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/movie-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/movie-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/movie-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/movie-catalog-crawler/internal/ingest"
	"github.com/JakeFAU/movie-catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/movie-catalog-crawler/internal/retry"
	"github.com/JakeFAU/movie-catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/movie-catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/movie-catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/movie-catalog-crawler/internal/storage/mongostore"
	"github.com/JakeFAU/movie-catalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/movie-catalog-crawler/internal/worker"
)

// MovieStore is the read and write surface every store driver provides.
type MovieStore interface {
	crawler.Store
	crawler.Catalog
}

type closer struct {
	name  string
	close func(ctx context.Context) error
}

// App holds the shared, long-lived services for one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     crawler.Clock
	store     MovieStore
	blobs     crawler.BlobStore
	publisher crawler.Publisher
	closers   []closer
}

// New opens the store, archive and publisher selected by cfg. It fails fast:
// anything opened before an error is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}

	if err := a.openStore(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.openArchive(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.openPublisher(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.Bool("publish", a.publisher != nil),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.cfg.Store
	switch cfg.Driver {
	case config.StoreMemory:
		a.store = memory.NewMovieStore()
	case config.StorePostgres:
		store, err := postgres.NewMovieStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		a.addCloser("postgres", func(context.Context) error {
			store.Close()
			return nil
		})
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure postgres schema: %w", err)
		}
		a.store = store
	case config.StoreMongo:
		store, err := mongostore.NewMovieStore(ctx, mongostore.Config{
			URI:        cfg.DSN,
			Database:   cfg.Database,
			Collection: cfg.Collection,
		})
		if err != nil {
			return fmt.Errorf("open mongo store: %w", err)
		}
		a.addCloser("mongo", store.Close)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure mongo indexes: %w", err)
		}
		a.store = store
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
	return nil
}

func (a *App) openArchive(ctx context.Context) error {
	cfg := a.cfg.Archive
	switch cfg.Driver {
	case config.ArchiveNone, "":
	case config.ArchiveMemory:
		a.blobs = memory.NewBlobStore()
	case config.ArchiveLocal:
		blobs, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return fmt.Errorf("open local archive: %w", err)
		}
		a.blobs = blobs
	case config.ArchiveGCS:
		blobs, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket}, a.logger)
		if err != nil {
			return fmt.Errorf("open gcs archive: %w", err)
		}
		a.addCloser("gcs", func(context.Context) error { return blobs.Close() })
		a.blobs = blobs
	default:
		return fmt.Errorf("unknown archive driver: %s", cfg.Driver)
	}
	return nil
}

func (a *App) openPublisher(ctx context.Context) error {
	cfg := a.cfg.PubSub
	if cfg.TopicName == "" {
		return nil
	}
	pub, err := pubsub.Open(ctx, cfg.ProjectID, cfg.TopicName, a.logger)
	if err != nil {
		return fmt.Errorf("open pubsub publisher: %w", err)
	}
	a.addCloser("pubsub", func(context.Context) error { return pub.Close() })
	a.publisher = pub
	return nil
}

func (a *App) addCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the configured movie store.
func (a *App) Store() MovieStore {
	return a.store
}

// Blobs returns the archive blob store, or nil when archiving is off.
func (a *App) Blobs() crawler.BlobStore {
	return a.blobs
}

// NewDriver assembles a crawl driver over the App's services.
func (a *App) NewDriver() (*dispatcher.Driver, error) {
	cfg := a.cfg
	profile := assemble.IMDbProfile()
	profile.IDSegment = cfg.Crawler.IDSegment
	assembler, err := assemble.New(profile)
	if err != nil {
		return nil, fmt.Errorf("build assembler: %w", err)
	}

	pipeline, err := ingest.New(ingest.Options{
		Store: a.store,
		Clock: a.clock,
		Retry: retry.NewExponentialPolicy(retry.Config{
			MaxRetries: cfg.Store.MaxRetries,
			BaseDelay:  cfg.BackoffInitial(),
			MaxDelay:   cfg.BackoffMax(),
			Retryable:  retry.StoreRetryable,
		}),
		Logger:    a.logger.Named("ingest"),
		Publisher: a.publisher,
		Topic:     cfg.PubSub.TopicName,
	})
	if err != nil {
		return nil, fmt.Errorf("build ingest pipeline: %w", err)
	}

	var archiver worker.Archiver
	if a.blobs != nil {
		archiver = archive.New(a.blobs, sha256.New(), a.clock, cfg.Archive.Prefix)
	}

	driver, err := dispatcher.New(dispatcher.Options{
		BaseURL: cfg.Crawler.BaseURL,
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.FetchTimeout(),
		}),
		Retry: retry.NewExponentialPolicy(retry.Config{
			MaxRetries: cfg.HTTP.MaxRetries,
			BaseDelay:  cfg.BackoffInitial(),
			MaxDelay:   cfg.BackoffMax(),
			Retryable:  retry.FetchRetryable,
		}),
		Discoverer: discover.New(profile.LinkSelector, a.logger.Named("discover")),
		IDs:        uuid.New(),
		Worker: worker.Options{
			Assembler:    assembler,
			Ingester:     pipeline,
			Archiver:     archiver,
			StoreTimeout: cfg.StoreTimeout(),
			Logger:       a.logger.Named("worker"),
		},
		Concurrency: cfg.Crawler.Concurrency,
		QueueDepth:  cfg.Crawler.QueueDepth,
		Logger:      a.logger.Named("dispatcher"),
	})
	if err != nil {
		return nil, fmt.Errorf("build crawl driver: %w", err)
	}
	return driver, nil
}

// NewServer builds the read facade over the App's store.
func (a *App) NewServer() *api.Server {
	return api.NewServer(a.store, a.clock, api.Config{
		RecentYears:    a.cfg.Query.RecentYears,
		DontWatchBelow: a.cfg.Query.DontWatchBelow,
		StoreTimeout:   a.cfg.StoreTimeout(),
	}, a.logger.Named("api"))
}

// Close shuts down every opened service in reverse order and returns the
// combined errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
