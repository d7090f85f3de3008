// Package app builds the long-lived services of a scraper process from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/api"
	"github.com/JakeFAU/gyik-crawler/internal/archive"
	"github.com/JakeFAU/gyik-crawler/internal/clock/system"
	"github.com/JakeFAU/gyik-crawler/internal/config"
	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/gyik-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/gyik-crawler/internal/hash/sha256"
	"github.com/JakeFAU/gyik-crawler/internal/id/uuid"
	"github.com/JakeFAU/gyik-crawler/internal/loader"
	"github.com/JakeFAU/gyik-crawler/internal/parser"
	memorypub "github.com/JakeFAU/gyik-crawler/internal/publisher/memory"
	"github.com/JakeFAU/gyik-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/gyik-crawler/internal/storage"
	"github.com/JakeFAU/gyik-crawler/internal/storage/gcs"
	"github.com/JakeFAU/gyik-crawler/internal/storage/local"
	memoryblob "github.com/JakeFAU/gyik-crawler/internal/storage/memory"
	"github.com/JakeFAU/gyik-crawler/internal/storage/postgres"
	"github.com/JakeFAU/gyik-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/gyik-crawler/internal/thread"
	"github.com/JakeFAU/gyik-crawler/internal/worker"
)

// App holds the wired services of one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     storage.Store
	publisher crawler.Publisher
	worker    *worker.Worker
	closers   []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Option customizes New.
type Option func(*options)

type options struct {
	fetcher crawler.Fetcher
}

// WithFetcher replaces the network fetcher; archiving still wraps it.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// New wires every service described by cfg. On failure anything already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	clock, err := system.NewInZone(cfg.Site.Timezone)
	if err != nil {
		return nil, &crawler.ConfigurationError{Key: "site.timezone", Reason: err.Error()}
	}

	if a.store, err = openStore(ctx, cfg.DB, logger); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, namedCloser{"store", a.store})

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:       cfg.Site.UserAgent,
			Timeout:         cfg.HTTP.Timeout(),
			RequestDelay:    cfg.HTTP.RequestDelay(),
			MaxRetries:      cfg.HTTP.MaxRetries,
			BackoffInitial:  cfg.HTTP.BackoffInitial(),
			RetryStatuses:   cfg.HTTP.RetryStatuses,
			BlockCooldown:   cfg.Block.Cooldown(),
			BlockMaxRetries: cfg.Block.MaxRetries,
		}, logger, collyfetcher.WithClock(clock))
	}
	blobs, err := a.openArchive(ctx)
	if err != nil {
		return nil, err
	}
	if blobs != nil {
		fetcher = archive.New(fetcher, blobs, sha256.New(), clock, cfg.Archive.Prefix, logger)
	}

	if err := a.openPublisher(ctx); err != nil {
		return nil, err
	}

	p := parser.New(cfg.Site.BaseURL, logger)
	a.worker = worker.New(
		fetcher,
		p,
		thread.New(fetcher, p, clock, cfg.Thread.MaxPages, logger),
		loader.New(a.store, clock, logger),
		a.store,
		a.publisher,
		uuid.New(),
		clock,
		worker.Config{BaseURL: cfg.Site.BaseURL, Topic: cfg.Publish.Topic},
		logger,
	)

	logger.Info("application services initialized",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("publish", cfg.Publish.Provider),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MaxConnLifetime: time.Duration(cfg.MaxConnLifetime) * time.Minute,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, &crawler.ConfigurationError{Key: "db.driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Driver)}
	}
}

func (a *App) openArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return memoryblob.NewBlobStore(), nil
	case "local":
		s, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return s, nil
	case "gcs":
		s, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Archive.GCSBucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"gcs archive", s})
		return s, nil
	default:
		return nil, &crawler.ConfigurationError{Key: "archive.provider", Reason: fmt.Sprintf("unknown provider %q", a.cfg.Archive.Provider)}
	}
}

func (a *App) openPublisher(ctx context.Context) error {
	switch a.cfg.Publish.Provider {
	case "", "none":
		return nil
	case "memory":
		a.publisher = memorypub.New()
	case "pubsub":
		p, err := pubsub.Open(ctx, a.cfg.Publish.ProjectID, a.cfg.Publish.Topic, a.logger)
		if err != nil {
			return fmt.Errorf("open pubsub publisher: %w", err)
		}
		a.publisher = p
		a.closers = append(a.closers, namedCloser{"pubsub", p})
	default:
		return &crawler.ConfigurationError{Key: "publish.provider", Reason: fmt.Sprintf("unknown provider %q", a.cfg.Publish.Provider)}
	}
	return nil
}

// Worker returns the crawl orchestrator.
func (a *App) Worker() *worker.Worker {
	return a.worker
}

// Store returns the relational store.
func (a *App) Store() storage.Store {
	return a.store
}

// Publisher returns the event publisher, or nil when publishing is off.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// StartServer runs the stats/metrics server in the background when enabled.
// The server stops when ctx is done.
func (a *App) StartServer(ctx context.Context) {
	if !a.cfg.Server.Enabled {
		return
	}
	srv := api.NewServer(a.worker, a.store, a.logger)
	addr := ":" + strconv.Itoa(a.cfg.Server.Port)
	go func() {
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			a.logger.Error("http server failed", zap.Error(err))
		}
	}()
}

// Close shuts services down in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
