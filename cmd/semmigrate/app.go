package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/c360studio/semmigrate/catalog"
	"github.com/c360studio/semmigrate/config"
	"github.com/c360studio/semmigrate/metrics"
	"github.com/c360studio/semmigrate/remote"
	"github.com/c360studio/semmigrate/resolve"
	"github.com/c360studio/semmigrate/source"
	"github.com/c360studio/semmigrate/sparql"
	"github.com/c360studio/semmigrate/staging"
	"github.com/c360studio/semmigrate/storage"
	"github.com/c360studio/semmigrate/upload"
	"github.com/c360studio/semmigrate/vocabulary"
	"github.com/c360studio/semmigrate/wisski"
)

// App wires the configured components for one command invocation.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	catalog  *catalog.Catalog
	store    *wisski.Client
	resolver *resolve.Resolver

	// Optional connections, opened on demand
	natsConn *nats.Conn
	mongo    *mongo.Client
}

// loadApp reads configuration and builds the App.
func loadApp(ctx context.Context, g *globalFlags) (*App, error) {
	logger, err := newLogger(stderr, g.logLevel, g.logFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApp(ctx, cfg, logger)
}

// NewApp loads the catalog and connects the remote clients and the
// resolution cache.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	cat, err := catalog.Load(cfg.Catalog.Dir, cfg.Catalog.Files)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		catalog: cat,
	}

	lookup := sparql.NewClient(cfg.SPARQL.URL,
		remote.NewClient(cfg.SPARQLClient(), remote.WithLogger(logger)))
	a.store = wisski.NewClient(cfg.Store.URL,
		remote.NewClient(cfg.StoreClient(), remote.WithLogger(logger)))

	cache, err := a.openCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.resolver = resolve.New(cat, lookup,
		resolve.WithCache(cache),
		resolve.WithMetrics(a.metrics),
		resolve.WithLogger(logger))

	return a, nil
}

// openCache returns the JetStream-backed cache when a NATS URL is
// configured and an in-memory cache otherwise.
func (a *App) openCache(ctx context.Context) (resolve.Cache, error) {
	if a.cfg.Cache.NATSURL == "" {
		return resolve.NewMemoryCache(), nil
	}

	a.logger.Debug("Connecting to NATS", "url", a.cfg.Cache.NATSURL)
	conn, err := nats.Connect(a.cfg.Cache.NATSURL, nats.Name(appName))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", a.cfg.Cache.NATSURL, err)
	}
	a.natsConn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	cache, err := storage.NewResolutionCache(ctx, js, a.cfg.Cache.Bucket,
		storage.WithLogger(a.logger),
		storage.WithTimeout(a.cfg.Cache.Timeout))
	if err != nil {
		return nil, err
	}
	n, err := cache.Warm(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Resolution cache warmed", "bucket", a.cfg.Cache.Bucket, "entries", n)
	return cache, nil
}

// Stager builds the record stager.
func (a *App) Stager() (*staging.Stager, error) {
	return staging.New(a.catalog, a.resolver,
		staging.WithOptions(a.cfg.Staging),
		staging.WithMetrics(a.metrics),
		staging.WithLogger(a.logger))
}

// Orchestrator builds an upload orchestrator over opts writing failures to
// artifact, or to the path in opts when artifact is empty.
func (a *App) Orchestrator(opts upload.Options, artifact string) (*upload.Orchestrator, error) {
	stager, err := a.Stager()
	if err != nil {
		return nil, err
	}
	if opts.ExistsTemplate != "" {
		if err := a.catalog.Require(catalog.Requirements{Queries: []string{opts.ExistsTemplate}}); err != nil {
			return nil, err
		}
	}
	if artifact != "" {
		opts.ArtifactPath = artifact
	}
	return upload.New(stager, a.store, a.resolver,
		upload.WithOptions(opts),
		upload.WithMetrics(a.metrics),
		upload.WithLogger(a.logger)), nil
}

// EasydbUploadOptions are the upload options for easydb exports.
func (a *App) EasydbUploadOptions() upload.Options {
	return upload.EasydbOptions(a.cfg.Upload, a.cfg.Easydb.ExistsTemplate)
}

// Synchronizer builds a vocabulary synchronizer over pop.
func (a *App) Synchronizer(pop vocabulary.Population) (*vocabulary.Synchronizer, error) {
	return vocabulary.New(a.catalog, pop, a.resolver, a.store,
		vocabulary.WithMetrics(a.metrics),
		vocabulary.WithLogger(a.logger))
}

// Database connects to MongoDB on first use.
func (a *App) Database(ctx context.Context) (*mongo.Database, error) {
	if a.mongo == nil {
		client, err := source.ConnectMongo(ctx, a.cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		a.mongo = client
	}
	return a.mongo.Database(a.cfg.Mongo.Database), nil
}

// MongoPopulation reads vocabulary kinds from the configured collections.
func (a *App) MongoPopulation(ctx context.Context) (*vocabulary.MongoPopulation, error) {
	db, err := a.Database(ctx)
	if err != nil {
		return nil, err
	}
	return vocabulary.NewMongoPopulation(source.NewMongoPopulation(db), a.cfg.Mongo.Collections)
}

// Records opens the record source: an easydb export when input is set,
// the configured MongoDB collection otherwise. filter is MongoDB extended
// JSON and only applies to the collection.
func (a *App) Records(ctx context.Context, input, filter string) (source.Iterator, error) {
	if input != "" {
		t, err := source.ReadTableFile(input, source.Easydb)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Read easydb export", "path", input, "rows", len(t.Rows))
		return source.Map(t.Iterator(), source.NewEasydbAdapter().Adapt), nil
	}

	q := bson.D{}
	if filter != "" {
		if err := bson.UnmarshalExtJSON([]byte(filter), false, &q); err != nil {
			return nil, fmt.Errorf("parse filter: %w", err)
		}
	}
	db, err := a.Database(ctx)
	if err != nil {
		return nil, err
	}
	return source.NewMongoReader(ctx, db.Collection(a.cfg.Mongo.Collection), q)
}

// Close writes the metrics textfile and releases connections.
func (a *App) Close() {
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.logger.Warn("Failed to write metrics", "path", path, "error", err)
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(context.Background()); err != nil {
			a.logger.Warn("Failed to disconnect MongoDB", "error", err)
		}
	}
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
}
