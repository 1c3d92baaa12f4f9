package main

import (
	"context"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/internal/lemma"
	"github.com/cognicore/lexmatch/pkg/lexmatch"
	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/metrics"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store/postgres"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store/redisstore"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store/sqlite"
)

// environment holds connection settings read from the process
// environment and an optional .env file.
type environment struct {
	SQLitePath    string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LemmaURL      string
	LemmaKey      string
}

func loadEnvironment() (environment, error) {
	_ = godotenv.Load() // .env is optional

	env := environment{
		SQLitePath:    os.Getenv("LEXMATCH_SQLITE"),
		PostgresDSN:   os.Getenv("LEXMATCH_POSTGRES_DSN"),
		RedisAddr:     os.Getenv("LEXMATCH_REDIS_ADDR"),
		RedisPassword: os.Getenv("LEXMATCH_REDIS_PASSWORD"),
		LemmaURL:      os.Getenv("LEXMATCH_LEMMA_URL"),
		LemmaKey:      os.Getenv("LEXMATCH_LEMMA_KEY"),
	}
	if env.SQLitePath == "" {
		env.SQLitePath = "lexmatch.db"
	}
	if v := os.Getenv("LEXMATCH_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return environment{}, errors.Wrapf(err, "LEXMATCH_REDIS_DB=%q", v)
		}
		env.RedisDB = db
	}
	return env, nil
}

// backends is the set of stores one command works against. SQLite is
// always open: it receives imports and holds artifacts unless Redis is
// configured. Postgres, when configured, replaces it as the catalog.
type backends struct {
	local     *sqlite.Store
	catalog   store.Catalog
	products  store.ProductSearcher
	brands    store.BrandSource
	artifacts store.ArtifactStore
	closers   []func() error
}

func openBackends(ctx context.Context, env environment, logger *zap.Logger) (*backends, error) {
	local, err := sqlite.OpenSQLite(ctx, env.SQLitePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", env.SQLitePath)
	}
	b := &backends{
		local:     local,
		catalog:   local,
		products:  local,
		brands:    local,
		artifacts: local,
		closers:   []func() error{local.Close},
	}

	if env.PostgresDSN != "" {
		pg, err := postgres.Open(ctx, env.PostgresDSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.catalog, b.products, b.brands = pg, pg, pg
		b.closers = append(b.closers, pg.Close)
		logger.Debug("using postgres catalog")
	}

	if env.RedisAddr != "" {
		rs, client, err := redisstore.Dial(ctx, redisstore.Config{
			Addr:     env.RedisAddr,
			Password: env.RedisPassword,
			DB:       env.RedisDB,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.artifacts = rs
		b.closers = append(b.closers, client.Close)
		logger.Debug("using redis artifacts", zap.String("addr", env.RedisAddr))
	}
	return b, nil
}

// Close releases every backend, newest first.
func (b *backends) Close() error {
	var errs error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// openEngine loads configuration and wires an engine over the backends.
func openEngine(ctx context.Context, opts *rootOptions) (*lexmatch.Engine, *backends, error) {
	env, err := loadEnvironment()
	if err != nil {
		return nil, nil, err
	}
	loader := &config.Loader{SettingsPath: opts.configPath}
	comps, err := loader.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}

	b, err := openBackends(ctx, env, opts.logger)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := lexmatch.Options{
		Components: comps,
		Catalog:    b.catalog,
		Artifacts:  b.artifacts,
		Products:   b.products,
		Brands:     b.brands,
		Metrics:    metrics.New(opts.registry),
		Logger:     opts.logger,
	}
	if env.LemmaURL != "" {
		engineOpts.Lemmatizer = &lemma.Client{BaseURL: env.LemmaURL, APIKey: env.LemmaKey}
	}

	engine, err := lexmatch.New(engineOpts)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return engine, b, nil
}
