// cmd/underwriting-service/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"loan-underwriting/internal/cache"
	"loan-underwriting/internal/common/config"
	"loan-underwriting/internal/common/database"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/common/observability"
	"loan-underwriting/internal/common/validation"
	"loan-underwriting/internal/decisionengine"
	"loan-underwriting/internal/notify"
	"loan-underwriting/internal/pipeline"
	"loan-underwriting/internal/search"
	"loan-underwriting/internal/store"
	"loan-underwriting/internal/underwriter"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired dependencies shared by the serve and migrate commands.
type app struct {
	cfg       *config.Config
	zapLog    *zap.Logger
	log       logger.Logger
	store     store.Store
	warehouse *database.Warehouse
	redis     *redis.Client
	indexer   *search.Indexer
	service   *underwriter.Service
}

func newLogger(cfg *config.Config) (*zap.Logger, logger.Logger) {
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	return zapLog, logger.NewZapAdapter(zapLog)
}

// openStore connects the configured store and makes sure its schema exists.
func openStore(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger) (store.Store, *database.Warehouse, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("using in-memory store; records are lost on restart", nil)
		return store.NewMemoryStore(), nil, nil
	}

	wh := database.NewWarehouse(cfg.Warehouse, log)
	st, err := store.NewSQLStore(wh, cfg.Warehouse.Schema, log)
	if err != nil {
		return nil, nil, err
	}

	err = retryWithBackoff(func() error {
		return st.EnsureSchema(ctx)
	}, 10, 2*time.Second, zapLog, "Warehouse schema setup")
	if err != nil {
		_ = wh.Close()
		return nil, nil, err
	}
	zapLog.Info("Warehouse connected successfully", zap.String("schema", cfg.Warehouse.Schema))
	return st, wh, nil
}

func bootstrap(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, log logger.Logger, obs *observability.Observability) (*app, error) {
	a := &app{cfg: cfg, zapLog: zapLog, log: log}

	st, wh, err := openStore(ctx, cfg, zapLog, log)
	if err != nil {
		return nil, err
	}
	a.store, a.warehouse = st, wh

	opts := []underwriter.Option{
		underwriter.WithLimits(validation.Limits{MaxLoanAmount: cfg.Underwriting.MaxLoanAmount}),
		underwriter.WithCache(a.decisionCache(ctx)),
	}
	if obs != nil {
		opts = append(opts, underwriter.WithObservability(obs))
	}

	if cfg.DecisionEngine.UsesHTTP() {
		opts = append(opts, underwriter.WithDecisionEngine(decisionengine.New(cfg.DecisionEngine, log)))
		zapLog.Info("Decisions routed to external engine", zap.String("endpoint", cfg.DecisionEngine.EndpointURL))
	}

	if cfg.Search.Enabled {
		if idx := a.searchIndexer(ctx); idx != nil {
			a.indexer = idx
			opts = append(opts, underwriter.WithIndexer(idx))
		}
	}

	if cfg.Notifications.Enabled() {
		n, err := notify.New(ctx, cfg.Notifications, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("notifications: %w", err)
		}
		opts = append(opts, underwriter.WithNotifier(n))
	}

	a.service = underwriter.New(a.store, pipeline.Default(pipeline.WithLogger(log)), log, opts...)
	return a, nil
}

// decisionCache prefers Redis and falls back to the in-process cache.
func (a *app) decisionCache(ctx context.Context) cache.DecisionCache {
	if !a.cfg.Cache.Enabled {
		return cache.Noop{}
	}
	ttl := config.GetDuration(a.cfg.Cache.TTL)
	if a.cfg.Database.Redis.Address == "" {
		return cache.NewLocalCache(ttl)
	}

	var rdb *redis.Client
	err := retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(ctx, a.cfg.Database.Redis)
		return err
	}, 3, time.Second, a.zapLog, "Redis connection")
	if err != nil {
		a.zapLog.Warn("redis unavailable, using local cache", zap.Error(err))
		return cache.NewLocalCache(ttl)
	}
	a.redis = rdb
	a.zapLog.Info("Redis connected successfully")
	return cache.NewRedisCache(rdb, ttl, a.log)
}

func (a *app) searchIndexer(ctx context.Context) *search.Indexer {
	es, err := database.NewElasticsearch(ctx, a.cfg.Database.Elasticsearch)
	if err != nil {
		a.zapLog.Warn("elasticsearch unavailable, search disabled", zap.Error(err))
		return nil
	}
	idx := search.NewIndexer(es, a.cfg.Search.Index, a.log)
	if err := idx.EnsureIndex(ctx); err != nil {
		a.zapLog.Warn("search index setup failed", zap.Error(err))
	}
	a.zapLog.Info("Elasticsearch connected successfully", zap.String("index", a.cfg.Search.Index))
	return idx
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.zapLog.Error("Error closing Redis", zap.Error(err))
		}
	}
	if a.warehouse != nil {
		if err := a.warehouse.Close(); err != nil {
			a.zapLog.Error("Error closing warehouse", zap.Error(err))
		}
	}
}
