package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/CodePlayData/fhir/internal/config"
	"github.com/CodePlayData/fhir/internal/domain/scheduling"
	"github.com/CodePlayData/fhir/internal/platform/db"
)

// store is the repository selected by STORE_DRIVER, optionally behind the
// Redis cache, with the health checks of whatever it connected to.
type store struct {
	repo    scheduling.ScheduleRepository
	tx      scheduling.Transactor
	checks  map[string]db.Check
	closers []func()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	st := &store{checks: map[string]db.Check{}}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.repo = scheduling.NewScheduleRepoPG(pool)
		st.tx = db.NewTxManager(pool)
		st.checks["postgres"] = db.PoolCheck(pool)
		logger.Info().Msg("connected to postgres")

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		st.closers = append(st.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			st.Close()
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		if err := scheduling.EnsureMongoIndexes(ctx, client, cfg.MongoDatabase); err != nil {
			st.Close()
			return nil, err
		}
		st.repo = scheduling.NewScheduleRepoMongo(client, cfg.MongoDatabase)
		st.tx = scheduling.NewMongoTransactor(client)
		st.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")

	case config.DriverMemory:
		st.repo = scheduling.NewMemoryRepository()
		st.tx = scheduling.NopTransactor{}
		logger.Warn().Msg("using the in-memory schedule store, data is lost on restart")

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		st.closers = append(st.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			st.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		st.repo = scheduling.NewCachedRepository(st.repo, client, cfg.CacheTTL, logger)
		st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.Info().Dur("ttl", cfg.CacheTTL).Msg("schedule cache enabled")
	}

	return st, nil
}

// Close releases connections in reverse order of opening.
func (s *store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
