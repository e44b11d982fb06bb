package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/always-cache/entityserve/entity"
	"github.com/always-cache/entityserve/entity/blobstore"
	"github.com/always-cache/entityserve/entity/pgstore"
	"github.com/always-cache/entityserve/entity/redisstore"
	"github.com/always-cache/entityserve/entity/s3store"
	"github.com/always-cache/entityserve/entity/sqlitestore"

	// bucket URL schemes for the blob provider
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// openStore creates the store named by config.Provider. The returned func
// releases it.
func openStore(ctx context.Context, config Config, logger *zerolog.Logger) (entity.Store, func(), error) {
	noop := func() {}
	switch config.Provider {
	case "memory":
		return entity.NewMemStore(), noop, nil
	case "dir":
		return entity.NewDir(config.DB, entity.NewPool(config.Workers)), noop, nil
	case "sqlite":
		// use sqlite in-memory db if requested
		filename := config.DB
		if filename == "memory" {
			filename = ""
		}
		s, err := sqlitestore.Open(filename)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, closer(s, logger), nil
	case "blob":
		s, err := blobstore.Open(ctx, config.BlobURL)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s, logger), nil
	case "s3":
		s, err := s3store.New(s3store.Config(config.S3))
		if err != nil {
			return nil, nil, fmt.Errorf("s3: %w", err)
		}
		return s, noop, nil
	case "redis":
		s := redisstore.New(redisstore.Config(config.Redis))
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		return s, closer(s, logger), nil
	case "postgres":
		s, err := pgstore.Open(ctx, config.PostgresDSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q", config.Provider)
}

func closer(c io.Closer, logger *zerolog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("Could not close store")
		}
	}
}

// throttledStore limits the read rate of every entity it returns. The
// limiter is shared, so the limit applies to all responses together.
type throttledStore struct {
	entity.Store
	limiter *rate.Limiter
}

func throttle(s entity.Store, bytesPerSecond int) entity.Store {
	if bytesPerSecond <= 0 {
		return s
	}
	return &throttledStore{
		Store:   s,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
	}
}

func (s *throttledStore) Get(ctx context.Context, key string) (entity.Entity, error) {
	e, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entity.Throttle(e, s.limiter), nil
}
