// Package bootstrap opens the optional infrastructure shared by the binaries:
// PostgreSQL, Redis and MinIO. Each one is skipped when its URL is not set.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lead_scoring_backend/internal/adapters/storage"
	"lead_scoring_backend/internal/scheduler"
	"lead_scoring_backend/internal/scoring"
	"lead_scoring_backend/internal/scoring/profile"
	"lead_scoring_backend/platform/config"
	"lead_scoring_backend/platform/db"
	"lead_scoring_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	retryAttempts  = 5
	retryBaseDelay = 2 * time.Second
)

// Infrastructure holds the opened collaborators. Nil fields were not configured.
type Infrastructure struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Objects *storage.MinIOService
	Profile profile.Profile

	closers []func()
}

// Open connects everything the config enables and loads the scoring profile.
// Migrations run before the pool is handed out.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infrastructure, error) {
	infra := &Infrastructure{}

	p, err := profile.Load(cfg.GetScoringProfilePath())
	if err != nil {
		return nil, fmt.Errorf("load scoring profile: %w", err)
	}
	infra.Profile = p

	if cfg.IsDatabaseEnabled() {
		if err := WithRetry(ctx, log, "database connection", retryAttempts, retryBaseDelay, func() error {
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			infra.Pool = pool
			return nil
		}); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		infra.closers = append(infra.closers, infra.Pool.Close)

		if err := WithRetry(ctx, log, "database migrations", retryAttempts, retryBaseDelay, func() error {
			return db.RunMigrations(ctx, infra.Pool)
		}); err != nil {
			infra.Close()
			return nil, fmt.Errorf("run database migrations: %w", err)
		}
		log.Info("database connection established")
	}

	if cfg.IsSchedulerEnabled() {
		client, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("open redis client: %w", err)
		}
		infra.Redis = client
		infra.closers = append(infra.closers, func() { _ = client.Close() })
		log.Info("redis artifact tier enabled")
	}

	if cfg.IsMinIOEnabled() {
		objects, err := storage.NewMinIOService(cfg)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("initialize storage service: %w", err)
		}
		bucket := cfg.GetMinioBucketModelArtifacts()
		if err := WithRetry(ctx, log, "ensure model artifact bucket", retryAttempts, retryBaseDelay, func() error {
			return objects.EnsureBucketExists(ctx, bucket)
		}); err != nil {
			infra.Close()
			return nil, fmt.Errorf("ensure storage bucket exists: %w", err)
		}
		infra.Objects = objects
		log.Info("object artifact tier enabled", "bucket", bucket)
	}

	return infra, nil
}

// ScoringDeps builds the scoring module dependencies from the opened infrastructure.
func (i *Infrastructure) ScoringDeps(cfg *config.Config, log *logger.Logger) scoring.Deps {
	deps := scoring.Deps{
		Pool:    i.Pool,
		Config:  cfg,
		Profile: i.Profile,
		Log:     log,
	}
	if i.Redis != nil {
		deps.Redis = i.Redis
	}
	if i.Objects != nil {
		deps.Objects = i.Objects
		deps.ObjectBucket = cfg.GetMinioBucketModelArtifacts()
	}
	return deps
}

// Close releases everything Open acquired, newest first.
func (i *Infrastructure) Close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
	i.closers = nil
}

// WithRetry runs fn until it succeeds, backing off quadratically between attempts.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
