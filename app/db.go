package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnp2003/captify-ai/app/config"
	"github.com/johnp2003/captify-ai/app/logger"
	"github.com/johnp2003/captify-ai/app/store"
)

// OpenStore connects to Postgres using the configured credentials.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (*store.Store, error) {
	dsn := cfg.DB.DSN()
	if dsn == "" {
		return nil, errors.New("POSTGRES_URL is not set")
	}
	st, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	log.Info("connected to Postgres", map[string]interface{}{
		"host":     cfg.DB.URL,
		"database": cfg.DB.Database,
	})
	return st, nil
}

// OpenRedis returns nil without error when no address is configured.
func OpenRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("connected to Redis", map[string]interface{}{"addr": cfg.Redis.Addr})
	return rdb, nil
}
