package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xiebiao/freshmart/internal/infrastructure/config"
)

// NewClient creates the Redis client
//
// Design notes:
//  1. pool sizes and timeouts come from config
//  2. the connection is checked once at startup
//  3. Redis is never on the deduction path: the cache falls back to the store
//     and the sweeper lock only decides which replica sweeps
func NewClient(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr(), err)
	}

	log.Info("redis connected", zap.String("addr", cfg.Addr()), zap.Int("db", cfg.DB))
	return client, nil
}
