package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
)

// Guard claims sit on the orchestration path and fail open, so a slow Redis
// must give up quickly.
const (
	redisDialTimeout = 2 * time.Second
	redisIOTimeout   = 500 * time.Millisecond
)

// Redis holds the client backing the run-once orchestration guard. A nil
// Client means claims are kept in process memory.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the guard client. An unreachable server is logged and kept,
// since every claim is retried against it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not provided; orchestration guard falls back to process memory")
		return &Redis{}
	}

	client := redis.NewClient(redisOptions(cfg))
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("orchestration guard store unreachable; claims will fail open until it recovers",
			zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to orchestration guard store", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}
	return &Redis{Client: client}
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisIOTimeout,
		WriteTimeout: redisIOTimeout,
		MaxRetries:   1,
	}
}

// Enabled reports whether claims go to Redis.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}

// Ping backs the readiness check.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}
