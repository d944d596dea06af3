package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
)

// connectRetries bounds how long startup waits for the ticket store to come up.
const connectRetries = 4

// Postgres owns the ticket store pool. A nil Pool means tickets live in memory.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres opens the ticket store pool when a DSN is configured. Refused
// connections are retried with exponential backoff; a malformed DSN is not.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; tickets will be kept in memory")
		return &Postgres{}, nil
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse POSTGRES_DSN: %w", err)
	}

	var pool *pgxpool.Pool
	connect := func() error {
		candidate, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := candidate.Ping(ctx); err != nil {
			candidate.Close()
			return err
		}
		pool = candidate
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("ticket store not reachable yet; retrying", zap.Duration("backoff", wait), zap.Error(err))
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectRetries), ctx)
	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	logger.Info("connected to ticket store",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns))
	return &Postgres{Pool: pool}, nil
}

// poolConfig applies the configured pool limits on top of the DSN.
func poolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 && cfg.MinConns <= poolCfg.MaxConns {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
	}
	return poolCfg, nil
}

// Enabled reports whether tickets are stored in Postgres.
func (p *Postgres) Enabled() bool {
	return p != nil && p.Pool != nil
}

// PoolHandle returns the pool, or nil for the in-memory store.
func (p *Postgres) PoolHandle() *pgxpool.Pool {
	if !p.Enabled() {
		return nil
	}
	return p.Pool
}

// Ping backs the readiness check.
func (p *Postgres) Ping(ctx context.Context) error {
	if !p.Enabled() {
		return errors.New("postgres not configured")
	}
	return p.Pool.Ping(ctx)
}

func (p *Postgres) Close() {
	if p.Enabled() {
		p.Pool.Close()
	}
}
