package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"vn.io.arda/idbridge/internal/config"
)

// Pools lazily creates and caches one pgx pool per distinct set of
// connection parameters. Pools live for the process lifetime and are never
// keyed by realm. Concurrent first-use for the same key creates exactly one
// pool.
type Pools struct {
	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
}

// NewPools creates an empty registry.
func NewPools() *Pools {
	return &Pools{pools: make(map[string]*pgxpool.Pool)}
}

// Get returns the pool for cfg, creating it on first use. A pool that cannot
// be constructed (bad URL, bad credentials) is a fatal configuration error
// for the caller; nothing is retried here and no broken handle is cached.
func (p *Pools) Get(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	key := poolKey(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if pool, ok := p.pools[key]; ok {
		return pool, nil
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.pools[key] = pool
	log.Info().Str("key", maskKey(key)).Int("pool_size", cfg.PoolSize).Msg("created database connection pool")
	return pool, nil
}

// CloseAll tears down every pool; only meant for process shutdown.
func (p *Pools) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, pool := range p.pools {
		pool.Close()
		delete(p.pools, key)
	}
	log.Info().Msg("closed all database connection pools")
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	maxConns := cfg.PoolSize
	if maxConns <= 0 {
		maxConns = 10
	}
	pc.MaxConns = int32(maxConns)
	pc.MinConns = int32(min(2, maxConns))
	if cfg.ConnectTimeoutMS > 0 {
		pc.ConnConfig.ConnectTimeout = time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond
	}
	if cfg.IdleTimeoutMS > 0 {
		pc.MaxConnIdleTime = time.Duration(cfg.IdleTimeoutMS) * time.Millisecond
	}

	if q := cfg.ValidationQuery; q != "" {
		pc.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
			_, err := conn.Exec(ctx, q)
			if err != nil {
				log.Warn().Err(err).Msg("connection failed validation query, discarding")
			}
			return err == nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create database connection pool: %w", err)
	}
	return pool, nil
}

// poolKey identifies a pool by its connection parameters, never by realm.
func poolKey(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%d/%s@%s", cfg.Host, cfg.Port, cfg.Name, cfg.User)
}

// maskKey keeps pool keys loggable without leaking the full identity.
func maskKey(key string) string {
	if len(key) < 10 {
		return "***"
	}
	return key[:5] + "***" + key[len(key)-5:]
}
