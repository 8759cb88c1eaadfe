package db

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var DB *pgxpool.Pool

// Connect opens the pool for POSTGRES_URL and verifies it with a ping.
// POSTGRES_MAX_CONNS caps the pool when set; otherwise the pgxpool default
// applies. The registry's conditional writes are short, so connections
// recycle quickly.
func Connect() (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(os.Getenv("POSTGRES_URL"))
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		maxConns, err := strconv.Atoi(v)
		if err != nil || maxConns < 1 {
			log.Warnf("invalid POSTGRES_MAX_CONNS %q, using pool default", v)
		} else {
			cfg.MaxConns = int32(maxConns)
		}
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	DB = pool
	return pool, nil
}

// ClosePool releases the pool on shutdown.
func ClosePool() {
	if DB != nil {
		DB.Close()
	}
}
