package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/config"
)

type Database struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	logger.Info("connecting to database",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
	)

	pcfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pcfg.MaxConns = cfg.MaxConns
	pcfg.MinConns = cfg.MinConns
	pcfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	return &Database{pool: pool, logger: logger}, nil
}

func (d *Database) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *Database) Close() {
	d.logger.Info("closing database pool")
	d.pool.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Wrap adopts an existing pool, e.g. one opened by an integration test.
func Wrap(pool *pgxpool.Pool, logger *zap.Logger) *Database {
	return &Database{pool: pool, logger: logger}
}
