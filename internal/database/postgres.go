package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"triarb/internal/model"
)

const createAuditTableSQL = `
CREATE TABLE IF NOT EXISTS audit_records (
	id SERIAL PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	status VARCHAR(32) NOT NULL,
	triangle VARCHAR(128) NOT NULL,
	profit_pct NUMERIC(20, 8),
	leg_prices DOUBLE PRECISION[] NOT NULL,
	message TEXT NOT NULL
);`

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository mirrors the audit log into Postgres. Rows are only ever inserted.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Migrate creates the audit table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createAuditTableSQL); err != nil {
		return fmt.Errorf("create audit_records: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LogAuditRecord(ctx context.Context, rec model.AuditRecord) error {
	prices := rec.LegPrices
	if prices == nil {
		prices = []float64{}
	}
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO audit_records (timestamp, status, triangle, profit_pct, leg_prices, message)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Timestamp, string(rec.Status), rec.Triangle, rec.ProfitPercent, prices, rec.Message,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Append makes the repository usable as an audit sink.
func (r *PostgresRepository) Append(ctx context.Context, rec model.AuditRecord) error {
	return r.LogAuditRecord(ctx, rec)
}

func (r *PostgresRepository) Close() error {
	r.Pool.Close()
	return nil
}
