package persephone

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

// PostgresSchema creates the table PostgresHistoryStore reads and writes.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS persephone_series (
	name       TEXT             NOT NULL,
	week       BIGINT           NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	PRIMARY KEY (name, week)
)`

// PostgresHistoryStore keeps series in a single table keyed by (name, week
// ordinal). Re-saving a week updates it in place.
type PostgresHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPostgresHistoryStore connects to connStr and ensures the schema exists.
func NewPostgresHistoryStore(ctx context.Context, connStr string) (*PostgresHistoryStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresHistoryStore{pool: pool}, nil
}

func (p *PostgresHistoryStore) Save(ctx context.Context, name string, obs []Observation) error {
	if err := ValidateSeriesName(name); err != nil {
		return err
	}
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		if !o.Week.Valid() {
			return fmt.Errorf("%w: week %v", ErrInvalidSeries, o.Week)
		}
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrInvalidSeries, o.Week)
		}
	}

	query := `
		INSERT INTO persephone_series (name, week, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, week) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(query, name, o.Week.Ordinal(), o.Value)
	}

	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres upsert failed: %w", err)
	}
	return nil
}

func (p *PostgresHistoryStore) Load(ctx context.Context, name string, from, to domain.Week) (*Series, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	lo, hi := int64(-1<<62), int64(1<<62)
	if !from.IsZero() {
		lo = from.Ordinal()
	}
	if !to.IsZero() {
		hi = to.Ordinal()
	}

	query := `
		SELECT week, value
		FROM persephone_series
		WHERE name = $1 AND week BETWEEN $2 AND $3
		ORDER BY week
	`
	return p.query(ctx, query, name, lo, hi)
}

func (p *PostgresHistoryStore) QueryRecent(ctx context.Context, name string, count int) (*Series, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	if count <= 0 {
		return &Series{}, nil
	}

	query := `
		SELECT week, value
		FROM persephone_series
		WHERE name = $1
		ORDER BY week DESC
		LIMIT $2
	`
	return p.query(ctx, query, name, count)
}

func (p *PostgresHistoryStore) Prune(ctx context.Context, name string, before domain.Week) error {
	if err := ValidateSeriesName(name); err != nil {
		return err
	}
	query := `DELETE FROM persephone_series WHERE name = $1 AND week < $2`
	if _, err := p.pool.Exec(ctx, query, name, before.Ordinal()); err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}
	return nil
}

func (p *PostgresHistoryStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresHistoryStore) query(ctx context.Context, query string, args ...any) (*Series, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	defer rows.Close()

	var obs []Observation
	for rows.Next() {
		var ordinal int64
		var value float64
		if err := rows.Scan(&ordinal, &value); err != nil {
			return nil, fmt.Errorf("postgres scan failed: %w", err)
		}
		obs = append(obs, Observation{Week: domain.WeekFromOrdinal(ordinal), Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	return SeriesFromObservations(obs)
}
