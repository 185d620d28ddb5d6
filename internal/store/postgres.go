package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_dossier": `INSERT INTO dossiers (id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   kind = $2, client_name = $3, product_name = $4, product_domain = $5,
		   content = $6, thread_ids = $7, generated_at = $8`,
	"get_dossier": `SELECT id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at FROM dossiers WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS dossiers (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind           TEXT NOT NULL,
	client_name    TEXT NOT NULL DEFAULT '',
	product_name   TEXT NOT NULL DEFAULT '',
	product_domain TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL,
	thread_ids     JSONB NOT NULL DEFAULT '[]',
	generated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dossiers_kind ON dossiers(kind);
CREATE INDEX IF NOT EXISTS idx_dossiers_client_name ON dossiers(client_name);
CREATE INDEX IF NOT EXISTS idx_dossiers_generated_at ON dossiers(generated_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveDossier(ctx context.Context, d *model.Dossier) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}

	threadsJSON, err := json.Marshal(d.ThreadIDs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal thread ids")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dossiers (id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   kind = $2, client_name = $3, product_name = $4, product_domain = $5,
		   content = $6, thread_ids = $7, generated_at = $8`,
		d.ID, string(d.Kind), d.ClientName, d.ProductName, d.ProductDomain,
		d.Content, threadsJSON, d.GeneratedAt,
	)
	return eris.Wrapf(err, "postgres: save dossier %s", d.ID)
}

func (s *PostgresStore) GetDossier(ctx context.Context, id string) (*model.Dossier, error) {
	var d model.Dossier
	var threadsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at
		 FROM dossiers WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.Kind, &d.ClientName, &d.ProductName, &d.ProductDomain,
		&d.Content, &threadsJSON, &d.GeneratedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get dossier %s", id)
	}

	if len(threadsJSON) > 0 {
		if err := json.Unmarshal(threadsJSON, &d.ThreadIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal thread ids")
		}
	}
	return &d, nil
}

func (s *PostgresStore) ListDossiers(ctx context.Context, filter DossierFilter) ([]model.Dossier, error) {
	query := `SELECT id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at
	          FROM dossiers WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.ClientName != "" {
		query += fmt.Sprintf(` AND client_name = $%d`, argIdx)
		args = append(args, filter.ClientName)
		argIdx++
	}
	query += ` ORDER BY generated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dossiers")
	}
	defer rows.Close()

	var dossiers []model.Dossier
	for rows.Next() {
		var d model.Dossier
		var threadsJSON []byte

		if err := rows.Scan(&d.ID, &d.Kind, &d.ClientName, &d.ProductName, &d.ProductDomain,
			&d.Content, &threadsJSON, &d.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dossier")
		}
		if len(threadsJSON) > 0 {
			if err := json.Unmarshal(threadsJSON, &d.ThreadIDs); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal thread ids")
			}
		}
		dossiers = append(dossiers, d)
	}
	return dossiers, eris.Wrap(rows.Err(), "postgres: list dossiers iterate")
}
