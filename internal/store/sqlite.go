package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS dossiers (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	client_name    TEXT NOT NULL DEFAULT '',
	product_name   TEXT NOT NULL DEFAULT '',
	product_domain TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL,
	thread_ids     TEXT NOT NULL DEFAULT '[]',
	generated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dossiers_kind ON dossiers(kind);
CREATE INDEX IF NOT EXISTS idx_dossiers_client_name ON dossiers(client_name);
CREATE INDEX IF NOT EXISTS idx_dossiers_generated_at ON dossiers(generated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDossier(ctx context.Context, d *model.Dossier) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now().UTC()
	}

	threadsJSON, err := json.Marshal(d.ThreadIDs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal thread ids")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dossiers (id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   kind = excluded.kind, client_name = excluded.client_name,
		   product_name = excluded.product_name, product_domain = excluded.product_domain,
		   content = excluded.content, thread_ids = excluded.thread_ids,
		   generated_at = excluded.generated_at`,
		d.ID, string(d.Kind), d.ClientName, d.ProductName, d.ProductDomain,
		d.Content, string(threadsJSON), d.GeneratedAt,
	)
	return eris.Wrapf(err, "sqlite: save dossier %s", d.ID)
}

func (s *SQLiteStore) GetDossier(ctx context.Context, id string) (*model.Dossier, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at
		 FROM dossiers WHERE id = ?`,
		id,
	)

	d, err := scanDossier(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get dossier %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListDossiers(ctx context.Context, filter DossierFilter) ([]model.Dossier, error) {
	query := `SELECT id, kind, client_name, product_name, product_domain, content, thread_ids, generated_at
	          FROM dossiers WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.ClientName != "" {
		query += ` AND client_name = ?`
		args = append(args, filter.ClientName)
	}
	query += ` ORDER BY generated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dossiers")
	}
	defer rows.Close()

	var dossiers []model.Dossier
	for rows.Next() {
		d, err := scanDossier(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dossier")
		}
		dossiers = append(dossiers, *d)
	}
	return dossiers, eris.Wrap(rows.Err(), "sqlite: list dossiers iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanDossier(row scannable) (*model.Dossier, error) {
	var d model.Dossier
	var threadsJSON string

	err := row.Scan(&d.ID, &d.Kind, &d.ClientName, &d.ProductName, &d.ProductDomain,
		&d.Content, &threadsJSON, &d.GeneratedAt)
	if err != nil {
		return nil, err
	}

	if threadsJSON != "" && threadsJSON != "null" {
		if err := json.Unmarshal([]byte(threadsJSON), &d.ThreadIDs); err != nil {
			return nil, eris.Wrap(err, "unmarshal thread ids")
		}
	}
	return &d, nil
}
