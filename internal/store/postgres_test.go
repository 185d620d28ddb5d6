package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func dossierColumns() []string {
	return []string{"id", "kind", "client_name", "product_name", "product_domain", "content", "thread_ids", "generated_at"}
}

func TestPostgresStore_SaveDossier_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), "meeting", "Acme Corp", "Widget Pro", "manufacturing",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	d := sampleStoredDossier(model.DossierMeeting)
	err := s.SaveDossier(context.Background(), d)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID, "save must assign an ID")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDossier_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM dossiers WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetDossier(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDossier_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	generated := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM dossiers WHERE id = \$1`).
		WithArgs("d-1").
		WillReturnRows(pgxmock.NewRows(dossierColumns()).
			AddRow("d-1", "client", "Acme Corp", "Widget Pro", "manufacturing",
				"# Client Dossier: Acme Corp", []byte(`["t1","t3"]`), generated))

	got, err := s.GetDossier(context.Background(), "d-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DossierClient, got.Kind)
	assert.Equal(t, []string{"t1", "t3"}, got.ThreadIDs)
	assert.Equal(t, generated, got.GeneratedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDossiers_KindFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	generated := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM dossiers WHERE true AND kind = \$1 ORDER BY generated_at DESC LIMIT \$2`).
		WithArgs("summary", 100).
		WillReturnRows(pgxmock.NewRows(dossierColumns()).
			AddRow("d-2", "summary", "Acme Corp", "Widget Pro", "manufacturing",
				"# Past Interactions", []byte(`[]`), generated))

	got, err := s.ListDossiers(context.Background(), DossierFilter{Kind: model.DossierSummary})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d-2", got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDossiers_ClientAndPaging(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND client_name = \$1 ORDER BY generated_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("Acme Corp", 10, 20).
		WillReturnRows(pgxmock.NewRows(dossierColumns()))

	got, err := s.ListDossiers(context.Background(), DossierFilter{
		ClientName: "Acme Corp",
		Limit:      10,
		Offset:     20,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS dossiers`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
