package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdata/budget-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetMetadata_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value FROM metadata WHERE key = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetMetadata(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMetadata_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs(MetaSourceFile, "budget-2023.csv", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetMetadata(context.Background(), MetaSourceFile, "budget-2023.csv")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats_EmptyTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT`).
		WillReturnRows(pgxmock.NewRows([]string{
			"count", "min", "max", "programs", "services", "expenses", "revenue",
		}).AddRow(0, (*int)(nil), (*int)(nil), 0, 0, (*float64)(nil), (*float64)(nil)))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRecords)
	assert.Zero(t, stats.MinYear)
	assert.Zero(t, stats.TotalExpenses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRecords_BulkUpsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	amount := 1000000.0
	rec := model.BudgetRecord{
		Year:         2020,
		Program:      "Toronto Police Service",
		Service:      "Policing",
		Activity:     "Patrol",
		Amount:       &amount,
		QualityScore: 100,
		RowHash:      model.ComputeRowHash(2020, "Toronto Police Service", "Policing", "Patrol", &amount),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_budget_data"}, budgetColumns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "budget_data" .* ON CONFLICT \("row_hash"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.LoadRecords(context.Background(), []model.BudgetRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Programs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT program FROM budget_data`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"program"}).
			AddRow("Fire Services").
			AddRow("Toronto Police Service"))

	programs, err := s.Programs(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fire Services", "Toronto Police Service"}, programs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SampleQueries_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	desc := "total by year"
	mock.ExpectQuery(`SELECT question, sql_query, description FROM sample_queries`).
		WillReturnRows(pgxmock.NewRows([]string{"question", "sql_query", "description"}).
			AddRow("What was the total budget?", "SELECT SUM(amount) FROM budget_data", &desc))

	got, err := s.SampleQueries(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "total by year", got[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}
