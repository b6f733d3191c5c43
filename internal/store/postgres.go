package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/civicdata/budget-cli/internal/db"
	"github.com/civicdata/budget-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. It exists for deployments
// where the dataset is shared across hosts; the CLI defaults to SQLite.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

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

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS budget_data (
	id                 BIGSERIAL PRIMARY KEY,
	year               INTEGER,
	program            TEXT,
	service            TEXT,
	activity           TEXT,
	amount             DOUBLE PRECISION,
	amount_raw         TEXT,
	data_quality_score INTEGER NOT NULL DEFAULT 100,
	has_issues         BOOLEAN NOT NULL DEFAULT false,
	issue_description  TEXT,
	row_hash           TEXT NOT NULL UNIQUE,
	source_row_id      INTEGER,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS data_quality_summary (
	id                    BIGSERIAL PRIMARY KEY,
	report                JSONB NOT NULL,
	cleaned_rows          INTEGER NOT NULL,
	flagged_rows          INTEGER NOT NULL,
	skipped_rows          INTEGER NOT NULL,
	completeness_score    DOUBLE PRECISION NOT NULL,
	critical_fields_score DOUBLE PRECISION NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sample_queries (
	id          BIGSERIAL PRIMARY KEY,
	question    TEXT NOT NULL,
	sql_query   TEXT NOT NULL,
	description TEXT
);

CREATE INDEX IF NOT EXISTS idx_budget_year ON budget_data(year);
CREATE INDEX IF NOT EXISTS idx_budget_program ON budget_data(program);
CREATE INDEX IF NOT EXISTS idx_budget_service ON budget_data(service);
CREATE INDEX IF NOT EXISTS idx_budget_amount ON budget_data(amount);
CREATE INDEX IF NOT EXISTS idx_budget_quality ON budget_data(data_quality_score);
CREATE INDEX IF NOT EXISTS idx_budget_has_issues ON budget_data(has_issues);
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

var budgetColumns = []string{
	"year", "program", "service", "activity", "amount", "amount_raw",
	"data_quality_score", "has_issues", "issue_description", "row_hash", "source_row_id",
}

// LoadRecords bulk-loads cleaned records via a temp table and
// INSERT ... ON CONFLICT, so reloading the same dataset is idempotent.
func (s *PostgresStore) LoadRecords(ctx context.Context, records []model.BudgetRecord) (int, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		var year any
		if rec.Year != 0 {
			year = rec.Year
		}
		var amount any
		if rec.Amount != nil {
			amount = *rec.Amount
		}
		rows = append(rows, []any{
			year, rec.Program, rec.Service, rec.Activity, amount, rec.AmountRaw,
			rec.QualityScore, rec.HasIssues, rec.IssueDescription, rec.RowHash, rec.SourceRowID,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "budget_data",
		Columns:      budgetColumns,
		ConflictKeys: []string{"row_hash"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: load records")
	}
	return int(n), nil
}

func (s *PostgresStore) WriteQualitySummary(ctx context.Context, report *model.LoadReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal quality report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO data_quality_summary
			(report, cleaned_rows, flagged_rows, skipped_rows, completeness_score, critical_fields_score)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		payload, report.CleanedRows, report.FlaggedRows, report.SkippedRows,
		report.Quality.CompletenessScore, report.Quality.CriticalFieldsScore,
	)
	return eris.Wrap(err, "postgres: write quality summary")
}

func (s *PostgresStore) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO metadata (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`,
		key, value, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set metadata %s", key)
}

func (s *PostgresStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM metadata WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get metadata %s", key)
	}
	return value, nil
}

func (s *PostgresStore) SeedSampleQueries(ctx context.Context, samples []SampleQuery) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin seed")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM sample_queries`); err != nil {
		return eris.Wrap(err, "postgres: clear sample queries")
	}
	for _, sq := range samples {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sample_queries (question, sql_query, description) VALUES ($1, $2, $3)`,
			sq.Question, sq.SQL, sq.Description,
		); err != nil {
			return eris.Wrap(err, "postgres: insert sample query")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit seed")
}

func (s *PostgresStore) SampleQueries(ctx context.Context) ([]SampleQuery, error) {
	rows, err := s.pool.Query(ctx, `SELECT question, sql_query, description FROM sample_queries ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sample queries")
	}
	defer rows.Close()

	var out []SampleQuery
	for rows.Next() {
		var sq SampleQuery
		var desc *string
		if err := rows.Scan(&sq.Question, &sq.SQL, &desc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sample query")
		}
		if desc != nil {
			sq.Description = *desc
		}
		out = append(out, sq)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sample queries iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var minYear, maxYear *int
	var expenses, revenue *float64
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			MIN(year), MAX(year),
			COUNT(DISTINCT program), COUNT(DISTINCT service),
			SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END),
			SUM(CASE WHEN amount < 0 THEN ABS(amount) ELSE 0 END)
		FROM budget_data`,
	).Scan(&st.TotalRecords, &minYear, &maxYear, &st.UniquePrograms, &st.UniqueServices, &expenses, &revenue)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	if minYear != nil {
		st.MinYear = *minYear
	}
	if maxYear != nil {
		st.MaxYear = *maxYear
	}
	if expenses != nil {
		st.TotalExpenses = *expenses
	}
	if revenue != nil {
		st.TotalRevenue = *revenue
	}
	return &st, nil
}

func (s *PostgresStore) Programs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT program FROM budget_data
		WHERE program IS NOT NULL AND program != ''
		ORDER BY program LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list programs")
	}
	defer rows.Close()

	var programs []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "postgres: scan program")
		}
		programs = append(programs, p)
	}
	return programs, eris.Wrap(rows.Err(), "postgres: list programs iterate")
}

func (s *PostgresStore) Query(ctx context.Context, query string) (*model.ResultSet, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: execute %q", query)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}

	rs := &model.ResultSet{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan result row")
		}
		rowMap := make(map[string]any, len(names))
		for i, name := range names {
			rowMap[name] = normalizeValue(values[i])
		}
		rs.Rows = append(rs.Rows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: iterate %q", query)
	}

	var sample map[string]any
	if len(rs.Rows) > 0 {
		sample = rs.Rows[0]
	}
	rs.Columns = make([]model.Column, len(names))
	for i, name := range names {
		rs.Columns[i] = model.Column{Name: name, Kind: classifyColumn(name, sample[name])}
	}
	return rs, nil
}
