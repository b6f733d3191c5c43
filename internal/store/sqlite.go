package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/civicdata/budget-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a read-write SQLite database at the given path and
// configures WAL mode. Used by the ingest pipeline.
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

// NewSQLiteReadOnly opens the store for query serving. There are no writers
// at request time, so a single handle is safe to share across concurrent
// questions. query_only backstops the Query Guard at the engine boundary.
func NewSQLiteReadOnly(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open read-only")
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA query_only=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS budget_data (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	year               INTEGER,
	program            TEXT,
	service            TEXT,
	activity           TEXT,
	amount             REAL,
	amount_raw         TEXT,
	data_quality_score INTEGER NOT NULL DEFAULT 100,
	has_issues         INTEGER NOT NULL DEFAULT 0,
	issue_description  TEXT,
	row_hash           TEXT NOT NULL UNIQUE,
	source_row_id      INTEGER,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS data_quality_summary (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	report                TEXT NOT NULL,
	cleaned_rows          INTEGER NOT NULL,
	flagged_rows          INTEGER NOT NULL,
	skipped_rows          INTEGER NOT NULL,
	completeness_score    REAL NOT NULL,
	critical_fields_score REAL NOT NULL,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sample_queries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadRecords inserts cleaned records in a single transaction. Records that
// collide on row_hash replace the earlier copy, so reloading the same
// dataset leaves the row count unchanged.
func (s *SQLiteStore) LoadRecords(ctx context.Context, records []model.BudgetRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin load")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO budget_data
			(year, program, service, activity, amount, amount_raw,
			 data_quality_score, has_issues, issue_description, row_hash, source_row_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(row_hash) DO UPDATE SET
			amount_raw         = excluded.amount_raw,
			data_quality_score = excluded.data_quality_score,
			has_issues         = excluded.has_issues,
			issue_description  = excluded.issue_description,
			source_row_id      = excluded.source_row_id`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	loaded := 0
	for _, rec := range records {
		var year any
		if rec.Year != 0 {
			year = rec.Year
		}
		var amount any
		if rec.Amount != nil {
			amount = *rec.Amount
		}
		if _, err := stmt.ExecContext(ctx,
			year, rec.Program, rec.Service, rec.Activity, amount, rec.AmountRaw,
			rec.QualityScore, rec.HasIssues, rec.IssueDescription, rec.RowHash, rec.SourceRowID,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert row %d", rec.SourceRowID)
		}
		loaded++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit load")
	}
	return loaded, nil
}

func (s *SQLiteStore) WriteQualitySummary(ctx context.Context, report *model.LoadReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal quality report")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO data_quality_summary
			(report, cleaned_rows, flagged_rows, skipped_rows, completeness_score, critical_fields_score)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(payload), report.CleanedRows, report.FlaggedRows, report.SkippedRows,
		report.Quality.CompletenessScore, report.Quality.CriticalFieldsScore,
	)
	return eris.Wrap(err, "sqlite: write quality summary")
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set metadata %s", key)
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get metadata %s", key)
	}
	return value, nil
}

func (s *SQLiteStore) SeedSampleQueries(ctx context.Context, samples []SampleQuery) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin seed")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM sample_queries`); err != nil {
		return eris.Wrap(err, "sqlite: clear sample queries")
	}
	for _, sq := range samples {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sample_queries (question, sql_query, description) VALUES (?, ?, ?)`,
			sq.Question, sq.SQL, sq.Description,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert sample query")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit seed")
}

func (s *SQLiteStore) SampleQueries(ctx context.Context) ([]SampleQuery, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT question, sql_query, description FROM sample_queries ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sample queries")
	}
	defer rows.Close()

	var out []SampleQuery
	for rows.Next() {
		var sq SampleQuery
		var desc sql.NullString
		if err := rows.Scan(&sq.Question, &sq.SQL, &desc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sample query")
		}
		sq.Description = desc.String
		out = append(out, sq)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sample queries")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var minYear, maxYear sql.NullInt64
	var expenses, revenue sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			MIN(year), MAX(year),
			COUNT(DISTINCT program), COUNT(DISTINCT service),
			SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END),
			SUM(CASE WHEN amount < 0 THEN ABS(amount) ELSE 0 END)
		FROM budget_data`,
	).Scan(&st.TotalRecords, &minYear, &maxYear, &st.UniquePrograms, &st.UniqueServices, &expenses, &revenue)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	st.MinYear = int(minYear.Int64)
	st.MaxYear = int(maxYear.Int64)
	st.TotalExpenses = expenses.Float64
	st.TotalRevenue = revenue.Float64
	return &st, nil
}

func (s *SQLiteStore) Programs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT program FROM budget_data
		WHERE program IS NOT NULL AND program != ''
		ORDER BY program LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list programs")
	}
	defer rows.Close()

	var programs []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan program")
		}
		programs = append(programs, p)
	}
	return programs, eris.Wrap(rows.Err(), "sqlite: iterate programs")
}

// Query executes an already-guarded statement and returns a typed result
// set. Backend errors carry the query text so translation failures are
// diagnosable from the response alone.
func (s *SQLiteStore) Query(ctx context.Context, query string) (*model.ResultSet, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: execute %q", query)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: result columns")
	}

	rs := &model.ResultSet{}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result row")
		}

		rowMap := make(map[string]any, len(names))
		for i, name := range names {
			rowMap[name] = normalizeValue(values[i])
		}
		rs.Rows = append(rs.Rows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: iterate %q", query)
	}

	// Classify columns from the first row's value shapes.
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

// normalizeValue converts driver byte slices to strings so result rows
// marshal cleanly to JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
