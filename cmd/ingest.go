package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicdata/budget-cli/internal/etl"
	"github.com/civicdata/budget-cli/internal/fetcher"
	"github.com/civicdata/budget-cli/internal/model"
	"github.com/civicdata/budget-cli/internal/monitoring"
	"github.com/civicdata/budget-cli/internal/store"
)

var (
	ingestCSVPaths  []string
	ingestXLSXPaths []string
	ingestReportDir string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Clean raw budget exports and load them into the store",
	Long:  "Reads one or more CSV/XLSX budget exports, runs the cleaning and quality-scoring pipeline, writes the flagged-rows and quality-report artifacts, and loads the cleaned dataset into the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		if len(ingestCSVPaths) == 0 && len(ingestXLSXPaths) == 0 {
			return eris.New("at least one --csv or --xlsx file is required")
		}

		rows, sources, err := readSources(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("ingest: read source files",
			zap.Int("rows", len(rows)),
			zap.Strings("sources", sources))

		builder := etl.NewBuilder(etl.Config{
			YearMin:          cfg.Ingest.YearMin,
			YearMax:          cfg.Ingest.YearMax,
			SuspiciousAmount: cfg.Ingest.SuspiciousAmount,
		})
		result, err := builder.Build(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "ingest: clean dataset")
		}
		result.Report.SourceFiles = sources

		if err := writeArtifacts(result); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		loaded, err := st.LoadRecords(ctx, result.Records)
		if err != nil {
			return err
		}
		if err := st.WriteQualitySummary(ctx, result.Report); err != nil {
			return err
		}
		if err := st.SeedSampleQueries(ctx, store.DefaultSampleQueries); err != nil {
			return err
		}
		if err := writeMetadata(cmd, st, result, sources); err != nil {
			return err
		}

		monitoring.ObserveIngest(result.Report.CleanedRows, result.Report.FlaggedRows,
			result.Report.SkippedRows, time.Since(started))

		zap.L().Info("ingest: complete",
			zap.Int("loaded", loaded),
			zap.Int("cleaned", result.Report.CleanedRows),
			zap.Int("flagged", result.Report.FlaggedRows),
			zap.Int("inferred", result.Report.InferredRows),
			zap.Int("skipped", result.Report.SkippedRows),
			zap.Float64("completeness_score", result.Report.Quality.CompletenessScore),
			zap.Duration("elapsed", time.Since(started)))

		fmt.Printf("Loaded %d records (%d flagged, %d skipped) from %d file(s)\n",
			loaded, result.Report.FlaggedRows, result.Report.SkippedRows, len(sources))
		return nil
	},
}

// readSources reads every input file in order, keeping source row ids
// globally unique across appended files.
func readSources(ctx context.Context) ([]model.RawRow, []string, error) {
	var rows []model.RawRow
	var sources []string

	for _, path := range ingestCSVPaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		fileRows, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{
			TrimSpace:  true,
			LazyQuotes: true,
			StartRowID: len(rows),
		})
		f.Close() //nolint:errcheck
		if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		rows = append(rows, fileRows...)
		sources = append(sources, filepath.Base(path))
	}

	for _, path := range ingestXLSXPaths {
		fileRows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{StartRowID: len(rows)})
		if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		rows = append(rows, fileRows...)
		sources = append(sources, filepath.Base(path))
	}

	return rows, sources, nil
}

// writeArtifacts writes the flagged-rows extract and the quality report to
// the report directory for manual review.
func writeArtifacts(result *etl.BuildResult) error {
	dir := ingestReportDir
	if dir == "" {
		dir = cfg.Ingest.ReportDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "ingest: create report dir %s", dir)
	}

	if err := writeJSON(filepath.Join(dir, "flagged_rows.json"), result.Flagged); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "quality_report.json"), result.Report)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "ingest: marshal %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "ingest: write %s", path)
	}
	return nil
}

func writeMetadata(cmd *cobra.Command, st store.Store, result *etl.BuildResult, sources []string) error {
	ctx := cmd.Context()

	years := yearRangeString(result.Records)
	meta := map[string]string{
		store.MetaSourceFile:   strings.Join(sources, ", "),
		store.MetaYearsCovered: years,
		store.MetaLastUpdated:  time.Now().UTC().Format(time.RFC3339),
		store.MetaTotalRecords: fmt.Sprintf("%d", len(result.Records)),
	}
	for k, v := range meta {
		if err := st.SetMetadata(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func yearRangeString(records []model.BudgetRecord) string {
	minYear, maxYear := 0, 0
	for _, r := range records {
		if r.Year == 0 {
			continue
		}
		if minYear == 0 || r.Year < minYear {
			minYear = r.Year
		}
		if r.Year > maxYear {
			maxYear = r.Year
		}
	}
	if minYear == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d-%d", minYear, maxYear)
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestCSVPaths, "csv", nil, "CSV budget export (repeatable)")
	ingestCmd.Flags().StringSliceVar(&ingestXLSXPaths, "xlsx", nil, "XLSX budget export (repeatable)")
	ingestCmd.Flags().StringVar(&ingestReportDir, "report-dir", "", "directory for flagged-rows and quality-report artifacts (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
