// Package fetcher parses raw budget exports (CSV and XLSX) into RawRows for
// the cleaning pipeline.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/civicdata/budget-cli/internal/model"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool

	// StartRowID offsets source row numbering, so rows from appended files
	// keep globally unique ids. Zero means numbering starts at 1.
	StartRowID int
}

// StreamCSV reads a headered CSV and sends one RawRow per data row to a
// channel. The caller must consume the returned row channel; both channels
// are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan model.RawRow, <-chan error) {
	rowCh := make(chan model.RawRow, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow ragged rows; cleaning flags them

		header, err := reader.Read()
		if err == io.EOF {
			errCh <- eris.New("csv: empty input")
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "csv: read header")
			return
		}
		if opts.TrimSpace {
			trimAll(header)
		}

		rowID := opts.StartRowID
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if opts.TrimSpace {
				trimAll(record)
			}

			rowID++
			select {
			case rowCh <- toRawRow(header, record, rowID):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV collects a full CSV into memory. The cleaning pipeline needs two
// passes over the dataset, so batch ingest reads eagerly.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([]model.RawRow, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)

	var rows []model.RawRow
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// toRawRow maps a positional record onto the header. Extra cells beyond the
// header are dropped; short rows simply leave columns unset.
func toRawRow(header, record []string, rowID int) model.RawRow {
	values := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(record) {
			values[col] = record[i]
		}
	}
	return model.RawRow{
		SourceRowID: rowID,
		Columns:     header,
		Values:      values,
	}
}

func trimAll(fields []string) {
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
}
