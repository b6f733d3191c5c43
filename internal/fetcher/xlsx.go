package fetcher

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/civicdata/budget-cli/internal/model"
)

// XLSXOptions configures the XLSX parser. The first non-skipped row of the
// selected sheet is treated as the header.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // rows to skip before the header
	StartRowID int    // see CSVOptions.StartRowID
}

// ReadXLSX reads a spreadsheet export of the budget table and returns its
// data rows. Open-data portals publish the same table as both CSV and XLSX;
// both feed the identical cleaning pipeline.
func ReadXLSX(path string, opts XLSXOptions) ([]model.RawRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var header []string
	var rows []model.RawRow
	rowID := opts.StartRowID

	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		cells := rowToStrings(row)

		if header == nil {
			header = cells
			continue
		}

		rowID++
		rows = append(rows, toRawRow(header, cells, rowID))
	}

	if header == nil {
		return nil, eris.New("xlsx: no header row found")
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}
