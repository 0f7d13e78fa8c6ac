package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"
)

// IngestExcel normalizes the first non-empty sheet of an XLSX workbook through
// the same pipeline as CSV sources. Sheet cells arrive as strings from
// excelize, so all coercion policies apply unchanged.
func (p *Pipeline) IngestExcel(ctx context.Context, r io.Reader, source string) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Source: source, Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()

	var records [][]string
	var sheetName string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if len(rows) > 0 {
			records = rows
			sheetName = name
			break
		}
	}
	if records == nil {
		return nil, &ParseError{Source: source, Err: fmt.Errorf("workbook has no non-empty sheet")}
	}

	p.logger.DebugContext(ctx, "reading workbook sheet",
		slog.String("source", source),
		slog.String("sheet", sheetName),
		slog.Int("rows", len(records)))

	// excelize trims trailing empty cells per row; pad so role columns
	// resolve by index even on short rows.
	width := len(records[0])
	for i, row := range records {
		for len(row) < width {
			row = append(row, "")
		}
		records[i] = row
	}

	return p.IngestRecords(ctx, records, source)
}
