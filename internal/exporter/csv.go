// Package exporter reproduces normalized datasets as CSV, preserving the
// source column order so an export can be re-ingested into an equal table.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"nebcli/pkg/contracts/domain"
)

// DateFormat and DateTimeFormat are the canonical layouts for exported date
// cells. Both appear in the ingestion layout list, so an export re-ingests to
// the same timestamps. The datetime form is only used when a row carries a
// non-midnight time, keeping date-only sources byte-stable.
const (
	DateFormat     = "2006-01-02"
	DateTimeFormat = "2006-01-02 15:04:05"
)

// CSVWriter serializes datasets to CSV streams and files.
type CSVWriter struct {
	logger    *slog.Logger
	bomPrefix bool
}

// NewCSVWriter creates a CSV writer. The UTF-8 BOM prefix helps Excel
// recognize the encoding and is stripped again on ingestion.
func NewCSVWriter(logger *slog.Logger, bomPrefix bool) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger, bomPrefix: bomPrefix}
}

// Write streams the dataset as CSV: the original header row followed by every
// normalized row, including appended ones, in table order.
func (w *CSVWriter) Write(out io.Writer, d *domain.Dataset) error {
	if w.bomPrefix {
		if _, err := out.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(d.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(d.Columns))
	for i, row := range d.Rows {
		for j, col := range d.Columns {
			record[j] = cellValue(row, col, d.Roles)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile exports the dataset to a file, creating parent directories.
func (w *CSVWriter) WriteFile(path string, d *domain.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if err := w.Write(f, d); err != nil {
		f.Close()
		return err
	}

	w.logger.Info("dataset exported",
		slog.String("path", path),
		slog.Int("rows", d.Len()))

	return f.Close()
}

// cellValue renders one cell. Role columns use canonical formatting; unset
// optional cells are empty; passthrough columns come back verbatim.
func cellValue(row domain.Row, column string, roles domain.RoleMap) string {
	switch column {
	case roles.Column(domain.RoleDate):
		return formatDate(row.Date)
	case roles.Column(domain.RolePrimaryMetric):
		return formatDecimal(row.Primary)
	case roles.Column(domain.RoleSecondaryMetric):
		if row.Secondary != nil {
			return formatDecimal(*row.Secondary)
		}
		return ""
	case roles.Column(domain.RoleCategory):
		if row.Category != nil {
			return *row.Category
		}
		return ""
	case roles.Column(domain.RoleRegion):
		if row.Region != nil {
			return *row.Region
		}
		return ""
	case roles.Column(domain.RoleDiscount):
		if row.Discount != nil {
			return formatDecimal(*row.Discount)
		}
		return ""
	}
	return row.Extra[column]
}

// formatDate keeps the time-of-day when the source had one; midnight rows
// export as a bare date.
func formatDate(t time.Time) string {
	h, m, s := t.Clock()
	if h != 0 || m != 0 || s != 0 {
		return t.Format(DateTimeFormat)
	}
	return t.Format(DateFormat)
}

// formatDecimal emits the shortest representation that parses back to the
// same float, keeping export idempotent across round trips.
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
