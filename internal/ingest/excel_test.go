package ingest

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbookBytes(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestPipeline_IngestExcel(t *testing.T) {
	p := testPipeline(t)
	buf := workbookBytes(t, [][]interface{}{
		{"Date", "Sales", "Region"},
		{"2025-01-17", "93.50", "East"},
		{"2025-01-16", "₹1,234.50", "West"},
	})

	result, err := p.IngestExcel(context.Background(), buf, "orders.xlsx")
	require.NoError(t, err)
	require.Equal(t, 2, result.Dataset.Len())

	// Same coercion and sorting as CSV ingestion.
	assert.Equal(t, []float64{1234.50, 93.50}, result.Dataset.Primary())
	require.NotNil(t, result.Dataset.Rows[0].Region)
	assert.Equal(t, "West", *result.Dataset.Rows[0].Region)
}

func TestPipeline_IngestExcel_ShortRows(t *testing.T) {
	p := testPipeline(t)
	buf := workbookBytes(t, [][]interface{}{
		{"Date", "Sales", "Region"},
		{"2025-01-16", "100"}, // region cell missing entirely
	})

	result, err := p.IngestExcel(context.Background(), buf, "short.xlsx")
	require.NoError(t, err)
	require.Equal(t, 1, result.Dataset.Len())
	assert.Nil(t, result.Dataset.Rows[0].Region)
}

func TestPipeline_IngestExcel_NotAWorkbook(t *testing.T) {
	p := testPipeline(t)
	_, err := p.IngestExcel(context.Background(), strings.NewReader("not a zip"), "bogus.xlsx")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "bogus.xlsx", parseErr.Source)
}
