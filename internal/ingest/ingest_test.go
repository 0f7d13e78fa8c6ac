package ingest

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebcli/pkg/contracts/domain"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return NewPipeline(slog.Default(), Config{})
}

func TestPipeline_Ingest(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		input       string
		wantRows    int
		wantDropped int
		wantErr     bool
	}{
		{
			name: "clean input",
			input: "Order Date,Sales,Profit,Category,Region\n" +
				"2025-01-16,93.20,10,Technology,West\n" +
				"2025-01-17,93.50,12,Furniture,East\n",
			wantRows: 2,
		},
		{
			name: "unparseable date drops row",
			input: "Date,Price\n" +
				"2025-01-16,100\n" +
				"not-a-date,200\n" +
				"2025-01-18,300\n",
			wantRows:    2,
			wantDropped: 1,
		},
		{
			name: "unparseable primary drops row",
			input: "Date,Price\n" +
				"2025-01-16,abc\n" +
				"2025-01-17,200\n",
			wantRows:    1,
			wantDropped: 1,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "missing required role",
			input:   "Name,Qty\nfoo,3\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPipeline(t)
			result, err := p.Ingest(ctx, strings.NewReader(tt.input), "test.csv")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, result.Dataset.Len())
			assert.Equal(t, tt.wantDropped, result.RowsDropped)
		})
	}
}

func TestPipeline_Ingest_CurrencyNormalization(t *testing.T) {
	p := testPipeline(t)
	input := "Date,Price\n2025-01-16,\"₹1,234.50\"\n2025-01-17,$42.00\n"

	result, err := p.Ingest(context.Background(), strings.NewReader(input), "prices.csv")
	require.NoError(t, err)
	require.Equal(t, 2, result.Dataset.Len())
	assert.Equal(t, 1234.50, result.Dataset.Rows[0].Primary)
	assert.Equal(t, 42.0, result.Dataset.Rows[1].Primary)
}

func TestPipeline_Ingest_SortsByDate(t *testing.T) {
	p := testPipeline(t)
	input := "Date,Sales\n" +
		"2025-01-20,3\n" +
		"2025-01-16,1\n" +
		"2025-01-17,2\n"

	result, err := p.Ingest(context.Background(), strings.NewReader(input), "unsorted.csv")
	require.NoError(t, err)

	d := result.Dataset
	require.Equal(t, 3, d.Len())
	for i := 1; i < d.Len(); i++ {
		assert.False(t, d.Rows[i].Date.Before(d.Rows[i-1].Date),
			"rows must be sorted non-decreasing by date")
	}
	assert.Equal(t, []float64{1, 2, 3}, d.Primary())
}

func TestPipeline_Ingest_BOMAndPassthrough(t *testing.T) {
	p := testPipeline(t)
	input := "\xEF\xBB\xBFDate,Sales,Ship Mode\n2025-01-16,100,Second Class\n"

	result, err := p.Ingest(context.Background(), strings.NewReader(input), "bom.csv")
	require.NoError(t, err)
	require.Equal(t, 1, result.Dataset.Len())

	assert.Equal(t, "Date", result.Dataset.Roles.Column(domain.RoleDate))
	assert.Equal(t, "Second Class", result.Dataset.Rows[0].Extra["Ship Mode"])
}

func TestPipeline_Ingest_SecondaryDefaultsToZero(t *testing.T) {
	p := testPipeline(t)
	input := "Date,Sales,Profit\n2025-01-16,100,n/a\n"

	result, err := p.Ingest(context.Background(), strings.NewReader(input), "profit.csv")
	require.NoError(t, err)
	require.Equal(t, 1, result.Dataset.Len())

	row := result.Dataset.Rows[0]
	require.NotNil(t, row.Secondary)
	assert.Equal(t, 0.0, *row.Secondary)
}

func TestPipeline_Ingest_DateLayouts(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2025-01-16", time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
		{"01/16/2025", time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
		{"1/6/2025", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)},
		{"2025/01/16", time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
		{"16-Jan-2025", time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)},
	}

	p := testPipeline(t)
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := p.parseDate(tt.raw)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got))
		})
	}
}

func TestPipeline_CoerceRow(t *testing.T) {
	p := testPipeline(t)
	roles := domain.RoleMap{
		domain.RoleDate:            "Date",
		domain.RolePrimaryMetric:   "Sales",
		domain.RoleSecondaryMetric: "Profit",
		domain.RoleRegion:          "Region",
	}

	t.Run("valid row", func(t *testing.T) {
		row, err := p.CoerceRow(roles, RowInput{
			Date:    "2025-02-01",
			Primary: "₹99.50",
			Region:  "Central",
		})
		require.NoError(t, err)
		assert.Equal(t, 99.5, row.Primary)
		require.NotNil(t, row.Region)
		assert.Equal(t, "Central", *row.Region)
		require.NotNil(t, row.Secondary)
		assert.Equal(t, 0.0, *row.Secondary)
	})

	t.Run("bad date is an error", func(t *testing.T) {
		_, err := p.CoerceRow(roles, RowInput{Date: "tomorrow", Primary: "1"})
		require.Error(t, err)
	})

	t.Run("bad primary is an error", func(t *testing.T) {
		_, err := p.CoerceRow(roles, RowInput{Date: "2025-02-01", Primary: "lots"})
		require.Error(t, err)
	})
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"₹1,234.50", 1234.50, false},
		{"$42", 42, false},
		{"€ 10,000.25", 10000.25, false},
		{"-3.5", -3.5, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseDecimal(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
