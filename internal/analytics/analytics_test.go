package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebcli/pkg/contracts/domain"
)

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func priceTable(values ...float64) *domain.Dataset {
	d := &domain.Dataset{
		Roles: domain.RoleMap{
			domain.RoleDate:          "Date",
			domain.RolePrimaryMetric: "Price",
		},
		Columns: []string{"Date", "Price"},
	}
	for i, v := range values {
		d.Rows = append(d.Rows, domain.Row{Date: day(i + 1), Primary: v})
	}
	return d
}

func regionTable() *domain.Dataset {
	west, east := "West", "East"
	return &domain.Dataset{
		Roles: domain.RoleMap{
			domain.RoleDate:          "Date",
			domain.RolePrimaryMetric: "Sales",
			domain.RoleRegion:        "Region",
		},
		Columns: []string{"Date", "Sales", "Region"},
		Rows: []domain.Row{
			{Date: day(1), Primary: 100, Region: &west},
			{Date: day(2), Primary: 200, Region: &west},
			{Date: day(3), Primary: 50, Region: &east},
		},
	}
}

func TestMovingAverage(t *testing.T) {
	t.Run("reference scenario", func(t *testing.T) {
		d := priceTable(93.20, 93.50, 92.80)
		got, err := MovingAverage(d, 2)
		require.NoError(t, err)
		require.Len(t, got, 3)

		assert.Nil(t, got[0])
		require.NotNil(t, got[1])
		assert.InDelta(t, 93.35, *got[1], 1e-9)
		require.NotNil(t, got[2])
		assert.InDelta(t, 93.15, *got[2], 1e-9)
	})

	t.Run("window equal to length", func(t *testing.T) {
		d := priceTable(1, 2, 3)
		got, err := MovingAverage(d, 3)
		require.NoError(t, err)
		assert.Nil(t, got[0])
		assert.Nil(t, got[1])
		require.NotNil(t, got[2])
		assert.InDelta(t, 2.0, *got[2], 1e-9)
	})

	t.Run("window one is identity", func(t *testing.T) {
		d := priceTable(4, 5)
		got, err := MovingAverage(d, 1)
		require.NoError(t, err)
		assert.Equal(t, 4.0, *got[0])
		assert.Equal(t, 5.0, *got[1])
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := MovingAverage(priceTable(1), 0)
		require.Error(t, err)
	})
}

func TestPeriodChange(t *testing.T) {
	t.Run("reference scenario", func(t *testing.T) {
		d := priceTable(93.20, 93.50, 92.80)
		got := PeriodChange(d)
		require.Len(t, got, 3)

		assert.Nil(t, got[0])
		require.NotNil(t, got[1])
		assert.InDelta(t, 0.3219, *got[1], 1e-4)
		require.NotNil(t, got[2])
		assert.InDelta(t, -0.7487, *got[2], 1e-4)
	})

	t.Run("zero previous value yields null", func(t *testing.T) {
		d := priceTable(0, 10)
		got := PeriodChange(d)
		assert.Nil(t, got[0])
		assert.Nil(t, got[1])
	})
}

func TestAggregate(t *testing.T) {
	t.Run("by region", func(t *testing.T) {
		groups, err := Aggregate(regionTable(), "Region")
		require.NoError(t, err)
		require.Len(t, groups, 2)

		west := groups["West"]
		assert.Equal(t, 2, west.Count)
		assert.Equal(t, 300.0, west.Sum)
		assert.Equal(t, 150.0, west.Mean)
		assert.Equal(t, 100.0, west.Min)
		assert.Equal(t, 200.0, west.Max)
		assert.InDelta(t, 70.7107, west.StdDev, 1e-4)
	})

	t.Run("single-row group has zero stddev", func(t *testing.T) {
		groups, err := Aggregate(regionTable(), "Region")
		require.NoError(t, err)
		east := groups["East"]
		assert.Equal(t, 1, east.Count)
		assert.Equal(t, 0.0, east.StdDev)
	})

	t.Run("empty group column aggregates everything", func(t *testing.T) {
		groups, err := Aggregate(regionTable(), "")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, 3, groups[AllKey].Count)
		assert.Equal(t, 350.0, groups[AllKey].Sum)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := Aggregate(regionTable(), "Ship Mode")
		require.ErrorIs(t, err, ErrUnknownColumn)
	})
}

func TestCompareTwo(t *testing.T) {
	t.Run("both keys present", func(t *testing.T) {
		cmp, err := CompareTwo(regionTable(), "West", "East", "Region")
		require.NoError(t, err)
		assert.Equal(t, 300.0, cmp.ValueA)
		assert.Equal(t, 50.0, cmp.ValueB)
		assert.Equal(t, -250.0, cmp.AbsoluteDelta)
		require.NotNil(t, cmp.PercentDelta)
		assert.InDelta(t, -83.3333, *cmp.PercentDelta, 1e-4)
	})

	t.Run("missing key is a typed failure", func(t *testing.T) {
		_, err := CompareTwo(regionTable(), "West", "South", "Region")
		var cmpErr *ComparisonError
		require.True(t, errors.As(err, &cmpErr))
		assert.Equal(t, "South", cmpErr.Key)
		assert.Equal(t, "Region", cmpErr.Column)
	})

	t.Run("zero base has nil percent delta", func(t *testing.T) {
		d := regionTable()
		d.Rows[0].Primary = 0
		d.Rows[1].Primary = 0
		cmp, err := CompareTwo(d, "West", "East", "Region")
		require.NoError(t, err)
		assert.Equal(t, 50.0, cmp.AbsoluteDelta)
		assert.Nil(t, cmp.PercentDelta)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := CompareTwo(regionTable(), "West", "East", "Warehouse")
		require.ErrorIs(t, err, ErrUnknownColumn)
	})
}

func TestSummarize(t *testing.T) {
	t.Run("primary only", func(t *testing.T) {
		s := Summarize(priceTable(1, 2, 3))
		assert.Equal(t, 6.0, s.TotalPrimary)
		assert.Equal(t, 3, s.Rows)
		assert.Nil(t, s.TotalSecondary)
		assert.Nil(t, s.MeanDiscount)
	})

	t.Run("with secondary and discount", func(t *testing.T) {
		profit := 10.0
		discount := 0.2
		d := priceTable(100)
		d.Roles[domain.RoleSecondaryMetric] = "Profit"
		d.Roles[domain.RoleDiscount] = "Discount"
		d.Rows[0].Secondary = &profit
		d.Rows[0].Discount = &discount

		s := Summarize(d)
		require.NotNil(t, s.TotalSecondary)
		assert.Equal(t, 10.0, *s.TotalSecondary)
		require.NotNil(t, s.MeanDiscount)
		assert.Equal(t, 0.2, *s.MeanDiscount)
	})
}
