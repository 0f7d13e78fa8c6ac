// Package analytics computes derived metrics over normalized datasets. Every
// function is stateless and leaves its input untouched; callers recompute on
// demand rather than caching results.
package analytics

import (
	"errors"
	"fmt"
	"math"

	"nebcli/pkg/contracts/domain"
)

// AllKey is the implicit group key for ungrouped aggregation.
const AllKey = "ALL"

// ErrUnknownColumn means a requested column exists neither as a role column
// nor as a passthrough column.
var ErrUnknownColumn = errors.New("unknown column")

// MovingAverage returns the trailing arithmetic mean of the primary metric for
// a caller-supplied window. Entry i covers positions [i-window+1, i]; entries
// with fewer than window preceding points are nil, never a partial-window
// average, so early trend values are not distorted.
func MovingAverage(d *domain.Dataset, window int) ([]*float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be a positive integer, got %d", window)
	}

	out := make([]*float64, d.Len())
	var sum float64
	for i, row := range d.Rows {
		sum += row.Primary
		if i >= window {
			sum -= d.Rows[i-window].Primary
		}
		if i >= window-1 {
			v := sum / float64(window)
			out[i] = &v
		}
	}
	return out, nil
}

// PeriodChange returns the percentage change between consecutive rows'
// primary metric. Entry 0 is nil (no prior row), and an entry whose previous
// value is 0 is nil rather than a division failure.
func PeriodChange(d *domain.Dataset) []*float64 {
	out := make([]*float64, d.Len())
	for i := 1; i < d.Len(); i++ {
		prev := d.Rows[i-1].Primary
		if prev == 0 {
			continue
		}
		v := (d.Rows[i].Primary - prev) / prev * 100
		out[i] = &v
	}
	return out
}

// Stats holds aggregate statistics of the primary metric for one group.
type Stats struct {
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
	StdDev float64 `json:"stddev"`
}

// Aggregate computes per-group statistics of the primary metric. With an empty
// groupBy every row lands under AllKey. Rows with no value for the group
// column are skipped. Standard deviation uses the sample (n-1) denominator; a
// group of size 1 has stddev 0 by definition so charts never lose a bar to NaN.
func Aggregate(d *domain.Dataset, groupBy string) (map[string]Stats, error) {
	if groupBy != "" && !hasColumn(d, groupBy) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, groupBy)
	}

	groups := make(map[string][]float64)
	for _, row := range d.Rows {
		key := AllKey
		if groupBy != "" {
			v, ok := row.Field(groupBy, d.Roles)
			if !ok {
				continue
			}
			key = v
		}
		groups[key] = append(groups[key], row.Primary)
	}

	out := make(map[string]Stats, len(groups))
	for key, values := range groups {
		out[key] = describe(values)
	}
	return out, nil
}

// Comparison is the result of comparing two entities on a categorical column.
// PercentDelta is nil when the base value is 0.
type Comparison struct {
	ValueA        float64  `json:"value_a"`
	ValueB        float64  `json:"value_b"`
	AbsoluteDelta float64  `json:"absolute_delta"`
	PercentDelta  *float64 `json:"percent_delta"`
}

// ComparisonError means a requested key matched zero rows. Defaulting to 0
// would misrepresent "no data" as "zero value", so this is a typed failure.
type ComparisonError struct {
	Key    string
	Column string
}

func (e *ComparisonError) Error() string {
	return fmt.Sprintf("no rows match %q in column %q", e.Key, e.Column)
}

// CompareTwo sums the primary metric for each key over the given column and
// reports absolute and percentage deltas of B relative to A.
func CompareTwo(d *domain.Dataset, keyA, keyB, on string) (*Comparison, error) {
	if !hasColumn(d, on) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, on)
	}

	sumA, okA := sumWhere(d, on, keyA)
	if !okA {
		return nil, &ComparisonError{Key: keyA, Column: on}
	}
	sumB, okB := sumWhere(d, on, keyB)
	if !okB {
		return nil, &ComparisonError{Key: keyB, Column: on}
	}

	cmp := &Comparison{
		ValueA:        sumA,
		ValueB:        sumB,
		AbsoluteDelta: sumB - sumA,
	}
	if sumA != 0 {
		v := (sumB - sumA) / sumA * 100
		cmp.PercentDelta = &v
	}
	return cmp, nil
}

// Summary holds the KPI strip values for the dashboard landing page.
type Summary struct {
	TotalPrimary   float64  `json:"total_primary"`
	TotalSecondary *float64 `json:"total_secondary,omitempty"`
	Rows           int      `json:"rows"`
	MeanDiscount   *float64 `json:"mean_discount,omitempty"`
}

// Summarize computes dataset-level KPIs. Secondary and discount figures are
// nil when their roles were not resolved for the source.
func Summarize(d *domain.Dataset) Summary {
	s := Summary{Rows: d.Len()}

	var secondary float64
	var discountSum float64
	discountCount := 0
	for _, row := range d.Rows {
		s.TotalPrimary += row.Primary
		if row.Secondary != nil {
			secondary += *row.Secondary
		}
		if row.Discount != nil {
			discountSum += *row.Discount
			discountCount++
		}
	}
	if d.Roles.Has(domain.RoleSecondaryMetric) {
		s.TotalSecondary = &secondary
	}
	if discountCount > 0 {
		v := discountSum / float64(discountCount)
		s.MeanDiscount = &v
	}
	return s
}

func describe(values []float64) Stats {
	s := Stats{
		Count: len(values),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	for _, v := range values {
		s.Sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = s.Sum / float64(s.Count)

	if s.Count > 1 {
		var ss float64
		for _, v := range values {
			diff := v - s.Mean
			ss += diff * diff
		}
		s.StdDev = math.Sqrt(ss / float64(s.Count-1))
	}
	return s
}

func hasColumn(d *domain.Dataset, name string) bool {
	for _, col := range d.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// sumWhere sums the primary metric over rows whose column value equals key.
// The second return is false when no row matched.
func sumWhere(d *domain.Dataset, column, key string) (float64, bool) {
	var sum float64
	matched := false
	for _, row := range d.Rows {
		if v, ok := row.Field(column, d.Roles); ok && v == key {
			sum += row.Primary
			matched = true
		}
	}
	return sum, matched
}
