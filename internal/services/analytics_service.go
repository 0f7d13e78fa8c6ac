package services

import (
	"context"
	"log/slog"

	"nebcli/internal/analytics"
	"nebcli/internal/session"
)

// AnalyticsService computes derived metrics over a session's table. All
// computations run on a snapshot, so concurrent appends never skew a response.
type AnalyticsService struct {
	logger *slog.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(logger *slog.Logger) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsService{
		logger: logger.With(slog.String("service", "analytics")),
	}
}

// MovingAverage returns the trailing moving average of the primary metric.
// Positions without a full window are null.
func (s *AnalyticsService) MovingAverage(ctx context.Context, sess *session.Session, window int) ([]*float64, error) {
	snapshot, err := sess.Snapshot()
	if err != nil {
		return nil, err
	}
	values, err := analytics.MovingAverage(snapshot, window)
	if err != nil {
		return nil, ErrInvalidWindow
	}
	return values, nil
}

// PeriodChange returns the row-over-row percent change of the primary
// metric. The first position is null, as is any position whose previous
// value is zero.
func (s *AnalyticsService) PeriodChange(ctx context.Context, sess *session.Session) ([]*float64, error) {
	snapshot, err := sess.Snapshot()
	if err != nil {
		return nil, err
	}
	return analytics.PeriodChange(snapshot), nil
}

// Aggregate groups the primary metric by a column and returns descriptive
// statistics per group.
func (s *AnalyticsService) Aggregate(ctx context.Context, sess *session.Session, groupBy string) (map[string]analytics.Stats, error) {
	snapshot, err := sess.Snapshot()
	if err != nil {
		return nil, err
	}
	return analytics.Aggregate(snapshot, groupBy)
}

// Compare sums the primary metric for two key values of a column and reports
// their absolute and percent delta.
func (s *AnalyticsService) Compare(ctx context.Context, sess *session.Session, keyA, keyB, on string) (*analytics.Comparison, error) {
	snapshot, err := sess.Snapshot()
	if err != nil {
		return nil, err
	}
	return analytics.CompareTwo(snapshot, keyA, keyB, on)
}

// Summary returns the headline totals for the session's table.
func (s *AnalyticsService) Summary(ctx context.Context, sess *session.Session) (*analytics.Summary, error) {
	snapshot, err := sess.Snapshot()
	if err != nil {
		return nil, err
	}
	summary := analytics.Summarize(snapshot)
	return &summary, nil
}
