package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"nebcli/internal/exporter"
	"nebcli/internal/infrastructure"
	"nebcli/internal/ingest"
	"nebcli/internal/session"
	"nebcli/internal/source"
	"nebcli/pkg/contracts/domain"
)

// EventPublisher pushes dataset lifecycle events to connected clients.
// The websocket hub implements it; a nil publisher disables events.
type EventPublisher interface {
	PublishDatasetEvent(sessionID, event string, rows int)
}

// DatasetService owns the fetch -> ingest -> session pipeline plus row
// appends and CSV export.
type DatasetService struct {
	logger        *slog.Logger
	fetcher       *source.Fetcher
	pipeline      *ingest.Pipeline
	writer        *exporter.CSVWriter
	metrics       *infrastructure.Metrics
	events        EventPublisher
	defaultURL    string
	defaultRegion string
}

// DatasetServiceDeps bundles the dependencies of a DatasetService.
type DatasetServiceDeps struct {
	Logger        *slog.Logger
	Fetcher       *source.Fetcher
	Pipeline      *ingest.Pipeline
	Writer        *exporter.CSVWriter
	Metrics       *infrastructure.Metrics
	Events        EventPublisher
	DefaultURL    string
	DefaultRegion string
}

// NewDatasetService creates a new dataset service
func NewDatasetService(deps DatasetServiceDeps) *DatasetService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetService{
		logger:        logger.With(slog.String("service", "dataset")),
		fetcher:       deps.Fetcher,
		pipeline:      deps.Pipeline,
		writer:        deps.Writer,
		metrics:       deps.Metrics,
		events:        deps.Events,
		defaultURL:    deps.DefaultURL,
		defaultRegion: deps.DefaultRegion,
	}
}

// LoadSummary reports the outcome of a load or upload.
type LoadSummary struct {
	Source      string `json:"source"`
	Rows        int    `json:"rows"`
	RowsSeen    int    `json:"rows_seen"`
	RowsDropped int    `json:"rows_dropped"`
	FromCache   bool   `json:"from_cache"`
}

// LoadFromURL fetches a remote CSV, runs it through the ingestion pipeline and
// replaces the session's table. An empty url falls back to the configured
// source. Ingestion failures leave the previous table untouched.
func (s *DatasetService) LoadFromURL(ctx context.Context, sess *session.Session, url string) (*LoadSummary, error) {
	if url == "" {
		url = s.defaultURL
	}
	if url == "" {
		return nil, ErrNoSourceURL
	}

	body, fromCache, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.metrics.IngestsTotal.WithLabelValues("url", "fetch_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	s.metrics.SourceFetches.WithLabelValues(cacheLabel(fromCache)).Inc()

	result, err := s.pipeline.Ingest(ctx, bytes.NewReader(body), url)
	if err != nil {
		s.metrics.IngestsTotal.WithLabelValues("url", "error").Inc()
		return nil, err
	}

	return s.commit(ctx, sess, result, url, fromCache, "url"), nil
}

// Upload ingests an uploaded CSV or Excel workbook into the session. The
// format is chosen by file extension; anything else is rejected.
func (s *DatasetService) Upload(ctx context.Context, sess *session.Session, filename string, r io.Reader) (*LoadSummary, error) {
	var (
		result *ingest.Result
		err    error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", "":
		result, err = s.pipeline.Ingest(ctx, r, filename)
	case ".xlsx", ".xlsm":
		result, err = s.pipeline.IngestExcel(ctx, r, filename)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFile, filepath.Ext(filename))
	}
	if err != nil {
		s.metrics.IngestsTotal.WithLabelValues("upload", "error").Inc()
		return nil, err
	}

	return s.commit(ctx, sess, result, filename, false, "upload"), nil
}

func (s *DatasetService) commit(ctx context.Context, sess *session.Session, result *ingest.Result, sourceName string, fromCache bool, kind string) *LoadSummary {
	sess.Replace(result.Dataset)

	s.metrics.IngestsTotal.WithLabelValues(kind, "success").Inc()
	s.metrics.RowsIngested.Add(float64(result.Dataset.Len()))
	s.metrics.RowsDropped.Add(float64(result.RowsDropped))

	s.logger.InfoContext(ctx, "dataset loaded",
		slog.String("session_id", sess.ID),
		slog.String("source", sourceName),
		slog.Int("rows", result.Dataset.Len()),
		slog.Int("rows_dropped", result.RowsDropped),
		slog.Bool("from_cache", fromCache),
	)

	if s.events != nil {
		s.events.PublishDatasetEvent(sess.ID, "dataset:loaded", result.Dataset.Len())
	}

	return &LoadSummary{
		Source:      sourceName,
		Rows:        result.Dataset.Len(),
		RowsSeen:    result.RowsSeen,
		RowsDropped: result.RowsDropped,
		FromCache:   fromCache,
	}
}

// Snapshot returns a copy of the session's current table.
func (s *DatasetService) Snapshot(sess *session.Session) (*domain.Dataset, error) {
	return sess.Snapshot()
}

// AppendRow coerces a manual row through the ingestion rules and inserts it at
// its date-sorted position. Missing region falls back to the configured
// default and a missing secondary metric becomes zero, matching how the entry
// form behaves.
func (s *DatasetService) AppendRow(ctx context.Context, sess *session.Session, in ingest.RowInput) (int, error) {
	roles, err := sess.Roles()
	if err != nil {
		return 0, err
	}

	if strings.TrimSpace(in.Region) == "" {
		in.Region = s.defaultRegion
	}
	if strings.TrimSpace(in.Secondary) == "" {
		in.Secondary = "0"
	}

	row, err := s.pipeline.CoerceRow(roles, in)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	count, err := sess.Append(row)
	if err != nil {
		return 0, err
	}

	s.metrics.RowsAppended.Inc()
	s.logger.InfoContext(ctx, "row appended",
		slog.String("session_id", sess.ID),
		slog.Int("rows", count),
	)

	if s.events != nil {
		s.events.PublishDatasetEvent(sess.ID, "dataset:row_appended", count)
	}

	return count, nil
}

// ExportCSV writes the session's table as canonical CSV to out.
func (s *DatasetService) ExportCSV(ctx context.Context, sess *session.Session, out io.Writer) error {
	snapshot, err := sess.Snapshot()
	if err != nil {
		return err
	}
	if err := s.writer.Write(out, snapshot); err != nil {
		return err
	}
	s.metrics.Exports.Inc()
	s.logger.InfoContext(ctx, "dataset exported",
		slog.String("session_id", sess.ID),
		slog.Int("rows", snapshot.Len()),
	)
	return nil
}

// InvalidateSource drops the cached copy of a source URL so the next load
// refetches it.
func (s *DatasetService) InvalidateSource(url string) {
	if url == "" {
		url = s.defaultURL
	}
	s.fetcher.Invalidate(url)
}

func cacheLabel(fromCache bool) string {
	if fromCache {
		return "hit"
	}
	return "miss"
}
