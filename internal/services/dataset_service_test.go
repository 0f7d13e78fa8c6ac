package services

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebcli/internal/exporter"
	"nebcli/internal/infrastructure"
	"nebcli/internal/ingest"
	"nebcli/internal/session"
	"nebcli/internal/source"
)

type recordedEvent struct {
	sessionID string
	event     string
	rows      int
}

type fakePublisher struct {
	events []recordedEvent
}

func (f *fakePublisher) PublishDatasetEvent(sessionID, event string, rows int) {
	f.events = append(f.events, recordedEvent{sessionID, event, rows})
}

func newTestService(t *testing.T, defaultURL string) (*DatasetService, *session.Store, *fakePublisher) {
	t.Helper()

	logger := slog.Default()
	events := &fakePublisher{}
	svc := NewDatasetService(DatasetServiceDeps{
		Logger:        logger,
		Fetcher:       source.NewFetcher(logger, time.Minute),
		Pipeline:      ingest.NewPipeline(logger, ingest.Config{}),
		Writer:        exporter.NewCSVWriter(logger, false),
		Metrics:       infrastructure.NewMetrics(),
		Events:        events,
		DefaultURL:    defaultURL,
		DefaultRegion: "Central",
	})
	return svc, session.NewStore(logger, time.Minute), events
}

const sampleCSV = "Date,Sales,Profit,Region\n" +
	"2025-01-17,93.50,2,East\n" +
	"2025-01-16,93.20,1,West\n"

func TestDatasetService_LoadFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	svc, store, events := newTestService(t, srv.URL)
	sess, _ := store.GetOrCreate("")

	summary, err := svc.LoadFromURL(context.Background(), sess, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 2, summary.RowsSeen)
	assert.Equal(t, 0, summary.RowsDropped)
	assert.False(t, summary.FromCache)

	snap, err := sess.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []float64{93.20, 93.50}, snap.Primary())

	require.Len(t, events.events, 1)
	assert.Equal(t, "dataset:loaded", events.events[0].event)
	assert.Equal(t, sess.ID, events.events[0].sessionID)
}

func TestDatasetService_LoadFromURL_NoURL(t *testing.T) {
	svc, store, _ := newTestService(t, "")
	sess, _ := store.GetOrCreate("")

	_, err := svc.LoadFromURL(context.Background(), sess, "")
	require.ErrorIs(t, err, ErrNoSourceURL)
}

func TestDatasetService_LoadFromURL_FetchFailurePreservesTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc, store, _ := newTestService(t, srv.URL)
	sess, _ := store.GetOrCreate("")

	// Seed a table via upload, then fail a URL load.
	_, err := svc.Upload(context.Background(), sess, "seed.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	_, err = svc.LoadFromURL(context.Background(), sess, "")
	require.ErrorIs(t, err, ErrFetchFailed)

	snap, err := sess.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len(), "failed load must not clobber the previous table")
}

func TestDatasetService_Upload(t *testing.T) {
	svc, store, _ := newTestService(t, "")
	sess, _ := store.GetOrCreate("")

	t.Run("csv", func(t *testing.T) {
		summary, err := svc.Upload(context.Background(), sess, "orders.csv", strings.NewReader(sampleCSV))
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Rows)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := svc.Upload(context.Background(), sess, "orders.pdf", strings.NewReader("junk"))
		require.ErrorIs(t, err, ErrUnknownFile)
	})
}

func TestDatasetService_AppendRow(t *testing.T) {
	svc, store, events := newTestService(t, "")
	sess, _ := store.GetOrCreate("")

	_, err := svc.Upload(context.Background(), sess, "orders.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)
	events.events = nil

	t.Run("defaults applied", func(t *testing.T) {
		count, err := svc.AppendRow(context.Background(), sess, ingest.RowInput{
			Date:    "2025-01-18",
			Primary: "50",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		snap, err := sess.Snapshot()
		require.NoError(t, err)
		appended := snap.Rows[2]
		require.NotNil(t, appended.Region)
		assert.Equal(t, "Central", *appended.Region)
		require.NotNil(t, appended.Secondary)
		assert.Equal(t, 0.0, *appended.Secondary)

		require.Len(t, events.events, 1)
		assert.Equal(t, "dataset:row_appended", events.events[0].event)
	})

	t.Run("invalid date", func(t *testing.T) {
		_, err := svc.AppendRow(context.Background(), sess, ingest.RowInput{
			Date:    "someday",
			Primary: "50",
		})
		require.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("no dataset", func(t *testing.T) {
		fresh, _ := store.GetOrCreate("")
		_, err := svc.AppendRow(context.Background(), fresh, ingest.RowInput{
			Date:    "2025-01-18",
			Primary: "50",
		})
		require.ErrorIs(t, err, session.ErrNoDataset)
	})
}

func TestDatasetService_ExportCSV(t *testing.T) {
	svc, store, _ := newTestService(t, "")
	sess, _ := store.GetOrCreate("")

	_, err := svc.Upload(context.Background(), sess, "orders.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), sess, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Sales,Profit,Region", lines[0])
	// Export follows table order, which is date-sorted.
	assert.Contains(t, lines[1], "2025-01-16")
	assert.Contains(t, lines[2], "2025-01-17")
}
