package session

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebcli/pkg/contracts/domain"
)

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func testDataset() *domain.Dataset {
	return &domain.Dataset{
		Roles: domain.RoleMap{
			domain.RoleDate:          "Date",
			domain.RolePrimaryMetric: "Sales",
		},
		Columns: []string{"Date", "Sales"},
		Rows: []domain.Row{
			{Date: day(1), Primary: 1},
			{Date: day(3), Primary: 3},
		},
	}
}

func TestStore_GetOrCreate(t *testing.T) {
	store := NewStore(slog.Default(), time.Minute)

	t.Run("empty id mints a session", func(t *testing.T) {
		sess, created := store.GetOrCreate("")
		assert.True(t, created)
		assert.NotEmpty(t, sess.ID)
	})

	t.Run("known id returns the same session", func(t *testing.T) {
		sess, _ := store.GetOrCreate("")
		again, created := store.GetOrCreate(sess.ID)
		assert.False(t, created)
		assert.Same(t, sess, again)
	})

	t.Run("unknown id starts over", func(t *testing.T) {
		sess, created := store.GetOrCreate("expired-or-bogus")
		assert.True(t, created)
		assert.NotEqual(t, "expired-or-bogus", sess.ID)
	})
}

func TestStore_Count(t *testing.T) {
	store := NewStore(slog.Default(), time.Minute)
	store.GetOrCreate("")
	store.GetOrCreate("")
	assert.Equal(t, 2, store.Count())
}

func TestSession_SnapshotWithoutDataset(t *testing.T) {
	store := NewStore(slog.Default(), time.Minute)
	sess, _ := store.GetOrCreate("")

	_, err := sess.Snapshot()
	require.ErrorIs(t, err, ErrNoDataset)

	_, err = sess.Roles()
	require.ErrorIs(t, err, ErrNoDataset)

	_, err = sess.Append(domain.Row{Date: day(1), Primary: 1})
	require.ErrorIs(t, err, ErrNoDataset)
}

func TestSession_SnapshotIsIsolated(t *testing.T) {
	store := NewStore(slog.Default(), time.Minute)
	sess, _ := store.GetOrCreate("")
	sess.Replace(testDataset())

	snap, err := sess.Snapshot()
	require.NoError(t, err)

	// Mutating the snapshot must not leak into the session.
	snap.Rows[0].Primary = 999

	again, err := sess.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Rows[0].Primary)
}

func TestSession_AppendKeepsSortOrder(t *testing.T) {
	store := NewStore(slog.Default(), time.Minute)
	sess, _ := store.GetOrCreate("")
	sess.Replace(testDataset())

	count, err := sess.Append(domain.Row{Date: day(2), Primary: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	snap, err := sess.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, snap.Primary())
}

func TestSession_AppendEqualDatesInsertAfter(t *testing.T) {
	store := NewStore(slog.Default(), time.Minute)
	sess, _ := store.GetOrCreate("")
	sess.Replace(testDataset())

	_, err := sess.Append(domain.Row{Date: day(1), Primary: 10})
	require.NoError(t, err)

	snap, err := sess.Snapshot()
	require.NoError(t, err)
	// The new row lands after the existing same-date row (stable insert).
	assert.Equal(t, []float64{1, 10, 3}, snap.Primary())
}
