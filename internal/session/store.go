// Package session owns the per-session normalized table. Each session has
// exactly one logical writer; the mutex only enforces that invariant at the
// HTTP boundary, it does not make cross-session sharing safe or intended.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"nebcli/pkg/contracts/domain"
)

// ErrNoDataset is returned when an operation needs a loaded table and the
// session has none yet.
var ErrNoDataset = errors.New("session has no dataset loaded")

// Session holds one user's normalized table for the lifetime of their visit.
// The table is append-only or replaced wholesale; rows are never edited.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	dataset *domain.Dataset
}

// Snapshot returns a deep copy of the current table so encoders and metric
// computations never observe a concurrent append.
func (s *Session) Snapshot() (*domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return nil, ErrNoDataset
	}
	return s.dataset.Clone(), nil
}

// Replace swaps in a freshly ingested table. A failed ingestion never reaches
// this point, so the previous table survives bad loads untouched.
func (s *Session) Replace(d *domain.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = d
}

// Append inserts a validated row at its sorted position and returns the new
// row count.
func (s *Session) Append(row domain.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return 0, ErrNoDataset
	}
	s.dataset.InsertSorted(row)
	return len(s.dataset.Rows), nil
}

// Roles returns the session's resolved role map.
func (s *Session) Roles() (domain.RoleMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == nil {
		return nil, ErrNoDataset
	}
	return s.dataset.Roles, nil
}

// Store tracks live sessions. Idle sessions expire after the configured TTL;
// activity slides the expiry forward.
type Store struct {
	logger   *slog.Logger
	sessions *cache.Cache
}

// NewStore creates a session store with the given idle TTL.
func NewStore(logger *slog.Logger, ttl time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:   logger,
		sessions: cache.New(ttl, 2*ttl),
	}
}

// GetOrCreate looks up a session by ID, minting a fresh one when the ID is
// empty or unknown (an expired session simply starts over rather than
// erroring). The bool reports whether a new session was created.
func (st *Store) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if v, found := st.sessions.Get(id); found {
			sess := v.(*Session)
			st.sessions.SetDefault(id, sess) // slide expiry
			return sess, false
		}
	}

	sess := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}
	st.sessions.SetDefault(sess.ID, sess)
	st.logger.Debug("session created", slog.String("session_id", sess.ID))
	return sess, true
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	return st.sessions.ItemCount()
}
