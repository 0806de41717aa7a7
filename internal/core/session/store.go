// Package session keeps the quality lists of recent resolutions so a later
// request can pick one of them by id without resolving again.
package session

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 1024
)

// Session is one stored quality list
type Session struct {
	ID        int64
	SourceURL string
	Title     string
	Caption   string
	FileName  string
	Entries   []extractor.Entry
	CreatedAt time.Time
}

// Store is a bounded, expiring map from session id to Session. It is safe
// for concurrent use.
type Store struct {
	cache  *expirable.LRU[int64, *Session]
	nextID atomic.Int64
}

// New creates a Store. Non-positive arguments select the defaults.
func New(ttl time.Duration, maxEntries int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	onEvict := func(id int64, s *Session) {
		slog.Debug("session evicted", "component", "session", "id", id)
	}
	return &Store{cache: expirable.NewLRU[int64, *Session](maxEntries, onEvict, ttl)}
}

// Put stores a quality choice and returns its new id. Ids start at 1 and are
// never reused.
func (s *Store) Put(sourceURL string, qc *extractor.QualityChoice) int64 {
	id := s.nextID.Add(1)
	entries := make([]extractor.Entry, len(qc.Entries))
	copy(entries, qc.Entries)

	s.cache.Add(id, &Session{
		ID:        id,
		SourceURL: sourceURL,
		Title:     qc.Title,
		Caption:   qc.Caption,
		FileName:  qc.FileName,
		Entries:   entries,
		CreatedAt: time.Now(),
	})
	return id
}

// Get returns the session for id, or a SessionExpired error if it is unknown
// or has been evicted
func (s *Store) Get(id int64) (*Session, error) {
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil, failure.New(failure.SessionExpired, "session %d expired or not found", id)
	}
	return sess, nil
}

// Entry returns one entry of a session
func (s *Store) Entry(id int64, index int) (extractor.Entry, error) {
	sess, err := s.Get(id)
	if err != nil {
		return extractor.Entry{}, err
	}
	if index < 0 || index >= len(sess.Entries) {
		return extractor.Entry{}, failure.New(failure.UnexpectedFailure,
			"session %d has no entry %d (%d available)", id, index, len(sess.Entries))
	}
	return sess.Entries[index], nil
}

// Delete drops a session
func (s *Store) Delete(id int64) {
	s.cache.Remove(id)
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	return s.cache.Len()
}
