package session

import (
	"sync"
	"testing"
	"time"

	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choice(urls ...string) *extractor.QualityChoice {
	qc := &extractor.QualityChoice{Title: "clip", Caption: "caption", FileName: "clip.mp4"}
	for _, u := range urls {
		qc.Entries = append(qc.Entries, extractor.Entry{URL: u})
	}
	return qc
}

func TestPutGet(t *testing.T) {
	s := New(0, 0)

	id := s.Put("https://youtu.be/a", choice("https://cdn/1", "https://cdn/2"))
	assert.Equal(t, int64(1), id)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/a", sess.SourceURL)
	assert.Equal(t, "clip", sess.Title)
	require.Len(t, sess.Entries, 2)

	e, err := s.Entry(id, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/2", e.URL)

	assert.Equal(t, int64(2), s.Put("https://youtu.be/b", choice("https://cdn/3")))
}

func TestUnknownSessionExpired(t *testing.T) {
	s := New(0, 0)
	_, err := s.Get(99)
	require.Error(t, err)
	assert.Equal(t, failure.SessionExpired, failure.KindOf(err))

	_, err = s.Entry(99, 0)
	assert.Equal(t, failure.SessionExpired, failure.KindOf(err))
}

func TestEntryOutOfRange(t *testing.T) {
	s := New(0, 0)
	id := s.Put("u", choice("https://cdn/1"))

	_, err := s.Entry(id, 5)
	require.Error(t, err)
	assert.Equal(t, failure.UnexpectedFailure, failure.KindOf(err))
	_, err = s.Entry(id, -1)
	assert.Error(t, err)
}

func TestTTLExpiry(t *testing.T) {
	s := New(20*time.Millisecond, 10)
	id := s.Put("u", choice("https://cdn/1"))

	assert.Eventually(t, func() bool {
		_, err := s.Get(id)
		return failure.KindOf(err) == failure.SessionExpired
	}, time.Second, 10*time.Millisecond)
}

func TestCapacityEviction(t *testing.T) {
	s := New(time.Hour, 2)
	first := s.Put("u1", choice("https://cdn/1"))
	s.Put("u2", choice("https://cdn/2"))
	s.Put("u3", choice("https://cdn/3"))

	_, err := s.Get(first)
	assert.Equal(t, failure.SessionExpired, failure.KindOf(err))
	assert.Equal(t, 2, s.Len())
}

func TestPutCopiesEntries(t *testing.T) {
	s := New(0, 0)
	qc := choice("https://cdn/1")
	id := s.Put("u", qc)
	qc.Entries[0].URL = "changed"

	e, err := s.Entry(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/1", e.URL)
}

func TestConcurrentPut(t *testing.T) {
	s := New(0, 0)
	var wg sync.WaitGroup
	ids := make([]int64, 50)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = s.Put("u", choice("https://cdn/x"))
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Equal(t, 50, s.Len())
}

func TestDelete(t *testing.T) {
	s := New(0, 0)
	id := s.Put("u", choice("https://cdn/1"))
	s.Delete(id)
	_, err := s.Get(id)
	assert.Equal(t, failure.SessionExpired, failure.KindOf(err))
}
