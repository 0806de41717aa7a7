package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	c := New()
	c.RetryDelay = time.Millisecond
	return c
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.com/v", r.URL.Query().Get("url"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"clip","height":720,"ratio":1.5,"items":[{"url":"https://cdn/x.mp4"}]}`))
	}))
	defer srv.Close()

	v, err := testClient().GetJSON(context.Background(), srv.URL, url.Values{"url": {"https://example.com/v"}}, time.Second)
	require.NoError(t, err)

	m := v.(map[string]any)
	assert.Equal(t, "clip", m["title"])
	assert.Equal(t, int64(720), m["height"])
	assert.Equal(t, 1.5, m["ratio"])
	assert.Len(t, m["items"], 1)
}

func TestGetJSONHTTPErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient().GetJSON(context.Background(), srv.URL, nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, failure.HTTPError, failure.KindOf(err))
	assert.Equal(t, http.StatusBadGateway, failure.StatusCodeOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSONTimeoutRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer srv.Close()

	_, err := testClient().GetJSON(context.Background(), srv.URL, nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, failure.Timeout, failure.KindOf(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetJSONInvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := testClient().GetJSON(context.Background(), srv.URL, nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, failure.UnexpectedFailure, failure.KindOf(err))
}

func TestGetJSONAppendsToExistingQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("fixed"))
		assert.Equal(t, "2", r.URL.Query().Get("extra"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testClient().GetJSON(context.Background(), srv.URL+"/api?fixed=1", url.Values{"extra": {"2"}}, time.Second)
	require.NoError(t, err)
}

func TestGetHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><script id="data" type="application/json">{"a":1}</script></body></html>`))
	}))
	defer srv.Close()

	doc, err := testClient().GetHTML(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, doc.Find("script#data").Text())
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		in   any
		msg  string
		ok   bool
	}{
		{"string error", map[string]any{"error": "bad url"}, "bad url", true},
		{"bool error with message", map[string]any{"error": true, "message": "quota"}, "quota", true},
		{"empty error", map[string]any{"error": ""}, "", false},
		{"false error", map[string]any{"error": false}, "", false},
		{"no error", map[string]any{"url": "x"}, "", false},
		{"not a map", []any{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ErrorMessage(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
