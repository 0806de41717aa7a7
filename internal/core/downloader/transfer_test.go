package downloader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

func serveBytes(t *testing.T, data []byte, withLength bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if withLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTransfer(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 3*ChunkSize+100)
	srv := serveBytes(t, data, true)

	var calls []int64
	var buf bytes.Buffer
	n, err := Transfer(context.Background(), srv.Client(), srv.URL, &buf, 0, func(written, total int64) {
		assert.Equal(t, int64(len(data)), total)
		calls = append(calls, written)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())
	assert.Equal(t, []int64{ChunkSize, 2 * ChunkSize, 3 * ChunkSize, int64(len(data))}, calls)
}

func TestTransferSizeLimit(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 10*mib)
	srv := serveBytes(t, data, true)

	var buf bytes.Buffer
	n, err := Transfer(context.Background(), srv.Client(), srv.URL, &buf, 5*mib, nil)

	require.Error(t, err)
	assert.Equal(t, failure.SizeLimitExceeded, failure.KindOf(err))
	assert.LessOrEqual(t, n, int64(5*mib))
	assert.Equal(t, n, int64(buf.Len()))
}

func TestTransferExactLimit(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 2*ChunkSize)
	srv := serveBytes(t, data, true)

	var buf bytes.Buffer
	n, err := Transfer(context.Background(), srv.Client(), srv.URL, &buf, int64(len(data)), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
}

func TestTransferUnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		w.Write([]byte("streamed"))
	}))
	defer srv.Close()

	var totals []int64
	var buf bytes.Buffer
	_, err := Transfer(context.Background(), srv.Client(), srv.URL, &buf, 0, func(_, total int64) {
		totals = append(totals, total)
	})
	require.NoError(t, err)
	assert.Equal(t, "streamed", buf.String())
	assert.Equal(t, []int64{-1}, totals)
}

func TestTransferPanickingCallback(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 2*ChunkSize)
	srv := serveBytes(t, data, true)

	var buf bytes.Buffer
	n, err := Transfer(context.Background(), srv.Client(), srv.URL, &buf, 0, func(int64, int64) {
		panic("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
}

func TestTransferHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := Transfer(context.Background(), srv.Client(), srv.URL, &bytes.Buffer{}, 0, nil)
	require.Error(t, err)
	assert.Equal(t, failure.HTTPError, failure.KindOf(err))
	assert.Equal(t, http.StatusGone, failure.StatusCodeOf(err))
}

func TestTransferCanceled(t *testing.T) {
	srv := serveBytes(t, []byte("data"), true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Transfer(ctx, srv.Client(), srv.URL, &bytes.Buffer{}, 0, nil)
	assert.Error(t, err)
}

func TestDownloadToTemp(t *testing.T) {
	srv := serveBytes(t, []byte("hello"), true)
	dir := t.TempDir()

	path, cleanup, err := DownloadToTemp(context.Background(), srv.Client(), srv.URL, dir, "clip.mp4", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", filepath.Base(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadToTempRemovesOnFailure(t *testing.T) {
	srv := serveBytes(t, bytes.Repeat([]byte("a"), 4*ChunkSize), true)
	dir := t.TempDir()

	_, cleanup, err := DownloadToTemp(context.Background(), srv.Client(), srv.URL, dir, "big.bin", ChunkSize, nil)
	require.Error(t, err)
	assert.Nil(t, cleanup)
	assert.Equal(t, failure.SizeLimitExceeded, failure.KindOf(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
