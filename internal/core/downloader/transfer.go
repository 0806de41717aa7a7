package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/guiyumin/vresolve/internal/core/failure"
)

// ChunkSize is the read size of a transfer
const ChunkSize = 64 * 1024

// ProgressFunc receives the bytes written so far and the expected total, or
// -1 when the server did not send a Content-Length
type ProgressFunc func(written, total int64)

// Transfer streams rawURL into dst. When maxBytes is positive it stops with
// a SizeLimitExceeded error before writing the chunk that would take the
// total past maxBytes. A panicking progress callback is logged and ignored.
// It returns the number of bytes written.
func Transfer(ctx context.Context, client *http.Client, rawURL string, dst io.Writer, maxBytes int64, progress ProgressFunc) (int64, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, failure.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, failure.Wrap(err, "download request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, failure.HTTPStatus(resp.StatusCode, rawURL, nil)
	}

	total := resp.ContentLength
	if total < 0 {
		total = -1
	}

	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, readErr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if maxBytes > 0 && written+int64(n) > maxBytes {
				slog.Warn("transfer exceeds limit", "component", "downloader",
					"written", written, "limit", maxBytes)
				return written, failure.New(failure.SizeLimitExceeded,
					"file exceeds the %s limit", humanize.IBytes(uint64(maxBytes)))
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write file: %w", err)
			}
			written += int64(n)
			report(progress, written, total)
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return written, failure.Wrap(readErr, "download failed")
		}
	}

	return written, nil
}

func report(progress ProgressFunc, written, total int64) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("progress callback panicked", "component", "downloader", "panic", r)
		}
	}()
	progress(written, total)
}

// DownloadToTemp stages rawURL in a new file named name inside a fresh
// temporary directory under dir (os.TempDir when empty). The file is removed
// on every failure path. On success the caller must call cleanup once done
// with the file.
func DownloadToTemp(ctx context.Context, client *http.Client, rawURL, dir, name string, maxBytes int64, progress ProgressFunc) (path string, cleanup func(), err error) {
	tmpDir, err := os.MkdirTemp(dir, "vresolve-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup = func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			slog.Warn("temp cleanup failed", "component", "downloader", "dir", tmpDir, "error", err)
		}
	}

	if name == "" {
		name = "download"
	}
	path = filepath.Join(tmpDir, filepath.Base(name))

	f, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to create output file: %w", err)
	}

	_, err = Transfer(ctx, client, rawURL, f, maxBytes, progress)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err != nil {
		cleanup()
		return "", nil, err
	}

	return path, cleanup, nil
}
