package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
)

// DefaultUserAgent is the default User-Agent header used for downloads
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Downloader saves resolved entries to disk within the upload limit
type Downloader struct {
	Client   *http.Client
	MaxBytes int64
	Muxer    *Muxer
	// TempDir holds staged files (default: os.TempDir)
	TempDir string
}

// New creates a Downloader
func New(client *http.Client, maxBytes int64, ffmpegPath string) *Downloader {
	return &Downloader{
		Client:   client,
		MaxBytes: maxBytes,
		Muxer:    &Muxer{FFmpegPath: ffmpegPath},
	}
}

// Save downloads entry into dir as name. When audio is set the entry is a
// video-only stream: both are staged and muxed. The extension is corrected
// from the file's magic bytes. Returns the final path.
func (d *Downloader) Save(ctx context.Context, entry extractor.Entry, audio *extractor.Entry, dir, name string, progress ProgressFunc) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if name == "" {
		name = "download." + entry.Extension
	}
	out := uniquePath(filepath.Join(dir, filepath.Base(name)))

	log := slog.With("component", "downloader", "output", out)
	start := time.Now()

	videoPath, cleanupVideo, err := DownloadToTemp(ctx, d.Client, entry.URL, d.TempDir, "video."+orDefault(entry.Extension, "mp4"), d.MaxBytes, progress)
	if err != nil {
		return "", err
	}
	defer cleanupVideo()

	if audio != nil {
		// audio gets what the video left of the limit
		budget := d.MaxBytes
		if budget > 0 {
			budget -= fileSize(videoPath)
			if budget <= 0 {
				return "", d.overLimit()
			}
		}
		audioPath, cleanupAudio, err := DownloadToTemp(ctx, d.Client, audio.URL, d.TempDir, "audio."+orDefault(audio.Extension, "m4a"), budget, nil)
		switch {
		case failure.KindOf(err) == failure.SizeLimitExceeded:
			return "", d.overLimit()
		case err != nil:
			log.Warn("audio download failed, keeping video only", "error", err)
		default:
			defer cleanupAudio()
			muxed := filepath.Join(filepath.Dir(videoPath), "muxed.mp4")
			if err := d.muxer().Mux(ctx, videoPath, audioPath, muxed); err != nil {
				log.Warn("mux failed, keeping video only", "error", err)
			} else {
				videoPath = muxed
			}
		}
		if d.MaxBytes > 0 && fileSize(videoPath) > d.MaxBytes {
			return "", d.overLimit()
		}
	}

	if err := moveFile(videoPath, out); err != nil {
		return "", err
	}
	out = RenameByMagicBytes(out)

	if info, err := os.Stat(out); err == nil {
		log.Info("saved", "bytes", humanize.IBytes(uint64(info.Size())), "elapsed", formatDuration(time.Since(start)))
	}
	return out, nil
}

func (d *Downloader) overLimit() error {
	return failure.New(failure.SizeLimitExceeded, "video and audio exceed the %s limit", humanize.IBytes(uint64(d.MaxBytes)))
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (d *Downloader) muxer() *Muxer {
	if d.Muxer == nil {
		return &Muxer{}
	}
	return d.Muxer
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// uniquePath appends " (n)" before the extension until path is free
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// moveFile renames src to dst, copying across filesystems
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return out.Close()
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "??:??"
	}
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m > 60 {
		h := m / 60
		m = m % 60
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
