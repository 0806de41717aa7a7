package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"codeberg.org/gruf/go-ffmpreg/ffmpreg"
	"codeberg.org/gruf/go-ffmpreg/wasm"
	"github.com/tetratelabs/wazero"
)

// Muxer merges a video-only stream with an audio stream
type Muxer struct {
	// FFmpegPath is the ffmpeg executable. Defaults to "ffmpeg" on PATH.
	FFmpegPath string

	// run replaces the external process, for tests
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
	// embedded replaces the WASM build, for tests
	embedded func(ctx context.Context, dirs []string, args []string) (int, error)
}

func (m *Muxer) path() string {
	if strings.TrimSpace(m.FFmpegPath) == "" {
		return "ffmpeg"
	}
	return m.FFmpegPath
}

// FFmpegAvailable checks if the ffmpeg executable can be found
func (m *Muxer) FFmpegAvailable() bool {
	if m.run != nil {
		return true
	}
	_, err := exec.LookPath(m.path())
	return err == nil
}

func muxArgs(videoPath, audioPath, outputPath string) []string {
	// -map 0:v -map 1:a: take video from first input, audio from second
	return []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c", "copy",
		"-f", "mp4",
		"-y",
		outputPath,
	}
}

// Mux merges videoPath and audioPath into outputPath with stream copy. It
// uses the ffmpeg executable when present and the embedded WASM ffmpeg
// otherwise.
func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	videoInfo, err := os.Stat(videoPath)
	if err != nil {
		return fmt.Errorf("video file not found: %w", err)
	}
	audioInfo, err := os.Stat(audioPath)
	if err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}

	log := slog.With("component", "ffmpeg")
	log.Info("muxing", "video", videoPath, "video_bytes", videoInfo.Size(),
		"audio", audioPath, "audio_bytes", audioInfo.Size(), "output", outputPath)

	if m.FFmpegAvailable() {
		err = m.muxExec(ctx, videoPath, audioPath, outputPath)
	} else {
		log.Info("ffmpeg not found, using embedded build")
		err = m.muxEmbedded(ctx, videoPath, audioPath, outputPath)
	}
	if err != nil {
		return err
	}

	outputInfo, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if inputTotal := videoInfo.Size() + audioInfo.Size(); outputInfo.Size() < inputTotal/10 {
		log.Warn("output file is suspiciously small", "output_bytes", outputInfo.Size(), "input_bytes", inputTotal)
	}
	return nil
}

func (m *Muxer) muxExec(ctx context.Context, videoPath, audioPath, outputPath string) error {
	// -threads 1: single thread for stability in containers
	args := append([]string{"-threads", "1"}, muxArgs(videoPath, audioPath, outputPath)...)

	run := m.run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		}
	}

	output, err := run(ctx, m.path(), args...)
	if err != nil {
		slog.Error("ffmpeg merge failed", "component", "ffmpeg", "error", err, "output", string(output))
		return fmt.Errorf("ffmpeg merge failed: %w", err)
	}
	return nil
}

func (m *Muxer) muxEmbedded(ctx context.Context, videoPath, audioPath, outputPath string) error {
	var dirs []string
	abs := make([]string, 3)
	for i, p := range []string{videoPath, audioPath, outputPath} {
		a, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		abs[i] = a
		if d := filepath.Dir(a); !contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}

	embedded := m.embedded
	if embedded == nil {
		embedded = runEmbedded
	}
	rc, err := embedded(ctx, dirs, muxArgs(abs[0], abs[1], abs[2]))
	if err != nil {
		return fmt.Errorf("embedded ffmpeg failed: %w", err)
	}
	if rc != 0 {
		return fmt.Errorf("embedded ffmpeg exited with code %d", rc)
	}
	return nil
}

func runEmbedded(ctx context.Context, dirs []string, args []string) (int, error) {
	var stderr bytes.Buffer
	rc, err := ffmpreg.Ffmpeg(ctx, wasm.Args{
		Stderr: &stderr,
		Stdout: io.Discard,
		Args:   args,
		Config: func(cfg wazero.ModuleConfig) wazero.ModuleConfig {
			fs := wazero.NewFSConfig()
			for _, d := range dirs {
				fs = fs.WithDirMount(d, d)
			}
			return cfg.WithFSConfig(fs)
		},
	})
	if rc != 0 && stderr.Len() > 0 {
		slog.Error("embedded ffmpeg output", "component", "ffmpeg", "stderr", stderr.String())
	}
	return int(rc), err
}
