// Package ytdlp wraps the yt-dlp command line tool, used as the general
// purpose media-metadata extractor behind the last tier of several chains.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ExecFunc runs name with args and returns its captured output
type ExecFunc func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)

// ExecError describes a failed yt-dlp invocation
type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		return fmt.Sprintf("ytdlp: command failed (exit %d): %s", e.ExitCode, cmdline)
	}
	return fmt.Sprintf("ytdlp: command failed: %s", cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// Client runs yt-dlp in metadata-only mode
type Client struct {
	// Path to the yt-dlp executable. Defaults to "yt-dlp" (PATH lookup).
	Path string

	// SocketTimeout is passed as --socket-timeout when positive
	SocketTimeout time.Duration

	// Retries is passed as --retries when positive
	Retries int

	// ExtraArgs are always appended before per-call args
	ExtraArgs []string

	// Exec replaces process execution, mainly for tests
	Exec ExecFunc
}

// New creates a Client using yt-dlp from PATH
func New(path string) *Client {
	return &Client{Path: path, SocketTimeout: 30 * time.Second, Retries: 2}
}

// PathOrDefault returns the configured path or "yt-dlp" if unset
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "yt-dlp"
	}
	return c.Path
}

// Available reports whether the executable can be found
func (c *Client) Available() bool {
	if c.Exec != nil {
		return true
	}
	_, err := exec.LookPath(c.PathOrDefault())
	return err == nil
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, []byte, error) {
	name := c.PathOrDefault()

	fullArgs := make([]string, 0, len(c.ExtraArgs)+len(args)+6)
	fullArgs = append(fullArgs, "--quiet", "--no-warnings")
	if c.SocketTimeout > 0 {
		fullArgs = append(fullArgs, "--socket-timeout", fmt.Sprintf("%d", int(c.SocketTimeout.Seconds())))
	}
	if c.Retries > 0 {
		fullArgs = append(fullArgs, "--retries", fmt.Sprintf("%d", c.Retries))
	}
	fullArgs = append(fullArgs, c.ExtraArgs...)
	fullArgs = append(fullArgs, args...)

	if c.Exec != nil {
		return c.Exec(ctx, name, fullArgs...)
	}

	slog.Debug("ytdlp: executing command", "cmd", name, "args", fullArgs)
	cmd := exec.CommandContext(ctx, name, fullArgs...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Format is one entry of yt-dlp's "formats" list
type Format struct {
	FormatID       string  `json:"format_id"`
	URL            string  `json:"url"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	Width          int     `json:"width"`
	FormatNote     string  `json:"format_note"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
}

// Info models the common fields of yt-dlp's JSON output. The full document is
// preserved in Raw.
type Info struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	AltTitle       string         `json:"alt_title"`
	Description    string         `json:"description"`
	WebpageURL     string         `json:"webpage_url"`
	Extractor      string         `json:"extractor"`
	Uploader       string         `json:"uploader"`
	Thumbnail      string         `json:"thumbnail"`
	URL            string         `json:"url"`
	Ext            string         `json:"ext"`
	Filesize       int64          `json:"filesize"`
	FilesizeApprox int64          `json:"filesize_approx"`
	Formats        []Format       `json:"formats"`
	Entries        []*Info        `json:"entries,omitempty"`
	Raw            map[string]any `json:"-"`
}

// Size returns the exact or approximate file size, 0 if unknown
func (i *Info) Size() int64 {
	if i.Filesize > 0 {
		return i.Filesize
	}
	return i.FilesizeApprox
}

// Caption returns description, title or alt title, whichever is set first
func (i *Info) Caption() string {
	for _, s := range []string{i.Description, i.Title, i.AltTitle} {
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// MediaURLs lists the direct URLs of a post: one per playlist entry, or the
// top-level URL for a single item.
func (i *Info) MediaURLs() []string {
	var urls []string
	if len(i.Entries) > 0 {
		for _, e := range i.Entries {
			if e != nil && e.URL != "" {
				urls = append(urls, e.URL)
			}
		}
		return urls
	}
	if i.URL != "" {
		urls = append(urls, i.URL)
	}
	return urls
}

// GetInfo runs yt-dlp in metadata-only mode and parses its JSON output.
// It uses: --dump-single-json --skip-download
func (c *Client) GetInfo(ctx context.Context, url string, extraArgs ...string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"--dump-single-json", "--skip-download"}
	args = append(args, extraArgs...)
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ytdlp: %w", ctxErr)
		}
		return nil, wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}

	raw := bytes.TrimSpace(stdout)
	info := &Info{}
	if err := json.Unmarshal(raw, info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse json: %w", err)
	}
	if err := json.Unmarshal(raw, &info.Raw); err != nil {
		return nil, fmt.Errorf("ytdlp: parse json: %w", err)
	}

	return info, nil
}

func wrapExecError(cmd string, args []string, stdout []byte, stderr []byte, cause error) error {
	exitCode := 0
	var ee *exec.ExitError
	if errors.As(cause, &ee) {
		exitCode = ee.ExitCode()
	}

	return &ExecError{
		Cmd:      cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   strings.TrimSpace(string(stdout)),
		Stderr:   strings.TrimSpace(string(stderr)),
		Cause:    cause,
	}
}
