package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/guiyumin/vresolve/internal/core/downloader"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/resolver"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	fetchIndex  int
	fetchAudio  bool
	fetchOutput string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Resolve a URL and save its media",
	Long: `Resolve a URL and save the media it points to.

For quality lists the recommended entry is saved unless --index picks
another one. Video-only streams are muxed with the best audio stream.

Examples:
  vresolve fetch https://www.tiktok.com/@user/video/123
  vresolve fetch --index 1 https://youtu.be/dQw4w9WgXcQ
  vresolve fetch --audio -o ~/Music https://youtu.be/dQw4w9WgXcQ`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if fetchOutput != "" {
			cfg.OutputDir = fetchOutput
		}
		svc, err := resolver.New(cfg)
		if err != nil {
			return err
		}

		rawURL := extractor.ExtractURL(args[0])
		if rawURL == "" {
			return fmt.Errorf("no http(s) URL found in %q", args[0])
		}
		res := svc.Resolve(cmd.Context(), rawURL)

		transfers, err := plan(cmd.Context(), svc, res, fetchIndex, fetchAudio)
		if err != nil {
			printResult(cmd.ErrOrStderr(), res, svc.MaxBytes())
			return err
		}

		dl := downloader.New(svc.HTTPClient(), svc.MaxBytes(), cfg.FFmpegPath)
		tty := term.IsTerminal(int(os.Stdout.Fd()))
		for _, t := range transfers {
			path, err := runTransfer(cmd.Context(), cmd.ErrOrStderr(), dl, t, cfg.OutputDir, tty)
			if err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", path)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVarP(&fetchIndex, "index", "i", -1, "quality index to save (default: recommended)")
	fetchCmd.Flags().BoolVar(&fetchAudio, "audio", false, "save the audio-only stream")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "output directory")
	rootCmd.AddCommand(fetchCmd)
}

// transfer is one file to save
type transfer struct {
	entry extractor.Entry
	audio *extractor.Entry
	name  string
	label string
}

// plan turns a resolution result into the files to save. index < 0 picks
// the recommended quality.
func plan(ctx context.Context, svc *resolver.Service, res extractor.Result, index int, audio bool) ([]transfer, error) {
	switch v := res.(type) {
	case *extractor.Failure:
		return nil, v

	case *extractor.SingleItem:
		return []transfer{{entry: v.Entry, name: v.FileName, label: v.FileName}}, nil

	case *extractor.Album:
		out := make([]transfer, 0, len(v.Items))
		for i, item := range v.Items {
			out = append(out, transfer{
				entry: item.Entry,
				name:  item.FileName,
				label: fmt.Sprintf("%s (%d/%d)", item.FileName, i+1, len(v.Items)),
			})
		}
		return out, nil

	case *extractor.QualityChoice:
		var (
			sel *resolver.Selection
			err error
		)
		if audio {
			sel, err = svc.ExtractAudio(ctx, v.SessionID)
		} else {
			if index < 0 {
				index = v.BestIndex
			}
			sel, err = svc.Select(ctx, v.SessionID, index)
		}
		if err != nil {
			return nil, err
		}
		if sel.SendAsLink && sel.Entry.Size != nil {
			return nil, failure.New(failure.SizeLimitExceeded,
				"%s is over the upload limit, use the direct link: %s", extractor.FormatSize(*sel.Entry.Size), sel.Entry.URL)
		}
		return []transfer{{
			entry: sel.Entry,
			audio: sel.Audio,
			name:  sel.FileName,
			label: sel.FileName + " " + sel.Entry.QualityLabel(),
		}}, nil
	}
	return nil, fmt.Errorf("unexpected result %T", res)
}

func runTransfer(ctx context.Context, w io.Writer, dl *downloader.Downloader, t transfer, dir string, tty bool) (string, error) {
	save := func(ctx context.Context, progress downloader.ProgressFunc) (string, error) {
		return dl.Save(ctx, t.entry, t.audio, dir, t.name, progress)
	}
	if tty {
		return downloader.RunTransferTUI(ctx, t.label, save)
	}

	fmt.Fprintf(w, "Downloading %s\n", t.label)
	progress := newLineProgress(w, time.Second)
	path, err := save(ctx, progress.report)
	progress.done()
	return path, err
}

// lineProgress prints throttled progress lines for non-interactive output
type lineProgress struct {
	mu       sync.Mutex
	w        io.Writer
	interval time.Duration
	last     time.Time
	written  int64
	total    int64
}

func newLineProgress(w io.Writer, interval time.Duration) *lineProgress {
	return &lineProgress{w: w, interval: interval, total: -1}
}

func (p *lineProgress) report(written, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written, p.total = written, total
	if time.Since(p.last) < p.interval {
		return
	}
	p.last = time.Now()
	p.print()
}

func (p *lineProgress) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.written > 0 {
		p.print()
	}
}

func (p *lineProgress) print() {
	if p.total > 0 {
		fmt.Fprintf(p.w, "  %s / %s (%.1f%%)\n", humanize.IBytes(uint64(p.written)), humanize.IBytes(uint64(p.total)),
			float64(p.written)/float64(p.total)*100)
		return
	}
	fmt.Fprintf(p.w, "  %s\n", humanize.IBytes(uint64(p.written)))
}
