package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/mattn/go-runewidth"
)

const (
	labelWidth   = 28
	captionWidth = 72
	urlWidth     = 96
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	red    = color.New(color.FgRed)
)

// cell truncates s to width display columns and pads it on the right
func cell(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

func clip(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

// printResult writes a human-readable rendering of res
func printResult(w io.Writer, res extractor.Result, maxBytes int64) {
	switch v := res.(type) {
	case *extractor.SingleItem:
		bold.Fprintln(w, "Single item")
		fmt.Fprintf(w, "  %s %s\n", cell("File:", 8), v.FileName)
		fmt.Fprintf(w, "  %s %s\n", cell("Type:", 8), mediaKind(v.IsImage, v.IsVideo))
		if size := sizeText(v.Entry); size != "" {
			fmt.Fprintf(w, "  %s %s\n", cell("Size:", 8), size)
		}
		fmt.Fprintf(w, "  %s %s\n", cell("URL:", 8), cyan.Sprint(clip(v.Entry.URL, urlWidth)))
		printCaption(w, v.Caption)

	case *extractor.Album:
		bold.Fprintf(w, "Album (%d items)\n", v.Count)
		for i, item := range v.Items {
			fmt.Fprintf(w, "  [%d] %s %s %s\n", i, cell(item.FileName, labelWidth),
				cell(mediaKind(item.IsImage, item.IsVideo), 6), cyan.Sprint(clip(item.URL, urlWidth)))
		}
		printCaption(w, v.Caption)

	case *extractor.QualityChoice:
		title := v.Title
		if title == "" {
			title = v.FileName
		}
		bold.Fprintf(w, "%s\n", clip(title, captionWidth))
		fmt.Fprintf(w, "  Session %d, %d qualities\n", v.SessionID, len(v.Entries))
		for i, e := range v.Entries {
			marker := " "
			if i == v.BestIndex {
				marker = green.Sprint("*")
			}
			line := fmt.Sprintf("  %s [%d] %s %s", marker, i, cell(e.QualityLabel(), labelWidth), cell(string(e.StreamType), 16))
			if e.Size == nil || (maxBytes > 0 && *e.Size > maxBytes) {
				line += " " + yellow.Sprint("link only")
			}
			fmt.Fprintln(w, line)
		}
		printCaption(w, v.Caption)

	case *extractor.Failure:
		red.Fprintf(w, "✗ %s: %s\n", v.Reason, v.Message)
	}
}

func printCaption(w io.Writer, caption string) {
	if caption == "" {
		return
	}
	first, _, _ := strings.Cut(caption, "\n")
	fmt.Fprintf(w, "  %s\n", clip(first, captionWidth))
}

func mediaKind(isImage, isVideo bool) string {
	switch {
	case isVideo:
		return "video"
	case isImage:
		return "image"
	}
	return "file"
}

func sizeText(e extractor.Entry) string {
	if e.Size != nil {
		return extractor.FormatSize(*e.Size)
	}
	return e.SizeText
}
