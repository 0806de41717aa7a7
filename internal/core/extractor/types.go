package extractor

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/guiyumin/vresolve/internal/core/failure"
)

// StreamType describes which tracks a stream carries
type StreamType string

const (
	StreamVideoWithAudio StreamType = "video_with_audio"
	StreamVideoOnly      StreamType = "video_only"
	StreamAudio          StreamType = "audio"
	StreamUnknown        StreamType = "unknown"
)

// Extractor resolves URLs of one platform into a Result
type Extractor interface {
	// Name returns the extractor name (e.g., "youtube", "generic")
	Name() string

	// Extract resolves the URL. It never panics and never returns nil;
	// failures are reported as *Failure.
	Extract(ctx context.Context, url string) Result
}

// Entry is one downloadable stream, normalized from whatever shape the
// backend returned. URL is never empty.
type Entry struct {
	URL        string     `json:"url"`
	Extension  string     `json:"extension"`
	Resolution string     `json:"resolution,omitempty"`
	Height     int        `json:"height"`
	Size       *int64     `json:"size_bytes,omitempty"`
	SizeText   string     `json:"size_text,omitempty"` // backend-formatted size that could not be parsed
	StreamType StreamType `json:"type"`
	HasAudio   bool       `json:"has_audio"`
	Label      string     `json:"label,omitempty"`

	// Raw is the original backend record, kept for diagnostics and
	// re-extraction
	Raw map[string]any `json:"-"`
}

// SizeBytes returns the size in bytes, or 0 if unknown
func (e Entry) SizeBytes() int64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}

// QualityLabel returns a human-readable quality label
func (e Entry) QualityLabel() string {
	if e.Label != "" {
		return e.Label
	}
	if e.Resolution != "" {
		return e.Resolution
	}
	if e.Extension != "" {
		return e.Extension
	}
	return "unknown"
}

// AlbumEntry is one item of a multi-item post
type AlbumEntry struct {
	Entry
	FileName string `json:"file_name"`
	IsImage  bool   `json:"is_image"`
	IsVideo  bool   `json:"is_video"`
}

// Key is the item identity: the URL without its query string
func (a AlbumEntry) Key() string {
	return StripQuery(a.URL)
}

// ResultKind names the Result variants
type ResultKind string

const (
	KindSingle        ResultKind = "single"
	KindAlbum         ResultKind = "album"
	KindQualityChoice ResultKind = "quality_choice"
	KindFailure       ResultKind = "failure"
)

// Result is the outcome of one resolution: exactly one of *SingleItem,
// *Album, *QualityChoice or *Failure.
type Result interface {
	Kind() ResultKind
}

// SingleItem is a single media file
type SingleItem struct {
	Entry    Entry  `json:"entry"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"file_name"`
	IsImage  bool   `json:"is_image"`
	IsVideo  bool   `json:"is_video"`
}

func (*SingleItem) Kind() ResultKind { return KindSingle }

// Album is a post with more than one distinct media item
type Album struct {
	Items   []AlbumEntry `json:"items"`
	Caption string       `json:"caption,omitempty"`
	Count   int          `json:"count"`
}

func (*Album) Kind() ResultKind { return KindAlbum }

// QualityChoice offers ranked quality variants of one video. Entries[BestIndex]
// is the recommended one. SessionID is assigned when the result is stored.
type QualityChoice struct {
	Entries   []Entry `json:"entries"`
	BestIndex int     `json:"best_index"`
	Caption   string  `json:"caption,omitempty"`
	Title     string  `json:"title,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	FileName  string  `json:"file_name"`
	SessionID int64   `json:"session_id,omitempty"`
}

func (*QualityChoice) Kind() ResultKind { return KindQualityChoice }

// Best returns the recommended entry
func (q *QualityChoice) Best() Entry {
	return q.Entries[q.BestIndex]
}

// Failure reports why a URL could not be resolved
type Failure struct {
	Reason     failure.Kind `json:"kind"`
	StatusCode int          `json:"status_code,omitempty"`
	Message    string       `json:"message"`
	Raw        any          `json:"-"`
}

func (*Failure) Kind() ResultKind { return KindFailure }

func (f *Failure) Error() string { return f.Message }

// FailureKind lets failure.KindOf classify a Failure used as an error
func (f *Failure) FailureKind() failure.Kind { return f.Reason }

// FailureFrom converts any error into a Failure result
func FailureFrom(err error) *Failure {
	if err == nil {
		return &Failure{Reason: failure.UnexpectedFailure, Message: "unknown failure"}
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		return &Failure{Reason: fe.Kind, StatusCode: fe.StatusCode, Message: fe.Error(), Raw: fe.Raw}
	}
	return &Failure{Reason: failure.KindOf(err), Message: err.Error()}
}

// Caption returns the caption of any non-failure result
func Caption(r Result) string {
	switch v := r.(type) {
	case *SingleItem:
		return v.Caption
	case *Album:
		return v.Caption
	case *QualityChoice:
		return v.Caption
	}
	return ""
}

var (
	urlRegex   = regexp.MustCompile(`https?://[^\s]+`)
	spaceRegex = regexp.MustCompile(`\s+`)
)

var windowsReserved = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
		"\n", " ",
		"\r", "",
		"\t", " ",
		// full-width variants
		"／", "-",
		"＼", "-",
		"：", "-",
		"＊", "",
		"？", "",
		"＂", "",
		"＜", "",
		"＞", "",
		"｜", "",
		// CJK brackets
		"【", "",
		"】", "",
		"「", "",
		"」", "",
	)
	result := urlRegex.ReplaceAllString(name, "")
	result = replacer.Replace(result)
	result = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, result)

	result = strings.TrimSpace(result)
	result = strings.TrimRight(result, ". ")
	result = spaceRegex.ReplaceAllString(result, " ")

	if windowsReserved[strings.ToUpper(result)] {
		result = "_" + result
	}

	// 80 runes keeps room for a quality suffix and extension
	const maxRunes = 80
	runes := []rune(result)
	if len(runes) > maxRunes {
		result = string(runes[:maxRunes])
	}

	return strings.TrimSpace(result)
}

// fileName builds "<title>_<suffix>.<ext>" with spaces turned into
// underscores, falling back to def when the title is empty
func fileName(title, suffix, ext, def string) string {
	base := strings.ReplaceAll(SanitizeFilename(title), " ", "_")
	if base == "" {
		base = def
	}
	if suffix != "" {
		base += "_" + suffix
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// EntryFileName names a download of e from a post titled title:
// "<title>_<resolution>.<ext>", with "video" and "mp4" standing in for a
// missing resolution or extension.
func EntryFileName(title string, e Entry) string {
	suffix := e.Resolution
	if suffix == "" {
		suffix = "video"
	}
	if e.StreamType == StreamAudio {
		suffix = "audio"
	}
	ext := e.Extension
	if ext == "" {
		ext = "mp4"
	}
	return fileName(title, suffix, ext, "video")
}

// fileNameFromURL returns the last path element of u without its query
func fileNameFromURL(u, def string) string {
	name := path.Base(StripQuery(u))
	if name == "" || name == "." || name == "/" {
		return def
	}
	return name
}
