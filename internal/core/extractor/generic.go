package extractor

import (
	"context"
	"net/url"
	"strings"

	"github.com/guiyumin/vresolve/internal/core/caption"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/fetch"
)

// captionKeys are the plain fields a backend response may carry a caption in
var captionKeys = []string{"caption", "title", "description", "text", "post_caption", "video_title"}

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}
	videoExtensions = []string{".mp4", ".mov", ".webm"}
	// structural records are matched more loosely
	looseVideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".flv", ".m4v"}
)

// GenericExtractor sends any other URL to a catch-all backend and searches
// the response for a downloadable record
type GenericExtractor struct {
	deps Deps
}

// NewGeneric creates the catch-all chain
func NewGeneric(d Deps) *GenericExtractor {
	return &GenericExtractor{deps: d}
}

func (g *GenericExtractor) Name() string { return "generic" }

func (g *GenericExtractor) Extract(ctx context.Context, rawURL string) Result {
	tiers := []Tier[*SingleItem]{{
		Name:     "catch_all",
		Attempts: 1,
		Run:      func(ctx context.Context) (*SingleItem, error) { return g.fetch(ctx, rawURL) },
	}}
	item, err := runTiers(ctx, g.Name(), tiers)
	if err != nil {
		return FailureFrom(err)
	}
	return item
}

func (g *GenericExtractor) fetch(ctx context.Context, rawURL string) (*SingleItem, error) {
	v, err := g.deps.Fetch.GetJSON(ctx, g.deps.Endpoints.Generic, url.Values{"url": {rawURL}}, g.deps.Options.CallTimeout)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, failure.New(failure.NoEntriesFound, "generic: empty response from backend")
	}
	if msg, ok := fetch.ErrorMessage(v); ok {
		return nil, failure.New(failure.UnexpectedFailure, "generic: %s", msg).WithRaw(v)
	}

	data, _ := v.(map[string]any)
	records := usableRecords(FindDownloadEntries(v))
	if len(records) == 0 {
		if dl := stringField(data, "download_link"); dl != "" {
			records = append(records, map[string]any{
				"url":        dl,
				"file_name":  data["file_name"],
				"size_bytes": data["size_bytes"],
			})
		}
	}

	rec := ChooseEntry(records)
	entry, ok := NormalizeRecord(rec)
	if !ok {
		return nil, failure.New(failure.NoEntriesFound, "generic: no downloadable entry found in response").WithRaw(v)
	}

	capText := caption.FromFields(data, captionKeys...)
	if capText == "" {
		capText = caption.FromFields(mapField(data, "result"), captionKeys...)
	}
	if capText == "" {
		capText = caption.FromFields(rec, captionKeys...)
	}

	name := stringField(rec, "file_name", "fileName", "filename")
	if name == "" {
		name = fileNameFromURL(entry.URL, "file")
	}
	isImage, isVideo := mediaFlags(entry.URL, name, true)

	return &SingleItem{
		Entry:    entry,
		Caption:  caption.Clean(capText),
		FileName: name,
		IsImage:  isImage,
		IsVideo:  isVideo,
	}, nil
}

// mediaFlags guesses whether u (or its file name) is an image or a video.
// In loose mode extensions may appear anywhere in the URL and anything that
// is not a video counts as an image.
func mediaFlags(u, name string, loose bool) (isImage, isVideo bool) {
	lowerURL := strings.ToLower(u)
	lowerName := strings.ToLower(name)
	if !loose {
		base := StripQuery(lowerURL)
		return hasAnySuffix(base, imageExtensions), hasAnySuffix(base, videoExtensions)
	}

	for _, ext := range looseVideoExtensions {
		if strings.Contains(lowerURL, ext) || strings.HasSuffix(lowerName, ext) {
			isVideo = true
			break
		}
	}
	if !isVideo {
		return true, false
	}
	for _, ext := range imageExtensions {
		if strings.Contains(lowerURL, ext) || strings.HasSuffix(lowerName, ext) {
			isImage = true
			break
		}
	}
	return isImage, isVideo
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
