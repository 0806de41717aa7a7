package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/guiyumin/vresolve/internal/core/caption"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/fetch"
)

var shortcodeRegex = regexp.MustCompile(`/(p|reel|tv)/([A-Za-z0-9_-]+)`)

// InstagramExtractor resolves posts, reels and carousels. The extraction
// tool runs first since it handles carousels best; REST backends follow,
// and single-item posts get a page scrape to recover missing carousel items.
type InstagramExtractor struct {
	deps Deps
	log  *slog.Logger
}

// NewInstagram creates the Instagram chain
func NewInstagram(d Deps) *InstagramExtractor {
	return &InstagramExtractor{deps: d, log: slog.With("component", "extractor", "platform", "instagram")}
}

func (i *InstagramExtractor) Name() string { return "instagram" }

func (i *InstagramExtractor) Extract(ctx context.Context, rawURL string) Result {
	lower := strings.ToLower(rawURL)
	isReel := strings.Contains(lower, "/reel/")
	isPost := strings.Contains(lower, "/p/")

	toolCaption, toolMedia := i.tool(ctx, rawURL)

	if isReel && len(toolMedia) > 0 {
		u := toolMedia[0]
		return &SingleItem{
			Entry:    Entry{URL: u, Extension: extensionFromURL(u), StreamType: StreamVideoWithAudio, HasAudio: true},
			Caption:  caption.Clean(toolCaption),
			FileName: fileNameFromURL(u, "instagram_reel.mp4"),
			IsVideo:  true,
		}
	}
	if !isReel && len(toolMedia) > 1 {
		i.log.Info("extraction tool found carousel", "items", len(toolMedia))
		return collapse(urlItems(toolMedia), caption.Clean(toolCaption))
	}

	data, err := i.backends(ctx, rawURL)
	if err != nil {
		if len(toolMedia) > 0 {
			i.log.Info("backends failed, using extraction tool items", "items", len(toolMedia))
			return collapse(urlItems(toolMedia), caption.Clean(toolCaption))
		}
		return FailureFrom(err)
	}

	capText := caption.Clean(toolCaption)
	if capText == "" {
		capText = caption.Clean(i.shortcodeCaption(ctx, rawURL))
	}
	if capText == "" {
		capText = caption.Extract(data)
	}

	items := dedupeAlbum(i.items(data))

	if len(items) <= 1 && isPost {
		scrapedCaption, scraped := i.scrape(ctx, rawURL)
		if len(scraped) > 1 {
			i.log.Info("page scrape recovered carousel", "items", len(scraped))
			items = urlItems(scraped)
			if capText == "" {
				capText = caption.Clean(scrapedCaption)
			}
		}
	}

	if len(items) == 0 {
		return &Failure{Reason: failure.NoEntriesFound, Message: "instagram: no media found in response", Raw: data}
	}
	// a reel is always one item
	if isReel {
		items = items[:1]
	}
	return collapse(items, capText)
}

// tool returns the extraction tool's caption and media URLs; failures are
// logged and yield nothing
func (i *InstagramExtractor) tool(ctx context.Context, rawURL string) (string, []string) {
	if i.deps.Tool == nil {
		return "", nil
	}
	info, err := i.deps.Tool.GetInfo(ctx, StripQuery(rawURL))
	if err != nil {
		i.log.Warn("extraction tool failed", "error", err)
		return "", nil
	}
	return info.Caption(), info.MediaURLs()
}

// backends returns the first REST response holding URL records or explicit
// images/videos arrays
func (i *InstagramExtractor) backends(ctx context.Context, rawURL string) (map[string]any, error) {
	var tiers []Tier[map[string]any]
	for n, endpoint := range i.deps.Endpoints.Instagram {
		tiers = append(tiers, Tier[map[string]any]{
			Name:     fmt.Sprintf("backend_%d", n+1),
			Attempts: 1,
			Run: func(ctx context.Context) (map[string]any, error) {
				v, err := i.deps.Fetch.GetJSON(ctx, endpoint, url.Values{"url": {rawURL}}, i.deps.Options.CallTimeout)
				if err != nil {
					return nil, err
				}
				if msg, ok := fetch.ErrorMessage(v); ok {
					return nil, failure.New(failure.UnexpectedFailure, "instagram: %s", msg).WithRaw(v)
				}
				data, ok := v.(map[string]any)
				if !ok {
					data = map[string]any{"result": v}
				}
				if len(usableRecords(FindDownloadEntries(v))) > 0 || hasMediaArrays(data) {
					return data, nil
				}
				return nil, failure.New(failure.NoEntriesFound, "instagram: response has no media").WithRaw(v)
			},
		})
	}
	return runTiers(ctx, i.Name(), tiers)
}

func hasMediaArrays(data map[string]any) bool {
	return len(listField(data, "images")) > 0 || len(listField(data, "videos")) > 0
}

// shortcodeCaption asks the caption-only backend keyed by the post shortcode
func (i *InstagramExtractor) shortcodeCaption(ctx context.Context, rawURL string) string {
	m := shortcodeRegex.FindStringSubmatch(rawURL)
	if m == nil || i.deps.Endpoints.InstagramCaption == "" {
		return ""
	}
	endpoint := fmt.Sprintf(i.deps.Endpoints.InstagramCaption, m[2])
	v, err := i.deps.Fetch.GetJSON(ctx, endpoint, nil, i.deps.Options.CaptionTimeout)
	if err != nil {
		i.log.Debug("caption backend failed", "shortcode", m[2], "error", err)
		return ""
	}
	data, _ := v.(map[string]any)
	items := listField(data, "items")
	if len(items) == 0 {
		return ""
	}
	first, _ := items[0].(map[string]any)
	return stringField(mapField(first, "caption"), "text")
}

// items merges explicit images/videos arrays, or falls back to every
// URL-bearing record in the response
func (i *InstagramExtractor) items(data map[string]any) []AlbumEntry {
	result := mapField(data, "result")
	images := listField(data, "images")
	if len(images) == 0 {
		images = listField(result, "images")
	}
	videos := listField(data, "videos")
	if len(videos) == 0 {
		videos = listField(result, "videos")
	}

	var items []AlbumEntry
	for n, v := range images {
		if it, ok := explicitItem(v, fmt.Sprintf("instagram_image_%d.jpg", n+1), false); ok {
			items = append(items, it)
		}
	}
	for n, v := range videos {
		if it, ok := explicitItem(v, fmt.Sprintf("instagram_video_%d.mp4", n+1), true); ok {
			items = append(items, it)
		}
	}
	if len(items) > 0 {
		return items
	}

	for _, rec := range FindDownloadEntries(data) {
		e, ok := NormalizeRecord(rec)
		if !ok {
			continue
		}
		name := stringField(rec, "file_name", "fileName", "filename")
		if name == "" {
			name = fileNameFromURL(e.URL, "instagram_media")
		}
		isImage, isVideo := mediaFlags(e.URL, name, true)
		items = append(items, AlbumEntry{Entry: e, FileName: name, IsImage: isImage, IsVideo: isVideo})
	}
	return items
}

func explicitItem(v any, def string, video bool) (AlbumEntry, bool) {
	rec, ok := v.(map[string]any)
	if !ok {
		return AlbumEntry{}, false
	}
	u := stringField(rec, "url")
	if u == "" {
		return AlbumEntry{}, false
	}
	e := Entry{URL: u, Extension: extensionFromURL(u), StreamType: StreamUnknown, Raw: rec}
	if video {
		e.StreamType, e.HasAudio = StreamVideoWithAudio, true
	}
	e.Size, e.SizeText = ParseSize(firstField(rec, "size", "filesize"))
	e.Label = entryLabel(e)
	return AlbumEntry{Entry: e, FileName: fileNameFromURL(u, def), IsImage: !video, IsVideo: video}, true
}

// urlItems turns bare media URLs into album items
func urlItems(urls []string) []AlbumEntry {
	items := make([]AlbumEntry, 0, len(urls))
	for n, u := range urls {
		isImage, isVideo := mediaFlags(u, "", false)
		e := Entry{URL: u, Extension: extensionFromURL(u), StreamType: StreamUnknown}
		if isVideo {
			e.StreamType, e.HasAudio = StreamVideoWithAudio, true
		}
		items = append(items, AlbumEntry{
			Entry:    e,
			FileName: fileNameFromURL(u, fmt.Sprintf("instagram_media_%d.jpg", n+1)),
			IsImage:  isImage,
			IsVideo:  isVideo,
		})
	}
	return dedupeAlbum(items)
}

// collapse returns a SingleItem for one item and an Album otherwise
func collapse(items []AlbumEntry, capText string) Result {
	if len(items) == 1 {
		it := items[0]
		return &SingleItem{
			Entry:    it.Entry,
			Caption:  capText,
			FileName: it.FileName,
			IsImage:  it.IsImage,
			IsVideo:  it.IsVideo,
		}
	}
	return &Album{Items: items, Caption: capText, Count: len(items)}
}
