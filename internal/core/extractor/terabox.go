package extractor

import (
	"context"
	"fmt"
	"net/url"

	"github.com/guiyumin/vresolve/internal/core/caption"
	"github.com/guiyumin/vresolve/internal/core/failure"
)

// TeraboxExtractor resolves Terabox share links. Each REST backend is tried
// with retries, then the extraction tool.
type TeraboxExtractor struct {
	deps Deps
}

// NewTerabox creates the Terabox chain
func NewTerabox(d Deps) *TeraboxExtractor {
	return &TeraboxExtractor{deps: d}
}

func (t *TeraboxExtractor) Name() string { return "terabox" }

func (t *TeraboxExtractor) Extract(ctx context.Context, rawURL string) Result {
	opts := t.deps.Options
	var tiers []Tier[*SingleItem]
	for i, endpoint := range t.deps.Endpoints.Terabox {
		tiers = append(tiers, Tier[*SingleItem]{
			Name:     fmt.Sprintf("backend_%d", i+1),
			Attempts: opts.BackendAttempts,
			Backoff:  opts.RetryDelay,
			Run:      func(ctx context.Context) (*SingleItem, error) { return t.backend(ctx, endpoint, rawURL) },
		})
	}
	if t.deps.Tool != nil {
		tiers = append(tiers, Tier[*SingleItem]{
			Name:     "ytdlp",
			Attempts: opts.ToolAttempts,
			Backoff:  opts.RetryDelay,
			Run:      func(ctx context.Context) (*SingleItem, error) { return t.tool(ctx, rawURL) },
		})
	}

	item, err := runTiers(ctx, t.Name(), tiers)
	if err != nil {
		return &Failure{
			Reason:  failure.AllBackendsExhausted,
			Message: "Terabox: all backends failed. The link may be invalid, expired, or the service temporarily unavailable. Try again shortly.",
			Raw:     err,
		}
	}
	return item
}

func (t *TeraboxExtractor) backend(ctx context.Context, endpoint, rawURL string) (*SingleItem, error) {
	v, err := t.deps.Fetch.GetJSON(ctx, endpoint, url.Values{"url": {rawURL}}, t.deps.Options.CallTimeout)
	if err != nil {
		return nil, err
	}
	data, ok := v.(map[string]any)
	if !ok {
		return nil, failure.New(failure.UnexpectedFailure, "terabox: unexpected response shape").WithRaw(v)
	}
	if data["error"] != nil && data["error"] != false && data["error"] != "" {
		return nil, failure.New(failure.UnexpectedFailure, "terabox: backend error: %v", data["error"]).WithRaw(data)
	}
	if data["status_code"] != nil {
		return nil, failure.New(failure.UnexpectedFailure, "terabox: backend reported status %v", data["status_code"]).WithRaw(data)
	}

	dl := stringField(data, "proxy_url", "download_link", "url", "directUrl")
	if dl == "" {
		return nil, failure.New(failure.NoEntriesFound, "terabox: no direct link in response").WithRaw(data)
	}

	e := Entry{URL: dl, StreamType: StreamUnknown, Raw: data}
	name := stringField(data, "file_name", "filename", "title")
	if name == "" {
		name = fileNameFromURL(dl, "terabox_file")
	}
	e.Extension = extensionFromURL(name)
	if e.Extension == "" {
		e.Extension = extensionFromURL(dl)
	}
	e.Size, e.SizeText = ParseSize(firstField(data, "size_bytes", "size"))
	e.Label = entryLabel(e)

	isImage, isVideo := mediaFlags(dl, name, false)
	return &SingleItem{
		Entry:    e,
		Caption:  caption.Clean(stringField(data, "title", "file_name", "filename")),
		FileName: name,
		IsImage:  isImage,
		IsVideo:  isVideo,
	}, nil
}

func (t *TeraboxExtractor) tool(ctx context.Context, rawURL string) (*SingleItem, error) {
	info, err := t.deps.Tool.GetInfo(ctx, StripQuery(rawURL), "-f", "best")
	if err != nil {
		return nil, failure.Wrap(err, "terabox: extraction tool")
	}
	if info.URL == "" {
		return nil, failure.New(failure.NoEntriesFound, "terabox: extraction tool returned no URL")
	}

	e := Entry{URL: info.URL, Extension: info.Ext, StreamType: StreamUnknown}
	if n := info.Size(); n > 0 {
		e.Size = &n
	}
	e.Label = entryLabel(e)

	name := info.Title
	if name == "" {
		name = fileNameFromURL(info.URL, "terabox_file")
	}
	capText := info.Description
	if capText == "" {
		capText = info.Title
	}
	return &SingleItem{
		Entry:    e,
		Caption:  caption.Clean(capText),
		FileName: name,
	}, nil
}
