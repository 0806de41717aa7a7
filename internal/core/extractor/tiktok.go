package extractor

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/guiyumin/vresolve/internal/core/caption"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/fetch"
)

// TikTokExtractor handles TikTok video downloads through a single backend
// whose response shape is known
type TikTokExtractor struct {
	deps Deps
	log  *slog.Logger
}

// NewTikTok creates the TikTok chain
func NewTikTok(d Deps) *TikTokExtractor {
	return &TikTokExtractor{deps: d, log: slog.With("component", "extractor", "platform", "tiktok")}
}

func (t *TikTokExtractor) Name() string { return "tiktok" }

type tiktokVariant struct {
	url    string
	ext    string
	suffix string
	audio  bool
}

func (t *TikTokExtractor) Extract(ctx context.Context, rawURL string) Result {
	tiers := []Tier[*SingleItem]{{
		Name:     "tiktok_api",
		Attempts: 1,
		Run:      func(ctx context.Context) (*SingleItem, error) { return t.fetch(ctx, rawURL) },
	}}
	item, err := runTiers(ctx, t.Name(), tiers)
	if err != nil {
		return FailureFrom(err)
	}
	return item
}

func (t *TikTokExtractor) fetch(ctx context.Context, rawURL string) (*SingleItem, error) {
	v, err := t.deps.Fetch.GetJSON(ctx, t.deps.Endpoints.TikTok, url.Values{"url": {rawURL}}, t.deps.Options.CallTimeout)
	if err != nil {
		return nil, err
	}
	if msg, ok := fetch.ErrorMessage(v); ok {
		return nil, failure.New(failure.UnexpectedFailure, "tiktok: %s", msg).WithRaw(v)
	}
	data, _ := v.(map[string]any)
	result := mapField(data, "result")
	downloads := mapField(result, "download_url")

	// no watermark, watermarked, then audio
	var variants []tiktokVariant
	if u := stringField(downloads, "without_watermark"); u != "" {
		variants = append(variants, tiktokVariant{url: u, ext: "mp4"})
	}
	if u := stringField(downloads, "with_watermark"); u != "" {
		variants = append(variants, tiktokVariant{url: u, ext: "mp4", suffix: "wm"})
	}
	if u := stringField(result, "audio"); u != "" {
		variants = append(variants, tiktokVariant{url: u, ext: "mp3", suffix: "audio", audio: true})
	}
	if len(variants) == 0 {
		return nil, failure.New(failure.NoEntriesFound, "tiktok: no media URLs found").WithRaw(v)
	}

	chosen := variants[0]
	t.log.Debug("variant chosen", "variant", chosen.suffix, "available", len(variants))

	title := stringField(result, "title", "profile_name")
	e := Entry{
		URL:        chosen.url,
		Extension:  chosen.ext,
		StreamType: StreamVideoWithAudio,
		HasAudio:   true,
		Raw:        result,
	}
	if chosen.audio {
		e.StreamType = StreamAudio
	}
	e.Label = entryLabel(e)

	return &SingleItem{
		Entry:    e,
		Caption:  caption.First(stringField(result, "title"), title),
		FileName: fileName(title, chosen.suffix, chosen.ext, "tiktok_video"),
		IsVideo:  !chosen.audio,
	}, nil
}
