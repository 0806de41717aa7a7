package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/ytdlp"
)

// Fetcher performs backend calls. *fetch.Client implements it.
type Fetcher interface {
	GetJSON(ctx context.Context, endpoint string, params url.Values, timeout time.Duration) (any, error)
	GetHTML(ctx context.Context, pageURL string, timeout time.Duration) (*goquery.Document, error)
}

// InfoTool is the general-purpose metadata extraction tool. *ytdlp.Client
// implements it.
type InfoTool interface {
	GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error)
}

// Endpoints lists every backend the chains call
type Endpoints struct {
	YouTubeHQ     string
	YouTubeLegacy string
	YouTubeTask   string
	TikTok        string
	Instagram     []string
	// InstagramCaption is a format string taking the post shortcode
	InstagramCaption string
	Terabox          []string
	Generic          string
}

// DefaultEndpoints returns the public backends
func DefaultEndpoints() Endpoints {
	return Endpoints{
		YouTubeHQ:     "https://yt-download.hazex.workers.dev/",
		YouTubeLegacy: "https://yt-vid.hazex.workers.dev/",
		YouTubeTask:   "https://yt-dl.hazex.workers.dev/",
		TikTok:        "https://tiktok-dl.hazex.workers.dev/",
		Instagram: []string{
			"https://nodejssocialdownloder.onrender.com/revangeapi/download",
			"https://insta-dl.hazex.workers.dev/",
			"https://social-dl.hazex.workers.dev/",
			"https://social-downloader.apisimpacientes.workers.dev/",
		},
		InstagramCaption: "https://www.instagram.com/p/%s/?__a=1&__d=dis",
		Terabox: []string{
			"https://my-noor-queen-api.woodmirror.workers.dev/api",
			"https://social-downloader.apisimpacientes.workers.dev/",
		},
		Generic: "https://social-downloader.apisimpacientes.workers.dev/",
	}
}

// Options tunes chain timing
type Options struct {
	CallTimeout     time.Duration // per backend call
	ScrapeTimeout   time.Duration // Instagram page load
	CaptionTimeout  time.Duration // Instagram caption backend
	Deadline        time.Duration // whole resolution
	HQHeights       []int
	HQPolls         int
	HQPollDelay     time.Duration
	TaskPoll        time.Duration
	TaskDeadline    time.Duration
	BackendAttempts int // Terabox attempts per backend
	ToolAttempts    int // Terabox extraction tool attempts
	RetryDelay      time.Duration
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		CallTimeout:     30 * time.Second,
		ScrapeTimeout:   15 * time.Second,
		CaptionTimeout:  10 * time.Second,
		Deadline:        180 * time.Second,
		HQHeights:       []int{1440, 1080, 720, 480, 360},
		HQPolls:         3,
		HQPollDelay:     time.Second,
		TaskPoll:        2 * time.Second,
		TaskDeadline:    90 * time.Second,
		BackendAttempts: 2,
		ToolAttempts:    2,
		RetryDelay:      time.Second,
	}
}

// Deps bundles what every chain needs
type Deps struct {
	Fetch     Fetcher
	Tool      InfoTool
	Endpoints Endpoints
	Options   Options
}

type route struct {
	extractor Extractor
	fragments []string
}

// Router dispatches a URL to exactly one platform chain
type Router struct {
	routes   []route
	fallback Extractor
	deadline time.Duration
}

// NewRouter builds the router with every platform chain registered in
// priority order
func NewRouter(d Deps) *Router {
	r := &Router{deadline: d.Options.Deadline}
	r.Register(NewYouTube(d), "youtube.com", "youtu.be")
	r.Register(NewTikTok(d), "tiktok.com")
	r.Register(NewInstagram(d), "instagram.com")
	r.Register(NewTerabox(d), "terabox", "1024tera", "1024terabox", "teraboxapp",
		"freeterabox", "4funbox", "mirrobox", "nephobox", "momerybox", "tibibox")
	r.RegisterFallback(NewGeneric(d))
	return r
}

// Register adds an extractor matched by case-insensitive URL substrings.
// Earlier registrations win.
func (r *Router) Register(e Extractor, fragments ...string) {
	lower := make([]string, len(fragments))
	for i, f := range fragments {
		lower[i] = strings.ToLower(f)
	}
	r.routes = append(r.routes, route{extractor: e, fragments: lower})
}

// Alias routes extra URL fragments to the extractor named platform. The
// fragments are checked before every built-in route.
func (r *Router) Alias(platform string, fragments ...string) error {
	var target Extractor
	for _, e := range r.List() {
		if e.Name() == platform {
			target = e
			break
		}
	}
	if target == nil {
		return fmt.Errorf("unknown platform %q", platform)
	}

	lower := make([]string, len(fragments))
	for i, f := range fragments {
		lower[i] = strings.ToLower(f)
	}
	r.routes = append([]route{{extractor: target, fragments: lower}}, r.routes...)
	return nil
}

// RegisterFallback sets the extractor for URLs no route matches
func (r *Router) RegisterFallback(e Extractor) {
	r.fallback = e
}

// Route returns the extractor for rawURL. It never returns nil once a
// fallback is registered.
func (r *Router) Route(rawURL string) Extractor {
	lower := strings.ToLower(rawURL)
	for _, rt := range r.routes {
		for _, f := range rt.fragments {
			if strings.Contains(lower, f) {
				return rt.extractor
			}
		}
	}
	return r.fallback
}

// List returns the registered extractors in priority order, fallback last
func (r *Router) List() []Extractor {
	out := make([]Extractor, 0, len(r.routes)+1)
	seen := make(map[Extractor]bool)
	for _, rt := range r.routes {
		if seen[rt.extractor] {
			continue
		}
		seen[rt.extractor] = true
		out = append(out, rt.extractor)
	}
	if r.fallback != nil {
		out = append(out, r.fallback)
	}
	return out
}

// Resolve runs the matching chain under the overall deadline
func (r *Router) Resolve(ctx context.Context, rawURL string) Result {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return &Failure{Reason: failure.NoEntriesFound, Message: "no URL given"}
	}

	e := r.Route(rawURL)
	if e == nil {
		return &Failure{Reason: failure.UnexpectedFailure, Message: "no extractor registered"}
	}

	if r.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deadline)
		defer cancel()
	}

	slog.Info("resolving", "component", "router", "platform", e.Name(), "url", rawURL)
	res := safeExtract(e.Name(), func() Result { return e.Extract(ctx, rawURL) })
	if res == nil {
		return &Failure{Reason: failure.UnexpectedFailure, Message: e.Name() + ": no result"}
	}
	if f, ok := res.(*Failure); ok {
		slog.Warn("resolution failed", "component", "router", "platform", e.Name(), "kind", f.Reason, "error", f.Message)
	}
	return res
}

var inputURLRegex = regexp.MustCompile(`https?://\S+`)

// ExtractURL returns the first http(s) URL in free text, or ""
func ExtractURL(text string) string {
	return inputURLRegex.FindString(text)
}
