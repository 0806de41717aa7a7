package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/guiyumin/vresolve/internal/core/ytdlp"
)

// fakeFetcher answers backend calls from in-memory handlers
type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	json  func(endpoint string, params url.Values) (any, error)
	html  func(pageURL string) (string, error)
}

func (f *fakeFetcher) GetJSON(ctx context.Context, endpoint string, params url.Values, timeout time.Duration) (any, error) {
	f.record(endpoint, params)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.json == nil {
		return nil, errors.New("no json handler")
	}
	return f.json(endpoint, params)
}

func (f *fakeFetcher) GetHTML(ctx context.Context, pageURL string, timeout time.Duration) (*goquery.Document, error) {
	f.record(pageURL, nil)
	if f.html == nil {
		return nil, errors.New("no html handler")
	}
	body, err := f.html(pageURL)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func (f *fakeFetcher) record(endpoint string, params url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	f.calls = append(f.calls, endpoint)
}

func (f *fakeFetcher) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakeTool stands in for the extraction tool
type fakeTool struct {
	mu    sync.Mutex
	calls int
	fn    func(url string, args []string) (*ytdlp.Info, error)
}

func (t *fakeTool) GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.fn == nil {
		return nil, errors.New("tool unavailable")
	}
	return t.fn(url, extraArgs)
}

func testEndpoints() Endpoints {
	return Endpoints{
		YouTubeHQ:        "https://hq.test/",
		YouTubeLegacy:    "https://legacy.test/",
		YouTubeTask:      "https://task.test/",
		TikTok:           "https://tiktok.test/",
		Instagram:        []string{"https://ig1.test/", "https://ig2.test/"},
		InstagramCaption: "https://caption.test/p/%s/",
		Terabox:          []string{"https://tera1.test/", "https://tera2.test/"},
		Generic:          "https://generic.test/",
	}
}

func testOptions() Options {
	return Options{
		CallTimeout:     time.Second,
		ScrapeTimeout:   time.Second,
		CaptionTimeout:  time.Second,
		Deadline:        5 * time.Second,
		HQHeights:       []int{1080, 720},
		HQPolls:         2,
		TaskPoll:        time.Millisecond,
		TaskDeadline:    200 * time.Millisecond,
		BackendAttempts: 2,
		ToolAttempts:    2,
		RetryDelay:      time.Millisecond,
	}
}

func testDeps(f Fetcher, tool InfoTool) Deps {
	return Deps{Fetch: f, Tool: tool, Endpoints: testEndpoints(), Options: testOptions()}
}

// mustJSON decodes a JSON literal the way backends are seen by chains
func mustJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad test JSON: %v", err)
	}
	return v
}
