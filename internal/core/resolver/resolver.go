// Package resolver ties URL routing, platform chains and the session store
// together into the operations the collaborator surfaces (CLI, HTTP API)
// call: resolve a URL, then pick one of its qualities.
package resolver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/guiyumin/vresolve/internal/core/caption"
	"github.com/guiyumin/vresolve/internal/core/config"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/fetch"
	"github.com/guiyumin/vresolve/internal/core/session"
	"github.com/guiyumin/vresolve/internal/core/ytdlp"
)

// Service resolves URLs and remembers quality choices between calls. It is
// safe for concurrent use.
type Service struct {
	router   *extractor.Router
	sessions *session.Store
	tool     extractor.InfoTool
	http     *http.Client
	maxBytes int64
}

// Selection is one entry picked out of a stored quality choice
type Selection struct {
	SessionID int64           `json:"session_id"`
	Index     int             `json:"index"`
	Entry     extractor.Entry `json:"entry"`
	// Audio is the stream to mux in when Entry is video-only
	Audio    *extractor.Entry `json:"audio,omitempty"`
	FileName string           `json:"file_name"`
	Caption  string           `json:"caption,omitempty"`
	// SendAsLink is set when the size is unknown or above the upload limit
	SendAsLink bool `json:"send_as_link"`
}

// New wires the production fetcher, yt-dlp client and session store from cfg
func New(cfg *config.Config) (*Service, error) {
	fc := fetch.New()
	tool := ytdlp.New(cfg.YtDLPPath)

	d := extractor.Deps{
		Fetch:     fc,
		Tool:      tool,
		Endpoints: Endpoints(cfg.Backends),
		Options:   Options(cfg.Resolve),
	}
	s := NewService(d, session.New(cfg.Session.TTL, cfg.Session.MaxEntries), cfg.MaxUploadBytes())
	s.http = fc.HTTP

	for _, site := range cfg.Sites {
		if err := s.router.Alias(site.Platform, site.Match); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewService builds a Service from explicit dependencies
func NewService(d extractor.Deps, sessions *session.Store, maxBytes int64) *Service {
	return &Service{
		router:   extractor.NewRouter(d),
		sessions: sessions,
		tool:     d.Tool,
		http:     http.DefaultClient,
		maxBytes: maxBytes,
	}
}

// Endpoints overlays configured backend overrides on the defaults
func Endpoints(b config.BackendsConfig) extractor.Endpoints {
	e := extractor.DefaultEndpoints()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&e.YouTubeHQ, b.YouTubeHQ)
	set(&e.YouTubeLegacy, b.YouTubeLegacy)
	set(&e.YouTubeTask, b.YouTubeTask)
	set(&e.TikTok, b.TikTok)
	set(&e.InstagramCaption, b.InstagramCaption)
	set(&e.Generic, b.Generic)
	if len(b.Instagram) > 0 {
		e.Instagram = b.Instagram
	}
	if len(b.Terabox) > 0 {
		e.Terabox = b.Terabox
	}
	return e
}

// Options overlays configured timings on the defaults. Zero values keep
// the default.
func Options(r config.ResolveConfig) extractor.Options {
	o := extractor.DefaultOptions()
	if r.Deadline > 0 {
		o.Deadline = r.Deadline
	}
	if r.CallTimeout > 0 {
		o.CallTimeout = r.CallTimeout
	}
	if r.ScrapeTimeout > 0 {
		o.ScrapeTimeout = r.ScrapeTimeout
	}
	if r.CaptionTimeout > 0 {
		o.CaptionTimeout = r.CaptionTimeout
	}
	if r.BackendAttempts > 0 {
		o.BackendAttempts = r.BackendAttempts
	}
	if r.ToolAttempts > 0 {
		o.ToolAttempts = r.ToolAttempts
	}
	if r.RetryDelay > 0 {
		o.RetryDelay = r.RetryDelay
	}
	return o
}

// Router returns the underlying router
func (s *Service) Router() *extractor.Router { return s.router }

// HTTPClient returns the client transfers should use
func (s *Service) HTTPClient() *http.Client { return s.http }

// MaxBytes returns the upload limit shared by selection and transfer
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Resolve runs the chain for rawURL. A QualityChoice is stored in the
// session store and comes back with its SessionID set.
func (s *Service) Resolve(ctx context.Context, rawURL string) extractor.Result {
	res := s.router.Resolve(ctx, rawURL)
	if qc, ok := res.(*extractor.QualityChoice); ok && len(qc.Entries) > 0 {
		qc.SessionID = s.sessions.Put(rawURL, qc)
		slog.Info("session stored", "component", "resolver", "session", qc.SessionID, "entries", len(qc.Entries))
	}
	return res
}

// Select picks entry index of session id
func (s *Service) Select(ctx context.Context, id int64, index int) (*Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.Wrap(err, "select")
	}

	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	entry, err := s.sessions.Entry(id, index)
	if err != nil {
		return nil, err
	}

	sel := &Selection{
		SessionID:  id,
		Index:      index,
		Entry:      entry,
		FileName:   extractor.EntryFileName(sess.Title, entry),
		Caption:    sess.Caption,
		SendAsLink: s.tooLarge(entry),
	}
	if entry.StreamType == extractor.StreamVideoOnly {
		if i := extractor.BestAudio(sess.Entries); i >= 0 {
			audio := sess.Entries[i]
			sel.Audio = &audio
			sel.FileName = extractor.EntryFileName(sess.Title, extractor.Entry{
				Resolution: entry.Resolution,
				Extension:  "mp4",
			})
		}
	}
	return sel, nil
}

func (s *Service) tooLarge(e extractor.Entry) bool {
	if e.Size == nil {
		return true
	}
	return s.maxBytes > 0 && *e.Size > s.maxBytes
}

// AudioSource returns the URL to re-extract audio from for session id: the
// page URL the session was resolved from, else the raw url of its first
// entry.
func (s *Service) AudioSource(id int64) (string, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return "", err
	}
	if sess.SourceURL != "" {
		return sess.SourceURL, nil
	}
	if len(sess.Entries) > 0 {
		if u, ok := sess.Entries[0].Raw["url"].(string); ok && u != "" {
			return u, nil
		}
	}
	return "", failure.New(failure.NoEntriesFound, "session %d has no source URL", id)
}

// ExtractAudio asks the extraction tool for the best audio-only stream of
// session id
func (s *Service) ExtractAudio(ctx context.Context, id int64) (*Selection, error) {
	src, err := s.AudioSource(id)
	if err != nil {
		return nil, err
	}
	if s.tool == nil {
		return nil, failure.New(failure.UnexpectedFailure, "no extraction tool configured")
	}

	info, err := s.tool.GetInfo(ctx, src, "-f", "bestaudio[ext=m4a]/bestaudio/best")
	if err != nil {
		return nil, failure.Wrap(err, "audio extraction")
	}
	if info.URL == "" {
		return nil, failure.New(failure.NoEntriesFound, "audio extraction returned no stream")
	}

	entry := extractor.Entry{
		URL:        info.URL,
		Extension:  info.Ext,
		StreamType: extractor.StreamAudio,
		HasAudio:   true,
		Raw:        info.Raw,
	}
	if entry.Extension == "" {
		entry.Extension = "m4a"
	}
	if n := info.Size(); n > 0 {
		entry.Size = &n
		entry.Label = entry.Extension + " • " + extractor.FormatSize(n)
	}

	return &Selection{
		SessionID:  id,
		Index:      -1,
		Entry:      entry,
		FileName:   extractor.EntryFileName(info.Title, entry),
		Caption:    caption.Clean(info.Title),
		SendAsLink: s.tooLarge(entry),
	}, nil
}
