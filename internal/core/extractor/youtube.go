package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/guiyumin/vresolve/internal/core/caption"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/fetch"
)

// YouTubeExtractor resolves YouTube videos and shorts into quality choices.
// Tiers: HQ API, legacy API, multi-step task API, extraction tool.
type YouTubeExtractor struct {
	deps Deps
	log  *slog.Logger
}

// NewYouTube creates the YouTube chain
func NewYouTube(d Deps) *YouTubeExtractor {
	return &YouTubeExtractor{deps: d, log: slog.With("component", "extractor", "platform", "youtube")}
}

func (y *YouTubeExtractor) Name() string { return "youtube" }

func (y *YouTubeExtractor) Extract(ctx context.Context, rawURL string) Result {
	opts := y.deps.Options
	tiers := []Tier[*QualityChoice]{
		{Name: "hq_api", Attempts: 1, Run: func(ctx context.Context) (*QualityChoice, error) { return y.hqAPI(ctx, rawURL) }},
		{Name: "legacy_api", Attempts: 1, Run: func(ctx context.Context) (*QualityChoice, error) { return y.legacyAPI(ctx, rawURL) }},
		{Name: "task_api", Attempts: 1, Run: func(ctx context.Context) (*QualityChoice, error) { return y.taskAPI(ctx, rawURL) }},
		{Name: "ytdlp", Attempts: 1, Timeout: opts.TaskDeadline, Run: func(ctx context.Context) (*QualityChoice, error) { return y.tool(ctx, rawURL) }},
	}

	qc, err := runTiers(ctx, y.Name(), tiers)
	if err != nil {
		return FailureFrom(err)
	}
	return qc
}

// getJSON calls a backend and turns an error envelope into a failure
func (y *YouTubeExtractor) getJSON(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	v, err := y.deps.Fetch.GetJSON(ctx, endpoint, params, y.deps.Options.CallTimeout)
	if err != nil {
		return nil, err
	}
	if msg, ok := fetch.ErrorMessage(v); ok {
		return nil, failure.New(failure.UnexpectedFailure, "youtube: backend error: %s", msg).WithRaw(v)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, failure.New(failure.UnexpectedFailure, "youtube: unexpected response shape").WithRaw(v)
	}
	return m, nil
}

// hqAPI asks the HQ backend for a task per height and keeps the completed ones
func (y *YouTubeExtractor) hqAPI(ctx context.Context, rawURL string) (*QualityChoice, error) {
	endpoint := y.deps.Endpoints.YouTubeHQ
	info, err := y.getJSON(ctx, endpoint, url.Values{"function": {"get_task"}, "url": {rawURL}})
	if err != nil {
		return nil, err
	}

	hash := stringField(info, "hash")
	if hash == "" {
		return nil, failure.New(failure.NoEntriesFound, "youtube: hq api returned no hash").WithRaw(info)
	}
	title := stringField(info, "title")

	var entries []Entry
	for _, height := range y.deps.Options.HQHeights {
		e, err := y.hqQuality(ctx, hash, height)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			y.log.Warn("hq quality failed", "height", height, "error", err)
			continue
		}
		if e != nil {
			entries = append(entries, *e)
		}
	}

	if len(entries) == 0 {
		return nil, failure.New(failure.NoEntriesFound, "youtube: hq api produced no qualities")
	}
	return y.choice(entries, title, caption.Clean(title), stringField(info, "thumbnail")), nil
}

func (y *YouTubeExtractor) hqQuality(ctx context.Context, hash string, height int) (*Entry, error) {
	endpoint := y.deps.Endpoints.YouTubeHQ
	format := strconv.Itoa(height)
	created, err := y.getJSON(ctx, endpoint, url.Values{"function": {"create_task"}, "hash": {hash}, "format": {format}})
	if err != nil {
		return nil, err
	}
	taskID := stringField(created, "task_id")
	if taskID == "" {
		return nil, nil
	}

	for range y.deps.Options.HQPolls {
		if err := sleepCtx(ctx, y.deps.Options.HQPollDelay); err != nil {
			return nil, err
		}
		check, err := y.getJSON(ctx, endpoint, url.Values{"function": {"check_task"}, "task_id": {taskID}})
		if err != nil {
			return nil, err
		}
		switch stringField(check, "status") {
		case "completed":
			dl := stringField(check, "download_url")
			if dl == "" {
				return nil, nil
			}
			size, sizeText := ParseSize(check["file_size"])
			e := Entry{
				URL:        dl,
				Extension:  "mp4",
				Resolution: format + "p",
				Height:     height,
				Size:       size,
				SizeText:   sizeText,
				StreamType: StreamVideoWithAudio,
				HasAudio:   true,
				Raw:        check,
			}
			e.Label = entryLabel(e)
			return &e, nil
		case "processing":
			continue
		default:
			return nil, nil
		}
	}
	return nil, nil
}

// legacyAPI reads the three typed stream arrays
func (y *YouTubeExtractor) legacyAPI(ctx context.Context, rawURL string) (*QualityChoice, error) {
	data, err := y.getJSON(ctx, y.deps.Endpoints.YouTubeLegacy, url.Values{"url": {rawURL}})
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, group := range []struct {
		key        string
		streamType StreamType
		defaultExt string
	}{
		{"video_with_audio", StreamVideoWithAudio, "mp4"},
		{"video_only", StreamVideoOnly, "mp4"},
		{"audio", StreamAudio, "m4a"},
	} {
		for _, item := range listField(data, group.key) {
			rec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if e, ok := legacyEntry(rec, group.streamType, group.defaultExt); ok {
				entries = append(entries, e)
			}
		}
	}

	if len(entries) == 0 {
		return nil, failure.New(failure.NoEntriesFound, "youtube: legacy api returned no streams").WithRaw(data)
	}

	title := stringField(data, "title")
	thumb := stringField(data, "thumbnail", "thumb", "image")
	return y.choice(entries, title, caption.First(title, stringField(data, "description")), thumb), nil
}

func legacyEntry(rec map[string]any, st StreamType, defaultExt string) (Entry, bool) {
	u := stringField(rec, "url")
	if u == "" {
		return Entry{}, false
	}
	ext := recordExtension(rec)
	if ext == "" {
		ext = defaultExt
	}

	e := Entry{
		URL:        u,
		Extension:  ext,
		StreamType: st,
		HasAudio:   st != StreamVideoOnly,
		Raw:        rec,
	}
	if h, ok := intField(rec, "height"); ok && h > 0 {
		e.Height = int(h)
	}

	switch {
	case st == StreamAudio:
		e.Resolution = "Audio"
	case e.Height > 0:
		e.Resolution = fmt.Sprintf("%dp", e.Height)
	default:
		e.Resolution = stringField(rec, "label")
		e.Height = heightFromLabel(e.Resolution)
	}

	e.Size, e.SizeText = ParseSize(rec["size_bytes"])
	if e.Size == nil {
		e.Size = SizeFromURL(u)
	}

	e.Label = stringField(rec, "label")
	if e.Label == "" {
		e.Label = entryLabel(e)
	} else if e.Size != nil {
		e.Label += " • " + FormatSize(*e.Size)
	}
	return e, true
}

var taskDoneStatuses = map[string]bool{"finished": true, "success": true, "completed": true, "done": true}

// taskAPI runs get_task, create_task, then polls check_task
func (y *YouTubeExtractor) taskAPI(ctx context.Context, rawURL string) (*QualityChoice, error) {
	endpoint := y.deps.Endpoints.YouTubeTask
	info, err := y.getJSON(ctx, endpoint, url.Values{"function": {"get_task"}, "url": {rawURL}})
	if err != nil {
		return nil, err
	}
	data := mapField(info, "data")

	hash := stringField(info, "hash", "video_hash")
	if hash == "" {
		hash = stringField(data, "hash")
	}
	if hash == "" {
		return nil, failure.New(failure.NoEntriesFound, "youtube: no hash returned from get_task").WithRaw(info)
	}
	title := stringField(info, "title", "video_title")
	if title == "" {
		title = stringField(data, "title")
	}

	created, err := y.getJSON(ctx, endpoint, url.Values{"function": {"create_task"}, "hash": {hash}})
	if err != nil {
		return nil, err
	}
	taskID := stringField(created, "task_id", "id")
	if taskID == "" {
		taskID = stringField(mapField(created, "data"), "task_id")
	}
	if taskID == "" {
		return nil, failure.New(failure.NoEntriesFound, "youtube: no task_id returned from create_task").WithRaw(created)
	}

	final, err := y.pollTask(ctx, endpoint, taskID)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, rec := range FindDownloadEntries(final) {
		if e, ok := NormalizeRecord(rec); ok {
			entries = append(entries, e)
		}
	}
	entries = dedupeEntries(entries)
	if len(entries) == 0 {
		return nil, failure.New(failure.NoEntriesFound, "youtube: no downloadable formats found").WithRaw(final)
	}

	ranked := RankEntries(entries)
	bestTitle := stringField(ranked[0].Raw, "title")
	return y.choice(entries, title, caption.First(title, bestTitle, stringField(info, "description")), stringField(info, "thumbnail")), nil
}

func (y *YouTubeExtractor) pollTask(ctx context.Context, endpoint, taskID string) (map[string]any, error) {
	opts := y.deps.Options
	pollCtx, cancel := context.WithTimeout(ctx, opts.TaskDeadline)
	defer cancel()

	for {
		check, err := y.getJSON(pollCtx, endpoint, url.Values{"function": {"check_task"}, "task_id": {taskID}})
		if err != nil {
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return nil, failure.New(failure.Timeout, "youtube: timed out waiting for task %s", taskID)
			}
			return nil, err
		}

		status := stringField(check, "status", "state")
		if status == "" {
			status = stringField(mapField(check, "data"), "status")
		}
		status = strings.ToLower(status)
		if taskDoneStatuses[status] || len(usableRecords(FindDownloadEntries(check))) > 0 {
			return check, nil
		}
		if status == "failed" || status == "error" {
			return nil, failure.New(failure.NoEntriesFound, "youtube: task %s ended with status %s", taskID, status).WithRaw(check)
		}

		if err := sleepCtx(pollCtx, opts.TaskPoll); err != nil {
			if ctx.Err() != nil {
				return nil, failure.Wrap(ctx.Err(), "youtube: polling task %s", taskID)
			}
			return nil, failure.New(failure.Timeout, "youtube: timed out waiting for task %s", taskID)
		}
	}
}

// tool builds entries from the extraction tool's format list
func (y *YouTubeExtractor) tool(ctx context.Context, rawURL string) (*QualityChoice, error) {
	if y.deps.Tool == nil {
		return nil, failure.New(failure.UnexpectedFailure, "youtube: extraction tool not configured")
	}
	info, err := y.deps.Tool.GetInfo(ctx, rawURL)
	if err != nil {
		return nil, failure.Wrap(err, "youtube: extraction tool")
	}

	var entries []Entry
	for _, f := range info.Formats {
		if f.URL == "" {
			continue
		}
		st, hasAudio := ClassifyStream(f.VCodec, f.ACodec)
		if strings.EqualFold(f.VCodec, "none") && strings.EqualFold(f.ACodec, "none") {
			continue
		}
		e := Entry{
			URL:        f.URL,
			Extension:  strings.ToLower(f.Ext),
			Height:     f.Height,
			StreamType: st,
			HasAudio:   hasAudio,
			Raw: map[string]any{
				"format_id": f.FormatID,
				"ext":       f.Ext,
				"vcodec":    f.VCodec,
				"acodec":    f.ACodec,
			},
		}
		if e.Extension == "" {
			e.Extension = "mp4"
		}
		if f.Height > 0 {
			e.Resolution = fmt.Sprintf("%dp", f.Height)
		} else {
			e.Resolution = f.FormatNote
		}
		size := f.Filesize
		if size <= 0 {
			size = f.FilesizeApprox
		}
		if size > 0 {
			e.Size = &size
		}
		e.Label = entryLabel(e)
		entries = append(entries, e)
	}

	if len(entries) == 0 && info.URL != "" {
		e := Entry{URL: info.URL, Extension: info.Ext, StreamType: StreamUnknown}
		if n := info.Size(); n > 0 {
			e.Size = &n
		}
		e.Label = entryLabel(e)
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, failure.New(failure.NoEntriesFound, "youtube: extraction tool found no formats")
	}
	return y.choice(entries, info.Title, caption.First(info.Title, info.Description), info.Thumbnail), nil
}

// choice ranks entries into a QualityChoice with the best one first
func (y *YouTubeExtractor) choice(entries []Entry, title, cleanCaption, thumbnail string) *QualityChoice {
	ranked := RankEntries(entries)
	best := ranked[0]
	suffix := best.Resolution
	if suffix == "" {
		suffix = "video"
	}
	return &QualityChoice{
		Entries:   ranked,
		BestIndex: 0,
		Caption:   cleanCaption,
		Title:     title,
		Thumbnail: thumbnail,
		FileName:  fileName(title, suffix, "mp4", "youtube_video"),
	}
}
