package extractor

import (
	"context"
	"errors"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/guiyumin/vresolve/internal/core/ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ytURL = "https://www.youtube.com/watch?v=abc"

func TestYouTubeHQAPI(t *testing.T) {
	f := &fakeFetcher{json: func(endpoint string, p url.Values) (any, error) {
		require.Equal(t, "https://hq.test/", endpoint)
		switch p.Get("function") {
		case "get_task":
			assert.Equal(t, ytURL, p.Get("url"))
			return map[string]any{"hash": "h1", "title": "My Clip", "thumbnail": "https://img/t.jpg"}, nil
		case "create_task":
			return map[string]any{"task_id": "t" + p.Get("format")}, nil
		case "check_task":
			return map[string]any{
				"status":       "completed",
				"download_url": "https://cdn/" + p.Get("task_id") + ".mp4",
				"file_size":    float64(1 << 20),
			}, nil
		}
		return nil, errors.New("unexpected call")
	}}

	res := NewYouTube(testDeps(f, nil)).Extract(context.Background(), ytURL)
	qc, ok := res.(*QualityChoice)
	require.True(t, ok, "got %#v", res)

	require.Len(t, qc.Entries, 2)
	assert.Equal(t, 0, qc.BestIndex)
	assert.Equal(t, 1080, qc.Best().Height)
	assert.Equal(t, "https://cdn/t1080.mp4", qc.Best().URL)
	assert.Equal(t, int64(1<<20), qc.Best().SizeBytes())
	assert.Equal(t, StreamVideoWithAudio, qc.Best().StreamType)
	assert.Equal(t, "My Clip", qc.Caption)
	assert.Equal(t, "https://img/t.jpg", qc.Thumbnail)
	assert.Equal(t, "My_Clip_1080p.mp4", qc.FileName)
	assert.Zero(t, f.count("https://legacy.test/"))
}

func TestYouTubeFallsBackToLegacy(t *testing.T) {
	f := &fakeFetcher{json: func(endpoint string, p url.Values) (any, error) {
		switch endpoint {
		case "https://hq.test/":
			return map[string]any{"error": "quota exceeded"}, nil
		case "https://legacy.test/":
			return map[string]any{
				"title": "Legacy clip\n#tags",
				"thumb": "https://img/l.jpg",
				"video_with_audio": []any{
					map[string]any{"url": "https://cdn/480.mp4", "height": float64(480)},
					map[string]any{"url": "https://cdn/720.mp4?clen=2048", "height": float64(720)},
					map[string]any{"url": "https://cdn/360.mp4", "height": float64(360)},
				},
				"video_only": []any{
					map[string]any{"url": "https://cdn/1080.webm", "height": float64(1080), "extension": "webm"},
				},
				"audio": []any{
					map[string]any{"url": "https://cdn/a.m4a", "size_bytes": float64(1000)},
					"not a record",
				},
			}, nil
		}
		return nil, errors.New("unexpected call")
	}}

	res := NewYouTube(testDeps(f, nil)).Extract(context.Background(), ytURL)
	qc, ok := res.(*QualityChoice)
	require.True(t, ok, "got %#v", res)

	require.Len(t, qc.Entries, 5)
	best := qc.Best()
	assert.Equal(t, 720, best.Height)
	require.NotNil(t, best.Size)
	assert.Equal(t, int64(2048), *best.Size)

	assert.Equal(t, StreamVideoOnly, qc.Entries[3].StreamType)
	assert.False(t, qc.Entries[3].HasAudio)
	assert.Equal(t, StreamAudio, qc.Entries[4].StreamType)
	assert.Equal(t, "m4a", qc.Entries[4].Extension)
	assert.Equal(t, "Audio", qc.Entries[4].Resolution)

	assert.Equal(t, "Legacy clip", qc.Caption)
	assert.Equal(t, "https://img/l.jpg", qc.Thumbnail)
	assert.Equal(t, 1, f.count("https://hq.test/"))
}

func TestYouTubeTaskAPIAfterEmptyLegacy(t *testing.T) {
	var checks atomic.Int32
	f := &fakeFetcher{json: func(endpoint string, p url.Values) (any, error) {
		switch endpoint {
		case "https://hq.test/":
			return map[string]any{"title": "no hash here"}, nil
		case "https://legacy.test/":
			return map[string]any{"video_with_audio": []any{}}, nil
		case "https://task.test/":
			switch p.Get("function") {
			case "get_task":
				return map[string]any{"data": map[string]any{"hash": "h2"}, "title": "Task clip"}, nil
			case "create_task":
				assert.Equal(t, "h2", p.Get("hash"))
				return map[string]any{"id": float64(99)}, nil
			case "check_task":
				assert.Equal(t, "99", p.Get("task_id"))
				if checks.Add(1) == 1 {
					return map[string]any{"status": "processing"}, nil
				}
				return map[string]any{
					"status": "Finished",
					"formats": []any{
						map[string]any{"url": "https://cdn/t.mp4", "quality": "480p", "vcodec": "avc1", "acodec": "mp4a"},
						map[string]any{"url": "https://cdn/t.mp4", "quality": "480p", "vcodec": "avc1", "acodec": "mp4a"},
					},
				}, nil
			}
		}
		return nil, errors.New("unexpected call")
	}}

	res := NewYouTube(testDeps(f, nil)).Extract(context.Background(), ytURL)
	qc, ok := res.(*QualityChoice)
	require.True(t, ok, "got %#v", res)

	require.Len(t, qc.Entries, 1)
	assert.Equal(t, 480, qc.Best().Height)
	assert.Equal(t, "Task clip", qc.Caption)
	assert.Equal(t, int32(2), checks.Load())
}

func TestYouTubeTaskTimeoutFallsBackToTool(t *testing.T) {
	f := &fakeFetcher{json: func(endpoint string, p url.Values) (any, error) {
		switch endpoint {
		case "https://task.test/":
			switch p.Get("function") {
			case "get_task":
				return map[string]any{"hash": "h3"}, nil
			case "create_task":
				return map[string]any{"task_id": "t3"}, nil
			default:
				return map[string]any{"status": "processing"}, nil
			}
		}
		return nil, failure.HTTPStatus(503, endpoint, nil)
	}}
	tool := &fakeTool{fn: func(u string, args []string) (*ytdlp.Info, error) {
		return &ytdlp.Info{
			Title: "Tool clip",
			Formats: []ytdlp.Format{
				{URL: "https://cdn/none.mp4", VCodec: "none", ACodec: "none"},
				{URL: "https://cdn/360.mp4", Ext: "mp4", Height: 360, VCodec: "avc1", ACodec: "mp4a", FilesizeApprox: 500},
				{URL: "https://cdn/1080.webm", Ext: "webm", Height: 1080, VCodec: "vp9", ACodec: "none"},
				{URL: "https://cdn/a.webm", Ext: "webm", VCodec: "none", ACodec: "opus"},
			},
		}, nil
	}}

	res := NewYouTube(testDeps(f, tool)).Extract(context.Background(), ytURL)
	qc, ok := res.(*QualityChoice)
	require.True(t, ok, "got %#v", res)

	require.Len(t, qc.Entries, 3)
	assert.Equal(t, "https://cdn/360.mp4", qc.Best().URL)
	assert.Equal(t, int64(500), qc.Best().SizeBytes())
	assert.Equal(t, StreamVideoOnly, qc.Entries[1].StreamType)
	assert.Equal(t, StreamAudio, qc.Entries[2].StreamType)
	assert.Equal(t, 1, tool.calls)
}

func TestYouTubeAllTiersFail(t *testing.T) {
	f := &fakeFetcher{json: func(endpoint string, p url.Values) (any, error) {
		return nil, failure.New(failure.ConnectionFailed, "connection refused")
	}}

	res := NewYouTube(testDeps(f, nil)).Extract(context.Background(), ytURL)
	fail, ok := res.(*Failure)
	require.True(t, ok, "got %#v", res)
	assert.Equal(t, failure.AllBackendsExhausted, fail.Reason)
	assert.NotEmpty(t, fail.Message)
}
