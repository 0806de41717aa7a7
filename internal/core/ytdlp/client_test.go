package ytdlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	var gotName string
	var gotArgs []string
	c := New("/opt/yt-dlp")
	c.Exec = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotName = name
		gotArgs = args
		return []byte(`{
			"id": "abc",
			"title": "A clip",
			"description": "Longer description",
			"formats": [
				{"url": "https://cdn/v.mp4", "ext": "mp4", "height": 720, "vcodec": "avc1", "acodec": "mp4a"},
				{"url": "https://cdn/a.m4a", "ext": "m4a", "vcodec": "none", "acodec": "mp4a", "filesize": 1234}
			],
			"extra_field": 42
		}`), nil, nil
	}

	info, err := c.GetInfo(context.Background(), "https://youtu.be/abc")
	require.NoError(t, err)

	assert.Equal(t, "/opt/yt-dlp", gotName)
	assert.Contains(t, gotArgs, "--dump-single-json")
	assert.Contains(t, gotArgs, "--skip-download")
	assert.Equal(t, "https://youtu.be/abc", gotArgs[len(gotArgs)-1])

	assert.Equal(t, "A clip", info.Title)
	require.Len(t, info.Formats, 2)
	assert.Equal(t, 720, info.Formats[0].Height)
	assert.Equal(t, int64(1234), info.Formats[1].Filesize)
	assert.Equal(t, float64(42), info.Raw["extra_field"])
	assert.Equal(t, "Longer description", info.Caption())
}

func TestGetInfoExecError(t *testing.T) {
	c := New("")
	c.Exec = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Unsupported URL"), errors.New("exit status 1")
	}

	_, err := c.GetInfo(context.Background(), "https://example.com")
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "yt-dlp", execErr.Cmd)
	assert.Equal(t, "ERROR: Unsupported URL", execErr.Stderr)
}

func TestGetInfoRequiresURL(t *testing.T) {
	_, err := New("").GetInfo(context.Background(), "  ")
	assert.Error(t, err)
}

func TestMediaURLs(t *testing.T) {
	album := &Info{Entries: []*Info{{URL: "https://cdn/1.jpg"}, nil, {URL: ""}, {URL: "https://cdn/2.mp4"}}}
	assert.Equal(t, []string{"https://cdn/1.jpg", "https://cdn/2.mp4"}, album.MediaURLs())

	single := &Info{URL: "https://cdn/reel.mp4"}
	assert.Equal(t, []string{"https://cdn/reel.mp4"}, single.MediaURLs())

	assert.Empty(t, (&Info{}).MediaURLs())
}
