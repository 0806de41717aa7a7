package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/guiyumin/vresolve/internal/core/config"
	"github.com/guiyumin/vresolve/internal/core/extractor"
	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func size(n int64) *int64 { return &n }

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name     string
		res      extractor.Result
		contains []string
	}{
		{
			name: "single",
			res: &extractor.SingleItem{
				Entry:    extractor.Entry{URL: "https://cdn/a.mp4", Size: size(2048)},
				FileName: "a.mp4",
				IsVideo:  true,
				Caption:  "first line\nsecond line",
			},
			contains: []string{"Single item", "a.mp4", "video", "2.0 KiB", "https://cdn/a.mp4", "first line"},
		},
		{
			name: "album",
			res: &extractor.Album{
				Count: 2,
				Items: []extractor.AlbumEntry{
					{Entry: extractor.Entry{URL: "https://cdn/1.jpg"}, FileName: "1.jpg", IsImage: true},
					{Entry: extractor.Entry{URL: "https://cdn/2.mp4"}, FileName: "2.mp4", IsVideo: true},
				},
			},
			contains: []string{"Album (2 items)", "[0] 1.jpg", "image", "[1] 2.mp4"},
		},
		{
			name: "quality choice",
			res: &extractor.QualityChoice{
				Title:     "Clip",
				SessionID: 3,
				Entries: []extractor.Entry{
					{URL: "https://cdn/720", Resolution: "720p", Size: size(100), StreamType: extractor.StreamVideoWithAudio},
					{URL: "https://cdn/1080", Resolution: "1080p", Size: size(5000), StreamType: extractor.StreamVideoOnly},
					{URL: "https://cdn/a", StreamType: extractor.StreamAudio},
				},
			},
			contains: []string{"Clip", "Session 3, 3 qualities", "* [0] 720p", "[1] 1080p", "link only"},
		},
		{
			name:     "failure",
			res:      &extractor.Failure{Reason: failure.Timeout, Message: "took too long"},
			contains: []string{"timeout: took too long"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printResult(&buf, tt.res, 1000)
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
			assert.NotContains(t, buf.String(), "second line")
		})
	}
}

func TestPrintResultLinkOnlyCount(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &extractor.QualityChoice{Entries: []extractor.Entry{
		{URL: "u1", Size: size(10)},
		{URL: "u2", Size: size(5000)},
		{URL: "u3"},
	}}, 1000)
	assert.Equal(t, 2, strings.Count(buf.String(), "link only"))
}

func TestCell(t *testing.T) {
	assert.Equal(t, "abc   ", cell("abc", 6))
	assert.Equal(t, "abcd…", cell("abcdefgh", 5))
	// wide runes count double
	assert.Equal(t, "日本…", cell("日本語テキスト", 5))
}

func TestPlan(t *testing.T) {
	t.Run("failure", func(t *testing.T) {
		f := &extractor.Failure{Reason: failure.NoEntriesFound, Message: "nothing"}
		_, err := plan(context.Background(), nil, f, -1, false)
		assert.Equal(t, failure.NoEntriesFound, failure.KindOf(err))
	})

	t.Run("single", func(t *testing.T) {
		res := &extractor.SingleItem{Entry: extractor.Entry{URL: "https://cdn/a.mp4"}, FileName: "a.mp4"}
		got, err := plan(context.Background(), nil, res, -1, false)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a.mp4", got[0].name)
		assert.Nil(t, got[0].audio)
	})

	t.Run("album", func(t *testing.T) {
		res := &extractor.Album{Count: 2, Items: []extractor.AlbumEntry{
			{Entry: extractor.Entry{URL: "https://cdn/1.jpg"}, FileName: "1.jpg"},
			{Entry: extractor.Entry{URL: "https://cdn/2.jpg"}, FileName: "2.jpg"},
		}}
		got, err := plan(context.Background(), nil, res, -1, false)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "2.jpg (2/2)", got[1].label)
	})
}

func TestLineProgress(t *testing.T) {
	var buf bytes.Buffer
	p := newLineProgress(&buf, time.Hour)

	p.report(512, 1024)
	p.report(1024, 1024) // throttled
	p.done()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "512 B / 1.0 KiB (50.0%)")
	assert.Contains(t, lines[1], "1.0 KiB / 1.0 KiB (100.0%)")

	buf.Reset()
	p = newLineProgress(&buf, 0)
	p.report(2048, -1)
	assert.Contains(t, buf.String(), "2.0 KiB")
}

func TestConfigValues(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    string
		wantErr bool
	}{
		{"max_upload_mb", "50", "50", false},
		{"max_upload_mb", "lots", "", true},
		{"output_dir", "/tmp/out", "/tmp/out", false},
		{"resolve.deadline", "2m", "2m0s", false},
		{"session.ttl", "soon", "", true},
		{"server.port", "9000", "9000", false},
		{"server.api_key", "k", "k", false},
		{"nope", "x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := config.DefaultConfig()
			err := setConfigValue(cfg, tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			got, err := getConfigValue(cfg, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnsetConfigValue(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, setConfigValue(cfg, "session.ttl", "1h"))
	require.NoError(t, setConfigValue(cfg, "server.port", "1234"))

	require.NoError(t, unsetConfigValue(cfg, "session.ttl"))
	require.NoError(t, unsetConfigValue(cfg, "server.port"))

	def := config.DefaultConfig()
	assert.Equal(t, def.Session.TTL, cfg.Session.TTL)
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Error(t, unsetConfigValue(cfg, "nope"))
}

func TestConfigKeysReadable(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, key := range configKeys {
		_, err := getConfigValue(cfg, key)
		assert.NoError(t, err, key)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(buf.String(), "vresolve v"))
}
