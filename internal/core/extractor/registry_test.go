package extractor

import (
	"context"
	"testing"

	"github.com/guiyumin/vresolve/internal/core/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoute(t *testing.T) {
	r := NewRouter(testDeps(&fakeFetcher{}, nil))

	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc", "youtube"},
		{"https://youtu.be/abc", "youtube"},
		{"https://YOUTUBE.com/shorts/abc", "youtube"},
		{"https://www.tiktok.com/@u/video/1", "tiktok"},
		{"https://vm.tiktok.com/xyz", "tiktok"},
		{"https://www.instagram.com/p/Cabc/", "instagram"},
		{"https://www.instagram.com/reel/Cabc/", "instagram"},
		{"https://www.terabox.com/s/1abc", "terabox"},
		{"https://1024terabox.com/s/1abc", "terabox"},
		{"https://www.4funbox.com/s/1abc", "terabox"},
		{"https://teraboxapp.com/s/1abc", "terabox"},
		{"https://vimeo.com/123", "generic"},
		{"not even a url", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			e := r.Route(tt.url)
			require.NotNil(t, e)
			assert.Equal(t, tt.want, e.Name())
		})
	}
}

func TestRouteFirstMatchWins(t *testing.T) {
	r := NewRouter(testDeps(&fakeFetcher{}, nil))
	// youtube is registered before instagram
	e := r.Route("https://www.youtube.com/redirect?q=https://instagram.com/p/x")
	assert.Equal(t, "youtube", e.Name())
}

func TestRouterList(t *testing.T) {
	r := NewRouter(testDeps(&fakeFetcher{}, nil))
	var names []string
	for _, e := range r.List() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"youtube", "tiktok", "instagram", "terabox", "generic"}, names)
}

func TestResolveEmptyURL(t *testing.T) {
	r := NewRouter(testDeps(&fakeFetcher{}, nil))
	res := r.Resolve(context.Background(), "   ")
	f, ok := res.(*Failure)
	require.True(t, ok)
	assert.Equal(t, failure.NoEntriesFound, f.Reason)
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"check this https://youtu.be/abc out", "https://youtu.be/abc"},
		{"http://a.test/x?y=1\nsecond line", "http://a.test/x?y=1"},
		{"two https://a.test/1 https://b.test/2", "https://a.test/1"},
		{"no link here", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractURL(tt.in), tt.in)
	}
}

func TestRouterAlias(t *testing.T) {
	r := NewRouter(testDeps(&fakeFetcher{}, nil))
	require.NoError(t, r.Alias("terabox", "TeraShareLink"))
	assert.Equal(t, "terabox", r.Route("https://www.terasharelink.com/s/1x").Name())
	assert.Len(t, r.List(), 5)

	assert.Error(t, r.Alias("vimeo", "vimeo.com"))
}
