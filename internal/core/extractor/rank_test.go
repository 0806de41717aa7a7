package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryOf(st StreamType, height int, ext string) Entry {
	return Entry{URL: "https://cdn/" + ext, StreamType: st, Height: height, Extension: ext}
}

func TestRankEntriesByHeight(t *testing.T) {
	entries := []Entry{
		entryOf(StreamVideoWithAudio, 480, "mp4"),
		entryOf(StreamVideoWithAudio, 720, "mp4"),
		entryOf(StreamVideoWithAudio, 360, "mp4"),
	}

	ranked := RankEntries(entries)
	require.Len(t, ranked, 3)
	assert.Equal(t, 720, ranked[0].Height)
	assert.Equal(t, 480, ranked[1].Height)
	assert.Equal(t, 360, ranked[2].Height)

	// input untouched
	assert.Equal(t, 480, entries[0].Height)
}

func TestRankEntriesTypePriority(t *testing.T) {
	ranked := RankEntries([]Entry{
		entryOf(StreamAudio, 0, "m4a"),
		entryOf(StreamUnknown, 2160, "mp4"),
		entryOf(StreamVideoOnly, 1080, "webm"),
		entryOf(StreamVideoWithAudio, 360, "mp4"),
	})

	var got []StreamType
	for _, e := range ranked {
		got = append(got, e.StreamType)
	}
	assert.Equal(t, []StreamType{StreamVideoWithAudio, StreamVideoOnly, StreamAudio, StreamUnknown}, got)
}

func TestRankEntriesPrefersMP4OnTie(t *testing.T) {
	ranked := RankEntries([]Entry{
		entryOf(StreamVideoOnly, 1080, "webm"),
		entryOf(StreamVideoOnly, 1080, "mp4"),
	})
	assert.Equal(t, "mp4", ranked[0].Extension)
}

func TestRankEntriesStable(t *testing.T) {
	a := Entry{URL: "https://cdn/a", StreamType: StreamAudio, Extension: "opus"}
	b := Entry{URL: "https://cdn/b", StreamType: StreamAudio, Extension: "opus"}
	ranked := RankEntries([]Entry{a, b})
	assert.Equal(t, "https://cdn/a", ranked[0].URL)
	assert.Equal(t, "https://cdn/b", ranked[1].URL)
}

func TestBestAudio(t *testing.T) {
	small, large := int64(100), int64(900)
	entries := []Entry{
		{URL: "v", StreamType: StreamVideoOnly},
		{URL: "a1", StreamType: StreamAudio, Size: &small},
		{URL: "a2", StreamType: StreamAudio, Size: &large},
	}
	assert.Equal(t, 2, BestAudio(entries))
	assert.Equal(t, -1, BestAudio(entries[:1]))
}

func TestDedupeAlbum(t *testing.T) {
	items := []AlbumEntry{
		{Entry: Entry{URL: "https://cdn/1.jpg?sig=a"}},
		{Entry: Entry{URL: "https://cdn/2.jpg"}},
		{Entry: Entry{URL: "https://cdn/1.jpg?sig=b"}},
	}
	got := dedupeAlbum(items)
	require.Len(t, got, 2)
	assert.Equal(t, "https://cdn/1.jpg?sig=a", got[0].URL)
	assert.Equal(t, "https://cdn/2.jpg", got[1].URL)
}
