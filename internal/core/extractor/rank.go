package extractor

import (
	"slices"
	"strings"
)

var streamPriority = map[StreamType]int{
	StreamVideoWithAudio: 0,
	StreamVideoOnly:      1,
	StreamAudio:          2,
	StreamUnknown:        3,
}

// RankEntries returns a copy of entries ordered best first: combined
// video+audio, then video-only, then audio, then unknown; within a type by
// descending height; on ties an mp4-family container wins. The sort is
// stable.
func RankEntries(entries []Entry) []Entry {
	ranked := slices.Clone(entries)
	slices.SortStableFunc(ranked, compareEntries)
	return ranked
}

func compareEntries(a, b Entry) int {
	if pa, pb := streamPriority[a.StreamType], streamPriority[b.StreamType]; pa != pb {
		return pa - pb
	}
	if a.Height != b.Height {
		return b.Height - a.Height
	}
	ma, mb := isMP4Family(a.Extension), isMP4Family(b.Extension)
	switch {
	case ma && !mb:
		return -1
	case mb && !ma:
		return 1
	}
	return 0
}

func isMP4Family(ext string) bool {
	ext = strings.ToLower(ext)
	return strings.HasPrefix(ext, "mp4") || ext == "m4v" || ext == "m4a"
}

// BestAudio returns the index of the largest audio entry, or -1
func BestAudio(entries []Entry) int {
	best := -1
	for i, e := range entries {
		if e.StreamType != StreamAudio {
			continue
		}
		if best < 0 || e.SizeBytes() > entries[best].SizeBytes() {
			best = i
		}
	}
	return best
}

// dedupeEntries drops entries whose URL (without query) was already seen
func dedupeEntries(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		key := StripQuery(e.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// dedupeAlbum drops items whose URL (without query) was already seen,
// keeping first-seen order
func dedupeAlbum(items []AlbumEntry) []AlbumEntry {
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		if seen[it.Key()] {
			continue
		}
		seen[it.Key()] = true
		out = append(out, it)
	}
	return out
}
