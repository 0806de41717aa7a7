package extractor

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// FindDownloadEntries walks any nested map/slice value and collects every
// map holding a string "url", in traversal order. Map keys are
// visited in sorted order so the result is stable.
func FindDownloadEntries(v any) []map[string]any {
	var out []map[string]any
	findEntries(v, &out)
	return out
}

func findEntries(v any, out *[]map[string]any) {
	switch node := v.(type) {
	case map[string]any:
		if _, ok := node["url"].(string); ok {
			*out = append(*out, node)
		}
		for _, k := range sortedKeys(node) {
			findEntries(node[k], out)
		}
	case []any:
		for _, item := range node {
			findEntries(item, out)
		}
	case []map[string]any:
		for _, item := range node {
			findEntries(item, out)
		}
	}
}

// usableRecords keeps the records NormalizeRecord accepts
func usableRecords(recs []map[string]any) []map[string]any {
	var out []map[string]any
	for _, rec := range recs {
		if _, ok := NormalizeRecord(rec); ok {
			out = append(out, rec)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// preferredExtensions is the container order ChooseEntry favors
var preferredExtensions = []string{"mp4", "mkv", "webm", "mp3", "m4a"}

// ChooseEntry picks the record whose extension matches the earliest
// preferred container, falling back to the first record. It returns nil
// for an empty list.
func ChooseEntry(records []map[string]any) map[string]any {
	if len(records) == 0 {
		return nil
	}
	for _, pref := range preferredExtensions {
		for _, rec := range records {
			if strings.HasPrefix(recordExtension(rec), pref) {
				return rec
			}
		}
	}
	return records[0]
}

func recordExtension(rec map[string]any) string {
	return strings.ToLower(strings.TrimPrefix(stringField(rec, "extension", "ext"), "."))
}

// ClassifyStream derives the stream type from video and audio codec
// indicators. nil, "" and "none" count as absent.
func ClassifyStream(vcodec, acodec any) (StreamType, bool) {
	hasVideo := codecKnown(vcodec)
	hasAudio := codecKnown(acodec)
	switch {
	case hasVideo && hasAudio:
		return StreamVideoWithAudio, true
	case hasVideo:
		return StreamVideoOnly, false
	case hasAudio:
		return StreamAudio, true
	default:
		return StreamUnknown, false
	}
}

func codecKnown(v any) bool {
	switch c := v.(type) {
	case nil:
		return false
	case string:
		c = strings.ToLower(strings.TrimSpace(c))
		return c != "" && c != "none"
	case bool:
		return c
	default:
		return true
	}
}

// NormalizeRecord converts a backend record into an Entry. It reports false
// when the record carries no usable URL.
func NormalizeRecord(rec map[string]any) (Entry, bool) {
	u := strings.TrimSpace(stringField(rec, "url", "download_url", "download_link", "link"))
	if u == "" {
		return Entry{}, false
	}

	ext := recordExtension(rec)
	if ext == "" {
		ext = extensionFromURL(u)
	}

	st, hasAudio := ClassifyStream(rec["vcodec"], rec["acodec"])
	if st == StreamUnknown {
		if b, ok := rec["has_audio"].(bool); ok {
			hasAudio = b
		}
	}

	e := Entry{
		URL:        u,
		Extension:  ext,
		StreamType: st,
		HasAudio:   hasAudio,
		Raw:        rec,
	}

	label := stringField(rec, "resolution", "quality", "qualityLabel", "label", "format_note")
	if h, ok := intField(rec, "height"); ok && h > 0 {
		e.Height = int(h)
	} else {
		e.Height = heightFromLabel(label)
	}
	if e.Height > 0 {
		e.Resolution = fmt.Sprintf("%dp", e.Height)
	} else {
		e.Resolution = label
	}

	e.Size, e.SizeText = ParseSize(firstField(rec, "size_bytes", "filesize", "file_size", "size", "filesize_approx"))
	if e.Size == nil {
		e.Size = SizeFromURL(u)
	}
	e.Label = entryLabel(e)
	return e, true
}

// entryLabel renders "<resolution> • <size>" for display
func entryLabel(e Entry) string {
	name := e.Resolution
	if name == "" {
		name = strings.ToUpper(e.Extension)
	}
	if e.StreamType == StreamAudio && name == "" {
		name = "Audio"
	}
	size := e.SizeText
	if e.Size != nil {
		size = FormatSize(*e.Size)
	}
	switch {
	case name == "":
		return size
	case size == "":
		return name
	default:
		return name + " • " + size
	}
}

var (
	sizeRegex   = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([KMGT]i?B|B)$`)
	heightRegex = regexp.MustCompile(`(\d{3,4})p`)
)

// ParseSize reads a size from a backend value. Numbers and numeric strings
// are bytes. Formatted strings such as "159.9 KB" use binary multiples
// (1 KB = 1024 B). Anything else is returned as display text with no byte
// value.
func ParseSize(v any) (*int64, string) {
	switch s := v.(type) {
	case nil:
		return nil, ""
	case int64:
		if s >= 0 {
			return &s, ""
		}
	case int:
		if s >= 0 {
			n := int64(s)
			return &n, ""
		}
	case float64:
		if s >= 0 {
			n := int64(s)
			return &n, ""
		}
	case string:
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, ""
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
			return &n, ""
		}
		if m := sizeRegex.FindStringSubmatch(s); m != nil {
			unit := strings.ToUpper(m[2])
			if unit != "B" {
				unit = unit[:1] + "iB"
			}
			if b, err := humanize.ParseBytes(m[1] + " " + unit); err == nil {
				n := int64(b)
				return &n, ""
			}
		}
		return nil, s
	}
	return nil, ""
}

// SizeFromURL recovers the byte length some CDNs embed as the "clen" query
// parameter
func SizeFromURL(raw string) *int64 {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	clen := u.Query().Get("clen")
	if clen == "" {
		return nil
	}
	n, err := strconv.ParseInt(clen, 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// FormatSize renders bytes with binary units
func FormatSize(n int64) string {
	if n < 0 {
		return ""
	}
	return humanize.IBytes(uint64(n))
}

// StripQuery returns u without its query string and fragment
func StripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func extensionFromURL(u string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(StripQuery(u)), "."))
	if len(ext) > 5 {
		return ""
	}
	return ext
}

func heightFromLabel(label string) int {
	m := heightRegex.FindStringSubmatch(label)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	return h
}

// stringField returns the first non-empty string (or number rendered as a
// string) stored under keys
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case int64:
			return strconv.FormatInt(v, 10)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func intField(m map[string]any, keys ...string) (int64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case float64:
			return int64(v), true
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func firstField(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func mapField(m map[string]any, key string) map[string]any {
	sub, _ := m[key].(map[string]any)
	return sub
}

func listField(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}
