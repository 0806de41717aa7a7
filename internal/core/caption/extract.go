package caption

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// captionFields are the keys (case-insensitive) whose string values are
// caption candidates
var captionFields = map[string]bool{
	"caption":      true,
	"title":        true,
	"description":  true,
	"text":         true,
	"post_caption": true,
}

// edgeFields hold {"edges": [{"node": {"text": ...}}]} containers
var edgeFields = map[string]bool{
	"edge_media_to_caption": true,
	"edge_media_to_comment": true,
}

// Candidates deep-walks v and returns every raw caption candidate in walk
// order. Map keys are visited in sorted order so the result is stable.
func Candidates(v any) []string {
	var out []string
	walk(v, &out)
	return out
}

func walk(v any, out *[]string) {
	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			val := node[k]
			kl := strings.ToLower(k)
			if captionFields[kl] {
				if s, ok := val.(string); ok {
					*out = append(*out, s)
				}
			}
			if edgeFields[kl] {
				*out = append(*out, EdgeTexts(val)...)
			}
			walk(val, out)
		}
	case []any:
		for _, item := range node {
			walk(item, out)
		}
	}
}

// EdgeTexts reads the text values out of an edges -> node -> text container
func EdgeTexts(v any) []string {
	container, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	edges, _ := container["edges"].([]any)

	var texts []string
	for _, e := range edges {
		edge, ok := e.(map[string]any)
		if !ok {
			continue
		}
		node, ok := edge["node"].(map[string]any)
		if !ok {
			continue
		}
		if txt, ok := node["text"].(string); ok {
			texts = append(texts, txt)
		}
	}
	return texts
}

// Extract finds the best caption anywhere inside v.
//
// The first cleaned candidate whose leading segment (before the first '#'
// and the first newline) is not a follow prompt and is longer than three
// characters wins, trimmed to that segment. Otherwise the first non-empty
// cleaned candidate is returned.
func Extract(v any) string {
	var cleaned []string
	for _, c := range Candidates(v) {
		if cc := Clean(c); cc != "" {
			cleaned = append(cleaned, cc)
		}
	}
	if len(cleaned) == 0 {
		return ""
	}

	for _, c := range cleaned {
		segment := strings.TrimSpace(strings.SplitN(c, "#", 2)[0])
		lower := strings.ToLower(segment)
		if strings.Contains(lower, "follow") && strings.Contains(lower, "@") {
			continue
		}
		segment = strings.TrimSpace(strings.SplitN(segment, "\n", 2)[0])
		if utf8.RuneCountInString(segment) > 3 {
			return segment
		}
	}
	return cleaned[0]
}

// FromFields returns the first string value stored under one of fields in m
func FromFields(m map[string]any, fields ...string) string {
	if m == nil {
		return ""
	}
	for _, f := range fields {
		if s, ok := m[f].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
