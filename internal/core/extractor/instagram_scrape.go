package extractor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scrape loads the public post page and walks its embedded JSON payload for
// carousel media. It returns the raw caption found alongside and the media
// URLs in document order; failures yield nothing.
func (i *InstagramExtractor) scrape(ctx context.Context, rawURL string) (string, []string) {
	pageURL := StripQuery(rawURL)
	doc, err := i.deps.Fetch.GetHTML(ctx, pageURL, i.deps.Options.ScrapeTimeout)
	if err != nil {
		i.log.Warn("page scrape failed", "url", pageURL, "error", err)
		return "", nil
	}

	payload := embeddedPayload(doc)
	if payload == nil {
		i.log.Debug("no embedded JSON in page", "url", pageURL)
		return "", nil
	}

	var w sidecarWalker
	w.walk(payload)
	return w.caption, w.urls
}

// embeddedPayload finds the page data in a __NEXT_DATA__ script or in the
// window._sharedData assignment
func embeddedPayload(doc *goquery.Document) any {
	var payload any
	if text := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text()); text != "" {
		if err := json.Unmarshal([]byte(text), &payload); err == nil {
			return payload
		}
	}

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, "window._sharedData")
		if idx < 0 {
			return true
		}
		text = text[idx+len("window._sharedData"):]
		eq := strings.IndexByte(text, '=')
		if eq < 0 {
			return true
		}
		text = strings.TrimSpace(text[eq+1:])
		text = strings.TrimSuffix(text, ";")
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			payload = nil
			return true
		}
		return false
	})
	return payload
}

// sidecarWalker collects media from GraphImage, GraphVideo and GraphSidecar
// nodes and the first caption edge
type sidecarWalker struct {
	caption string
	urls    []string
	seen    map[string]bool
}

func (w *sidecarWalker) add(u string) {
	if u == "" {
		return
	}
	if w.seen == nil {
		w.seen = make(map[string]bool)
	}
	if w.seen[u] {
		return
	}
	w.seen[u] = true
	w.urls = append(w.urls, u)
}

func (w *sidecarWalker) walk(v any) {
	switch node := v.(type) {
	case map[string]any:
		if w.caption == "" {
			if edges := listField(mapField(node, "edge_media_to_caption"), "edges"); len(edges) > 0 {
				for _, edge := range edges {
					em, _ := edge.(map[string]any)
					if text := stringField(mapField(em, "node"), "text"); text != "" {
						w.caption = text
						break
					}
				}
			}
		}

		switch node["__typename"] {
		case "GraphImage", "GraphVideo":
			w.add(nodeMediaURL(node))
		case "GraphSidecar":
			for _, edge := range listField(mapField(node, "edge_sidecar_to_children"), "edges") {
				em, _ := edge.(map[string]any)
				w.add(nodeMediaURL(mapField(em, "node")))
			}
		}

		for _, k := range sortedKeys(node) {
			w.walk(node[k])
		}
	case []any:
		for _, item := range node {
			w.walk(item)
		}
	}
}

// nodeMediaURL prefers the video URL for video nodes and the display URL
// otherwise
func nodeMediaURL(node map[string]any) string {
	if node == nil {
		return ""
	}
	if node["__typename"] == "GraphVideo" || node["is_video"] == true {
		if u := stringField(node, "video_url"); u != "" {
			return u
		}
	}
	return stringField(node, "display_url", "video_url", "url")
}
