// Package fetch performs the blocking backend calls resolver chains make:
// query-parameter GET requests that return JSON, and HTML page loads.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/guiyumin/vresolve/internal/core/failure"
)

// DefaultUserAgent is sent with every backend request
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// maxBodySize caps how much of a backend response is read
const maxBodySize = 16 * 1024 * 1024

// Client performs backend requests with a per-call timeout and an in-place
// retry for transient failures (timeouts, connection errors).
type Client struct {
	HTTP       *http.Client
	UserAgent  string
	Retries    int           // extra attempts for transient failures
	RetryDelay time.Duration // fixed delay between attempts
}

// New creates a Client with the default retry policy (1 retry after 2s)
func New() *Client {
	return &Client{
		HTTP: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		UserAgent:  DefaultUserAgent,
		Retries:    1,
		RetryDelay: 2 * time.Second,
	}
}

// GetJSON requests endpoint with params and decodes the JSON body into a
// generic value (map[string]any, []any or a scalar).
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, timeout time.Duration) (any, error) {
	reqURL := endpoint
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		reqURL = endpoint + sep + params.Encode()
	}

	body, err := c.get(ctx, reqURL, "application/json", timeout)
	if err != nil {
		return nil, err
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, &failure.Error{
			Kind:    failure.UnexpectedFailure,
			Message: fmt.Sprintf("invalid JSON from %s", endpoint),
			Raw:     truncate(string(body), 2048),
			Err:     err,
		}
	}
	return normalizeNumbers(v), nil
}

// GetHTML loads pageURL and parses it into a goquery document
func (c *Client) GetHTML(ctx context.Context, pageURL string, timeout time.Duration) (*goquery.Document, error) {
	body, err := c.get(ctx, pageURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", timeout)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, failure.Wrap(err, "parsing %s", pageURL)
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, reqURL, accept string, timeout time.Duration) ([]byte, error) {
	var body []byte
	attempt := 0

	op := func() error {
		attempt++
		b, err := c.once(ctx, reqURL, accept, timeout)
		if err == nil {
			body = b
			return nil
		}
		if failure.KindOf(err).Transient() && ctx.Err() == nil {
			slog.Warn("fetch: transient failure", "url", reqURL, "attempt", attempt, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.RetryDelay), uint64(max(c.Retries, 0))),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) once(ctx context.Context, reqURL, accept string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, failure.Wrap(err, "creating request")
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", accept)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, failure.Wrap(err, "request to %s", redact(reqURL))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, failure.Wrap(err, "reading response from %s", redact(reqURL))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.HTTPStatus(resp.StatusCode, redact(reqURL), []byte(truncate(string(body), 2048)))
	}
	return body, nil
}

// ErrorMessage reports whether a decoded response is an error envelope
// ({"error": "..."} or {"error": true, "message": "..."}).
func ErrorMessage(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	switch e := m["error"].(type) {
	case string:
		if e != "" {
			return e, true
		}
	case bool:
		if e {
			if msg, ok := m["message"].(string); ok && msg != "" {
				return msg, true
			}
			return "backend reported an error", true
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg, true
		}
		return "backend reported an error", true
	}
	return "", false
}

// normalizeNumbers converts json.Number values to int64 when integral and
// float64 otherwise, so callers can type-switch on plain Go numbers.
func normalizeNumbers(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, val := range node {
			node[k] = normalizeNumbers(val)
		}
		return node
	case []any:
		for i, val := range node {
			node[i] = normalizeNumbers(val)
		}
		return node
	case json.Number:
		if i, err := node.Int64(); err == nil {
			return i
		}
		if f, err := node.Float64(); err == nil {
			return f
		}
		return node.String()
	default:
		return v
	}
}

// redact drops the query string so logged endpoints do not leak the
// resolved media URL twice
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
