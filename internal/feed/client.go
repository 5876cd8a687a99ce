// Package feed fetches and parses per-account timelines from an RSSHub
// instance.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	minimumResults = 1
	maximumResults = 100

	defaultUserAgent = "x2discord/1.0"
)

// StatusError indicates the upstream responded with a non-200 status.
// RetryAfter carries the decimal Retry-After header value in seconds when
// present (0 otherwise).
type StatusError struct {
	StatusCode int
	RetryAfter int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client fetches the latest entries for an account, newest first.
type Client interface {
	Fetch(ctx context.Context, account string, maxResults int) ([]Entry, error)
}

// RSSHubClient fetches timelines from an RSSHub instance via
// GET <base>/twitter/user/<account>.
type RSSHubClient struct {
	HTTPClient *http.Client

	// TimeoutFn provides the per-fetch timeout on each request;
	// injectable so config changes apply without rebuilding the client.
	TimeoutFn func() time.Duration

	baseURL        string
	userAgent      string
	refreshSeconds int
	parser         *gofeed.Parser
}

// NewRSSHubClient creates a client for the given base URL. refreshSeconds,
// when positive, is passed to RSSHub as the refresh query parameter.
func NewRSSHubClient(baseURL string, refreshSeconds int, timeoutFn func() time.Duration) *RSSHubClient {
	if timeoutFn == nil {
		panic("feed: NewRSSHubClient requires non-nil timeoutFn")
	}
	return &RSSHubClient{
		HTTPClient:     &http.Client{},
		TimeoutFn:      timeoutFn,
		baseURL:        strings.TrimRight(baseURL, "/"),
		userAgent:      defaultUserAgent,
		refreshSeconds: refreshSeconds,
		parser:         gofeed.NewParser(),
	}
}

// BaseURL returns the normalized base URL.
func (c *RSSHubClient) BaseURL() string {
	return c.baseURL
}

// Fetch retrieves up to maxResults entries for the account, newest first.
// maxResults is clamped to [1, 100].
func (c *RSSHubClient) Fetch(ctx context.Context, account string, maxResults int) ([]Entry, error) {
	normalized := strings.TrimPrefix(strings.TrimSpace(account), "@")
	limit := maxResults
	if limit < minimumResults {
		limit = minimumResults
	}
	if limit > maximumResults {
		limit = maximumResults
	}

	fetchURL := c.baseURL + "/twitter/user/" + url.PathEscape(normalized)
	if c.refreshSeconds > 0 {
		fetchURL += "?refresh=" + strconv.Itoa(c.refreshSeconds)
	}

	body, err := c.download(ctx, fetchURL)
	if err != nil {
		return nil, err
	}

	parsed, err := c.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", fetchURL, err)
	}

	items := parsed.Items
	if len(items) > limit {
		items = items[:limit]
	}
	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		raw := item.Description
		if raw == "" {
			raw = item.Content
		}
		if raw == "" {
			raw = item.Title
		}
		link := item.Link
		if link == "" {
			link = "https://x.com/" + normalized
		}
		entries = append(entries, Entry{
			ID:      entryID(item.GUID, item.Link, normalized, i),
			Link:    link,
			Text:    StripHTML(raw),
			RawText: raw,
		})
	}
	return entries, nil
}

func (c *RSSHubClient) download(ctx context.Context, fetchURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := c.TimeoutFn()
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			URL:        fetchURL,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	return body, nil
}

// parseRetryAfter returns the decimal-integer Retry-After value in seconds,
// or 0 when the header is absent or not a plain integer (the HTTP-date form
// is not used by RSSHub).
func parseRetryAfter(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
