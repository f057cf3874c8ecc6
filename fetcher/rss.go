package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mmcdole/gofeed"

	"github.com/scipunch/campusfeed/fetcher/types"
)

const (
	defaultUserAgent = "campusfeed/1.0 (+https://github.com/scipunch/campusfeed)"
	maxFeedSize      = 20 << 20
)

// RSSFetcher fetches feeds over HTTP(S) and parses them using gofeed
type RSSFetcher struct {
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	maxSize   int64
}

// NewRSSFetcher creates a new RSS fetcher. The timeout bounds the whole
// request including reading the body.
func NewRSSFetcher(timeout time.Duration, userAgent string) *RSSFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     30 * time.Second,
	}
	return &RSSFetcher{
		client:    &http.Client{Timeout: timeout, Transport: tr},
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
		maxSize:   maxFeedSize,
	}
}

// Fetch retrieves and parses a feed from the given URL
func (f *RSSFetcher) Fetch(ctx context.Context, url string, validators types.Validators) (types.Feed, error) {
	var feed types.Feed

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return feed, &TransportError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")
	if validators.ETag != "" {
		req.Header.Set("If-None-Match", validators.ETag)
	}
	if validators.LastModified != "" {
		req.Header.Set("If-Modified-Since", validators.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return feed, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		feed.NotModified = true
		feed.Validators = validators
		return feed, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return feed, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return feed, &TransportError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > f.maxSize {
		return feed, fmt.Errorf("%w: '%s' is larger than %s", ErrTooLarge, url, humanize.IBytes(uint64(f.maxSize)))
	}

	feed = parseFeed(f.parser, body)
	feed.Validators = types.Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	return feed, nil
}
