package fetcher

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/scipunch/campusfeed/fetcher/types"
)

// SourceType identifies how a feed URL is retrieved
type SourceType = string

var (
	HTTP = SourceType("http")
	File = SourceType("file")
)

// Options configure the fetcher returned by GetFetcher
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// DetectSourceType picks the source type from the URL scheme.
// A URL without a scheme is treated as a local path.
func DetectSourceType(rawURL string) (SourceType, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("feed URL is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid feed URL '%s': %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return HTTP, nil
	case "file", "":
		return File, nil
	default:
		return "", fmt.Errorf("unsupported feed URL scheme: %s", u.Scheme)
	}
}

// GetFetcher creates the fetcher matching the feed URL
func GetFetcher(rawURL string, opts Options) (types.FeedFetcher, error) {
	st, err := DetectSourceType(rawURL)
	if err != nil {
		return nil, err
	}

	switch st {
	case HTTP:
		return NewRSSFetcher(opts.Timeout, opts.UserAgent), nil
	case File:
		return NewFileFetcher(), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", st)
	}
}
