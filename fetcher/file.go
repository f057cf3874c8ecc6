package fetcher

import (
	"context"
	"os"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/scipunch/campusfeed/fetcher/types"
)

// FileFetcher reads a feed document from the local filesystem.
// Used for offline runs and fixtures.
type FileFetcher struct {
	parser *gofeed.Parser
}

// NewFileFetcher creates a new local file fetcher
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{parser: gofeed.NewParser()}
}

// Fetch reads and parses the feed at url, which is a file:// URL or a
// plain path. Validators are ignored.
func (f *FileFetcher) Fetch(ctx context.Context, url string, _ types.Validators) (types.Feed, error) {
	var feed types.Feed
	if err := ctx.Err(); err != nil {
		return feed, &TransportError{URL: url, Err: err}
	}

	path := strings.TrimPrefix(url, "file://")
	body, err := os.ReadFile(path)
	if err != nil {
		return feed, &TransportError{URL: url, Err: err}
	}
	return parseFeed(f.parser, body), nil
}
