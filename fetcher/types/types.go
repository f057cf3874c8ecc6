package types

import (
	"context"
	"time"
)

// Feed represents a collection of items from a feed source
type Feed struct {
	Title       string
	Description string
	Items       []FeedItem

	// Malformed is set when the document failed strict parsing and Items
	// holds only what could be recovered.
	Malformed  bool
	ParseError string

	// NotModified is set when the server answered a conditional request
	// with 304. Items is empty in that case.
	NotModified bool
	Validators  Validators
}

// FeedItem represents a single item in a feed
type FeedItem struct {
	Title        string
	Link         string
	Description  string
	Content      string
	Published    time.Time
	PublishedRaw string
	GUID         string // Unique identifier (GUID for RSS, id for Atom)

	// Fields carries loosely typed values the source delivered besides the
	// standard ones: custom elements and namespaced extensions. Values may
	// be strings, numbers, booleans, lists or nested maps.
	Fields map[string]any
}

// Validators are HTTP cache validators used for conditional requests
type Validators struct {
	ETag         string
	LastModified string
}

// IsZero reports whether no validator is set
func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

// FeedFetcher is an interface for fetching feeds from different sources
type FeedFetcher interface {
	Fetch(ctx context.Context, url string, validators Validators) (Feed, error)
}
