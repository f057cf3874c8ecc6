package fetcher

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/scipunch/campusfeed/fetcher/types"
)

var (
	rssItemRe   = regexp.MustCompile(`(?is)<item\b[^>]*>.*?</item\s*>`)
	atomEntryRe = regexp.MustCompile(`(?is)<entry\b[^>]*>.*?</entry\s*>`)
	rssRootRe   = regexp.MustCompile(`(?is)<rss\b[^>]*>`)
	atomRootRe  = regexp.MustCompile(`(?is)<feed\b[^>]*>`)
)

// parseFeed parses a feed document. When the document is malformed it
// retries on a cleaned copy and then item by item, returning whatever
// was recoverable with Malformed set.
func parseFeed(p *gofeed.Parser, body []byte) types.Feed {
	gf, err := p.Parse(bytes.NewReader(body))
	if err == nil {
		return convertFeed(gf)
	}
	parseErr := err
	slog.Warn("feed failed strict parsing, attempting recovery", "error", parseErr)

	cleaned := stripIllegalXML(body)
	if gf, err := p.Parse(bytes.NewReader(cleaned)); err == nil {
		feed := convertFeed(gf)
		feed.Malformed = true
		feed.ParseError = parseErr.Error()
		return feed
	}

	feed := salvageItems(p, cleaned)
	feed.Malformed = true
	feed.ParseError = parseErr.Error()
	slog.Warn("recovered items from malformed feed", "items", len(feed.Items))
	return feed
}

// salvageItems parses every <item> or <entry> block on its own inside a
// minimal envelope and keeps the blocks that parse
func salvageItems(p *gofeed.Parser, body []byte) types.Feed {
	var feed types.Feed

	blocks := rssItemRe.FindAll(body, -1)
	root := rssRootRe.Find(body)
	if root == nil {
		root = []byte(`<rss version="2.0">`)
	}
	head, tail := string(root)+"<channel><title></title>", "</channel></rss>"

	if len(blocks) == 0 {
		blocks = atomEntryRe.FindAll(body, -1)
		root = atomRootRe.Find(body)
		if root == nil {
			root = []byte(`<feed xmlns="http://www.w3.org/2005/Atom">`)
		}
		head, tail = string(root)+"<title></title>", "</feed>"
	}

	for i, block := range blocks {
		doc := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>%s%s%s`, head, block, tail)
		gf, err := p.ParseString(doc)
		if err != nil {
			slog.Debug("dropping unparseable feed item", "index", i, "error", err)
			continue
		}
		feed.Items = append(feed.Items, convertFeed(gf).Items...)
	}
	return feed
}

// stripIllegalXML drops control characters and invalid UTF-8 that XML
// 1.0 forbids
func stripIllegalXML(body []byte) []byte {
	out := make([]byte, 0, len(body))
	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		switch {
		case r == utf8.RuneError && size == 1:
		case r < 0x20 && r != '\t' && r != '\n' && r != '\r':
		case r == 0xFFFE || r == 0xFFFF:
		default:
			out = append(out, body[:size]...)
		}
		body = body[size:]
	}
	return out
}

func convertFeed(gf *gofeed.Feed) types.Feed {
	feed := types.Feed{
		Title:       gf.Title,
		Description: gf.Description,
		Items:       make([]types.FeedItem, 0, len(gf.Items)),
	}
	for _, item := range gf.Items {
		if item == nil {
			continue
		}
		feed.Items = append(feed.Items, convertItem(item))
	}
	return feed
}

func convertItem(item *gofeed.Item) types.FeedItem {
	feedItem := types.FeedItem{
		Title:        item.Title,
		Link:         item.Link,
		Description:  item.Description,
		Content:      item.Content,
		GUID:         item.GUID,
		PublishedRaw: item.Published,
	}

	// Parse published date if available
	if item.PublishedParsed != nil {
		feedItem.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		feedItem.Published = *item.UpdatedParsed
	} else {
		feedItem.Published = time.Time{}
	}
	if feedItem.PublishedRaw == "" {
		feedItem.PublishedRaw = item.Updated
	}

	if len(item.Custom) == 0 && len(item.Extensions) == 0 {
		return feedItem
	}
	feedItem.Fields = make(map[string]any, len(item.Custom))
	for k, v := range item.Custom {
		feedItem.Fields[k] = v
	}
	for prefix, elems := range item.Extensions {
		for name, list := range elems {
			feedItem.Fields[prefix+":"+name] = extensionValues(list)
		}
	}
	return feedItem
}

func extensionValues(list []ext.Extension) any {
	if len(list) == 1 {
		return extensionValue(list[0])
	}
	values := make([]any, 0, len(list))
	for _, e := range list {
		values = append(values, extensionValue(e))
	}
	return values
}

func extensionValue(e ext.Extension) any {
	if len(e.Attrs) == 0 && len(e.Children) == 0 {
		return e.Value
	}
	m := make(map[string]any, len(e.Attrs)+len(e.Children)+1)
	if e.Value != "" {
		m["value"] = e.Value
	}
	for k, v := range e.Attrs {
		m["@"+k] = v
	}
	for name, children := range e.Children {
		m[name] = extensionValues(children)
	}
	return m
}
