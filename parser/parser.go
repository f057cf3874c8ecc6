package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/scipunch/campusfeed/event"
	"github.com/scipunch/campusfeed/fetcher/types"
)

type HTMLMode = string

var (
	HTMLAuto   = HTMLMode("auto")
	HTMLAlways = HTMLMode("always")
	HTMLNever  = HTMLMode("never")
)

// titleSuffixRe matches the last parenthetical group of a title together
// with any trailing text that has no parentheses
var titleSuffixRe = regexp.MustCompile(`(?i)[\s\p{Zs}]*\(+[^()]*\)+[^()]*$`)

// Extractor turns a raw feed item into a row. Implementations never
// fail: missing data degrades to the empty string.
type Extractor interface {
	Parse(item types.FeedItem) event.Event
}

// ForKind returns the extractor for rows of the given kind
func ForKind(kind event.Kind, opts Options) (Extractor, error) {
	switch kind {
	case event.KindEvent:
		return New(opts)
	case event.KindJob, event.KindInternship:
		return NewPostingParser(opts)
	}
	return nil, fmt.Errorf("no extractor for kind '%s'", kind)
}

// Options configure field extraction
type Options struct {
	WhenLabels     []string `toml:"when_labels" yaml:"when_labels"`
	LocationLabels []string `toml:"location_labels" yaml:"location_labels"`
	HTML           HTMLMode `toml:"html" yaml:"html"`
}

func DefaultOptions() Options {
	return Options{
		WhenLabels:     []string{"When"},
		LocationLabels: []string{"Location"},
		HTML:           HTMLAuto,
	}
}

// Parser turns raw feed items into events. It holds only compiled
// patterns and is safe to share.
type Parser struct {
	labelLine *regexp.Regexp
	// inlineLabel only matches labels in their configured case
	inlineLabel *regexp.Regexp
	labels      map[string]event.Field
	html        HTMLMode
}

// New compiles the label patterns described by opts
func New(opts Options) (Parser, error) {
	var p Parser

	switch opts.HTML {
	case "":
		p.html = HTMLAuto
	case HTMLAuto, HTMLAlways, HTMLNever:
		p.html = opts.HTML
	default:
		return p, fmt.Errorf("unknown html mode: %s", opts.HTML)
	}

	p.labels = make(map[string]event.Field)
	for field, labels := range map[event.Field][]string{
		event.When:     opts.WhenLabels,
		event.Location: opts.LocationLabels,
	} {
		if len(labels) == 0 {
			return p, fmt.Errorf("no labels configured for %s", field)
		}
		for _, l := range labels {
			key := strings.ToLower(strings.TrimSpace(l))
			if key == "" {
				return p, fmt.Errorf("empty label configured for %s", field)
			}
			if other, ok := p.labels[key]; ok && other != field {
				return p, fmt.Errorf("label '%s' used for both %s and %s", l, other, field)
			}
			p.labels[key] = field
		}
	}

	lower := make([]string, 0, len(p.labels))
	for l := range p.labels {
		lower = append(lower, l)
	}
	var configured []string
	for _, l := range append(append([]string(nil), opts.WhenLabels...), opts.LocationLabels...) {
		configured = append(configured, strings.TrimSpace(l))
	}

	var err error
	p.labelLine, err = regexp.Compile(`(?i)^[\s\p{Zs}]*(` + alternation(lower) + `)[\s\p{Zs}]*:(.*)$`)
	if err != nil {
		return p, fmt.Errorf("failed to compile label pattern: %w", err)
	}
	p.inlineLabel, err = regexp.Compile(`\b(` + alternation(configured) + `)[\s\p{Zs}]*:`)
	if err != nil {
		return p, fmt.Errorf("failed to compile inline label pattern: %w", err)
	}
	return p, nil
}

// alternation joins quoted labels longest first so that
// "Location Details" wins over "Location"
func alternation(labels []string) string {
	alts := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if seen[l] {
			continue
		}
		seen[l] = true
		alts = append(alts, regexp.QuoteMeta(l))
	}
	sort.Slice(alts, func(i, j int) bool {
		if len(alts[i]) != len(alts[j]) {
			return len(alts[i]) > len(alts[j])
		}
		return alts[i] < alts[j]
	})
	return strings.Join(alts, "|")
}

// Parse extracts an event from a feed item. It never fails: anything
// missing or unreadable degrades to the empty string.
func (p Parser) Parse(item types.FeedItem) event.Event {
	ev := event.Event{
		Title:     CleanTitle(firstText(item.Title, item.Fields["title"])),
		Link:      strings.TrimSpace(firstText(item.Link, item.Fields["link"])),
		Published: strings.TrimSpace(firstText(item.PublishedRaw, item.Fields["published"], item.Fields["pubDate"])),
	}

	body := firstText(item.Description, item.Content, item.Fields["description"], item.Fields["summary"])
	switch {
	case p.html == HTMLAlways:
		body = htmlToText(body)
	case p.html == HTMLAuto && looksLikeHTML(body):
		body = htmlToText(body)
	}

	values, description := p.scan(body)
	ev.When = values[event.When]
	ev.Location = values[event.Location]
	ev.Description = description
	return ev
}

// CleanTitle strips a trailing parenthetical annotation such as "(Free)"
// and surrounding whitespace
func CleanTitle(title string) string {
	return strings.TrimSpace(titleSuffixRe.ReplaceAllString(title, ""))
}

// scan walks the body line by line. Lines starting with a label supply
// field values and are dropped; everything else is the description.
// A value found at the start of a line beats one split off the middle
// of another label's line.
func (p Parser) scan(body string) (map[event.Field]string, string) {
	values := make(map[event.Field]string, 2)
	if strings.TrimSpace(body) == "" {
		return values, ""
	}
	inline := make(map[event.Field]string, 2)

	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")

	var rest []string
	for _, line := range strings.Split(body, "\n") {
		m := p.labelLine.FindStringSubmatch(line)
		if m == nil {
			rest = append(rest, line)
			continue
		}
		p.assign(values, inline, m[1], m[2])
	}
	for field, v := range inline {
		if values[field] == "" {
			values[field] = v
		}
	}
	return values, strings.TrimSpace(strings.Join(rest, "\n"))
}

// assign stores the value following a line-start label into values. A
// remainder that contains another label is split there and the split
// values go to inline.
func (p Parser) assign(values, inline map[event.Field]string, label, remainder string) {
	dst := values
	for {
		field := p.labels[strings.ToLower(label)]
		value := remainder
		next := p.inlineLabel.FindStringSubmatchIndex(remainder)
		if next != nil {
			value = remainder[:next[0]]
		}
		// First non-empty occurrence wins
		if dst[field] == "" {
			dst[field] = strings.TrimSpace(value)
		}
		if next == nil {
			return
		}
		dst = inline
		label = remainder[next[2]:next[3]]
		remainder = remainder[next[1]:]
	}
}
