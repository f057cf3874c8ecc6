package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/scipunch/campusfeed/event"
	"github.com/scipunch/campusfeed/fetcher/types"
)

const expiresLayout = "01/02/2006"

var (
	postingTitleRe = regexp.MustCompile(`(?is)\s+at\b.*$`)
	employerRe     = regexp.MustCompile(`(?s)Employer:(.*?)(?:\n|<|Expires:|$)`)
	expiresRe      = regexp.MustCompile(`Expires:\s*(\d{2}/\d{2}/\d{4})`)
	remoteRe       = regexp.MustCompile(`(?i)\b(?:remote|telecommute)\b`)
	hybridRe       = regexp.MustCompile(`(?i)\bhybrid\b`)
	locationLineRe = regexp.MustCompile(`(?i)Location\s*:\s*(.+?)(?:\n|$)`)
	cityStateRe    = regexp.MustCompile(`[A-Za-z .\-'&]+?, [A-Z]{2}`)
)

// LocationSeparator joins the locations of a posting
const LocationSeparator = "; "

var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true, "DE": true, "FL": true, "GA": true,
	"HI": true, "ID": true, "IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true,
	"MA": true, "MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true,
	"SD": true, "TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true, "WI": true, "WY": true,
}

// PostingParser extracts job and internship postings. The employer goes
// to Company, the expiry date to When, and the description is not kept.
type PostingParser struct {
	html HTMLMode
}

func NewPostingParser(opts Options) (PostingParser, error) {
	p, err := New(opts)
	if err != nil {
		return PostingParser{}, err
	}
	return PostingParser{html: p.html}, nil
}

func (p PostingParser) Parse(item types.FeedItem) event.Event {
	ev := event.Event{
		Title:     CleanPostingTitle(firstText(item.Title, item.Fields["title"])),
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
	body = strings.ReplaceAll(body, "\r\n", "\n")

	if m := employerRe.FindStringSubmatch(body); m != nil {
		ev.Company = strings.TrimSpace(m[1])
	}
	if m := expiresRe.FindStringSubmatch(body); m != nil {
		if _, err := time.Parse(expiresLayout, m[1]); err == nil {
			ev.When = m[1]
		}
	}
	ev.Location = strings.Join(PostingLocations(body), LocationSeparator)
	return ev
}

// CleanPostingTitle drops the " at Employer" part of a posting title
func CleanPostingTitle(title string) string {
	return strings.TrimSpace(postingTitleRe.ReplaceAllString(title, ""))
}

// PostingLocations returns Remote and Hybrid when mentioned, followed by
// the "City, ST" entries of the Location line with a known state code.
// Entries of more than three words are skipped.
func PostingLocations(body string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(loc string) {
		if !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}

	if remoteRe.MatchString(body) {
		add("Remote")
	}
	if hybridRe.MatchString(body) {
		add("Hybrid")
	}

	m := locationLineRe.FindStringSubmatch(body)
	if m == nil {
		return out
	}
	for _, loc := range cityStateRe.FindAllString(strings.TrimSpace(m[1]), -1) {
		loc = strings.TrimSpace(loc)
		i := strings.LastIndex(loc, ", ")
		if i < 0 || !usStates[loc[i+2:]] || len(strings.Fields(loc)) > 3 {
			continue
		}
		add(loc)
	}
	return out
}
