package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scipunch/campusfeed/fetcher/types"
)

const validFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:events="http://example.com/events">
<channel>
  <title>Campus Events</title>
  <description>Upcoming events</description>
  <item>
    <title>Spring Fest (Free Entry)</title>
    <link>http://example.com/spring-fest</link>
    <description>When: May 3, 2025
Location: Quad
Free food and music.</description>
    <pubDate>Wed, 29 Jan 2025 20:13:44 +0000</pubDate>
    <guid>spring-fest</guid>
    <events:host>Student Union</events:host>
  </item>
  <item>
    <title>Career Fair</title>
    <link>http://example.com/career-fair</link>
    <description>When: May 5, 2025</description>
    <pubDate>Thu, 30 Jan 2025 10:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

const brokenItemFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Campus Events</title>
  <item>
    <title>First</title>
    <description>When: Monday</description>
  </item>
  <item>
    <title>Q&A <3 students</title>
    <description>Broken</description>
  </item>
  <item>
    <title>Third</title>
    <description>Location: Library</description>
  </item>
</channel>
</rss>`

func TestRSSFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(validFeed))
	}))
	defer srv.Close()

	f := NewRSSFetcher(5*time.Second, "")
	feed, err := f.Fetch(context.Background(), srv.URL, types.Validators{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if feed.Malformed {
		t.Errorf("expected well-formed feed, got parse error %q", feed.ParseError)
	}
	if feed.Title != "Campus Events" {
		t.Errorf("unexpected feed title: %q", feed.Title)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(feed.Items))
	}

	first := feed.Items[0]
	if first.Title != "Spring Fest (Free Entry)" {
		t.Errorf("unexpected title: %q", first.Title)
	}
	if first.Link != "http://example.com/spring-fest" {
		t.Errorf("unexpected link: %q", first.Link)
	}
	if first.Published.IsZero() {
		t.Error("expected parsed publication date")
	}
	if first.PublishedRaw != "Wed, 29 Jan 2025 20:13:44 +0000" {
		t.Errorf("unexpected raw publication date: %q", first.PublishedRaw)
	}
	if got := first.Fields["events:host"]; got != "Student Union" {
		t.Errorf("expected extension field to be carried, got %#v", got)
	}
	if feed.Validators.ETag != `"v1"` {
		t.Errorf("expected ETag validator, got %q", feed.Validators.ETag)
	}
}

func TestRSSFetcher_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte(validFeed))
	}))
	defer srv.Close()

	f := NewRSSFetcher(5*time.Second, "")
	feed, err := f.Fetch(context.Background(), srv.URL, types.Validators{ETag: `"v1"`})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !feed.NotModified {
		t.Error("expected NotModified")
	}
	if len(feed.Items) != 0 {
		t.Errorf("expected no items, got %d", len(feed.Items))
	}
}

func TestRSSFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewRSSFetcher(5*time.Second, "")
	_, err := f.Fetch(context.Background(), srv.URL, types.Validators{})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected transport error with status 500, got %v", err)
	}
}

func TestRSSFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewRSSFetcher(50*time.Millisecond, "")
	_, err := f.Fetch(context.Background(), srv.URL, types.Validators{})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	var te *TransportError
	if !errors.As(err, &te) || !te.Timeout() {
		t.Errorf("expected timeout transport error, got %v", err)
	}
}

func TestRSSFetcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewRSSFetcher(time.Second, "")
	_, err := f.Fetch(context.Background(), url, types.Validators{})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable for closed server, got %v", err)
	}
}

func TestRSSFetcher_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validFeed))
	}))
	defer srv.Close()

	f := NewRSSFetcher(time.Second, "")
	f.maxSize = int64(len(validFeed)) - 1
	_, err := f.Fetch(context.Background(), srv.URL, types.Validators{})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Error("oversized feed reported as unreachable")
	}

	// exactly at the limit is fine
	f.maxSize = int64(len(validFeed))
	feed, err := f.Fetch(context.Background(), srv.URL, types.Validators{})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if feed.Malformed || len(feed.Items) != 2 {
		t.Errorf("unexpected feed: malformed=%v items=%d", feed.Malformed, len(feed.Items))
	}
}

func TestRSSFetcher_MalformedItemRecovered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(brokenItemFeed))
	}))
	defer srv.Close()

	f := NewRSSFetcher(5*time.Second, "")
	feed, err := f.Fetch(context.Background(), srv.URL, types.Validators{})
	if err != nil {
		t.Fatalf("malformed feed must not be a transport failure: %v", err)
	}
	if !feed.Malformed {
		t.Fatal("expected feed to be marked malformed")
	}
	if feed.ParseError == "" {
		t.Error("expected parse error to be recorded")
	}
	if len(feed.Items) != 2 {
		t.Fatalf("expected 2 recovered items, got %d", len(feed.Items))
	}
	if feed.Items[0].Title != "First" || feed.Items[1].Title != "Third" {
		t.Errorf("unexpected recovered titles: %q, %q", feed.Items[0].Title, feed.Items[1].Title)
	}
}

func TestFileFetcher_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	if err := os.WriteFile(path, []byte(validFeed), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	f := NewFileFetcher()
	for _, url := range []string{path, "file://" + path} {
		feed, err := f.Fetch(context.Background(), url, types.Validators{})
		if err != nil {
			t.Fatalf("Fetch(%s) failed: %v", url, err)
		}
		if len(feed.Items) != 2 {
			t.Errorf("Fetch(%s): expected 2 items, got %d", url, len(feed.Items))
		}
	}

	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.xml"), types.Validators{})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable for missing file, got %v", err)
	}
}

func TestDetectSourceType(t *testing.T) {
	tests := []struct {
		url     string
		want    SourceType
		wantErr bool
	}{
		{"https://events.example.edu/rss", HTTP, false},
		{"HTTP://events.example.edu/rss", HTTP, false},
		{"file:///tmp/feed.xml", File, false},
		{"testdata/feed.xml", File, false},
		{"ftp://example.com/feed", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := DetectSourceType(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DetectSourceType(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DetectSourceType(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
