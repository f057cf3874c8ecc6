package parser

import (
	"reflect"
	"testing"

	"github.com/scipunch/campusfeed/event"
	"github.com/scipunch/campusfeed/fetcher/types"
)

func newTestPostingParser(t *testing.T) PostingParser {
	t.Helper()
	p, err := NewPostingParser(DefaultOptions())
	if err != nil {
		t.Fatalf("NewPostingParser failed: %v", err)
	}
	return p
}

func TestPostingParser_Parse(t *testing.T) {
	p := newTestPostingParser(t)

	got := p.Parse(types.FeedItem{
		Title: "Sample Job at This Awesome Place",
		Description: "Employer: This Awesome Place \n\n" +
			"Expires: 08/01/2025 \n\n" +
			"This is a description" +
			"Location: Boston, MA, Detriot, MI, Remote, Hybrid " +
			"More information is here for some reason",
		PublishedRaw: "Wed, 29 Jan 2025 20:13:44 +0000",
		Link:         "http://example.com/job1",
	})

	want := event.Event{
		Title:     "Sample Job",
		Company:   "This Awesome Place",
		When:      "08/01/2025",
		Location:  "Remote; Hybrid; Boston, MA; Detriot, MI",
		Published: "Wed, 29 Jan 2025 20:13:44 +0000",
		Link:      "http://example.com/job1",
	}
	if got != want {
		t.Errorf("Parse() = %+v, want %+v", got, want)
	}
}

func TestPostingParser_Expires(t *testing.T) {
	p := newTestPostingParser(t)

	tests := []struct {
		name string
		body string
		when string
	}{
		{"valid", "Employer: Test Company\n\nExpires: 12/31/2025", "12/31/2025"},
		{"impossible date", "Employer: Test Company\n\nExpires: 13/45/2025", ""},
		{"not a date", "Employer: Test Company\n\nExpires: not-a-date", ""},
		{"missing", "Employer: Test Company", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(types.FeedItem{Title: "Job", Description: tt.body})
			if got.When != tt.when {
				t.Errorf("When = %q, want %q", got.When, tt.when)
			}
			if got.Company != "Test Company" {
				t.Errorf("Company = %q", got.Company)
			}
		})
	}
}

func TestPostingParser_Employer(t *testing.T) {
	p := newTestPostingParser(t)

	tests := []struct {
		body    string
		company string
	}{
		{"Employer: Tech Co.Expires: 12/31/2025", "Tech Co."},
		{"Employer: Tech Co.\nMore text", "Tech Co."},
		{"Employer: <b>Tech Co.</b>", "Tech Co."},
		{"No employer here", ""},
	}

	for _, tt := range tests {
		got := p.Parse(types.FeedItem{Title: "Job", Description: tt.body})
		if got.Company != tt.company {
			t.Errorf("body %q: Company = %q, want %q", tt.body, got.Company, tt.company)
		}
	}
}

func TestCleanPostingTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sample Job at This Awesome Place", "Sample Job"},
		{"Data Analyst AT Big Corp", "Data Analyst"},
		{"Senior Attorney", "Senior Attorney"},
		{"Software Engineer - Internship @ Tech Co. (Remote/Hybrid)", "Software Engineer - Internship @ Tech Co. (Remote/Hybrid)"},
		{"  ", ""},
	}

	for _, tt := range tests {
		if got := CleanPostingTitle(tt.in); got != tt.want {
			t.Errorf("CleanPostingTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPostingLocations(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"empty", "", nil},
		{"remote only", "Location: Remote", []string{"Remote"}},
		{"telecommute", "This role is telecommute friendly", []string{"Remote"}},
		{"invalid state", "Location: Springfield, XX", nil},
		{"too many words", "Location: Main Office Downtown Boston, MA", nil},
		{"repeated city", "Location: Austin, TX, Austin, TX", []string{"Austin, TX"}},
		{"hybrid with city", "Location: Denver, CO (hybrid)", []string{"Hybrid", "Denver, CO"}},
		{"first location line only", "Location: Seattle, WA\nLocation: Portland, OR", []string{"Seattle, WA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PostingLocations(tt.body); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PostingLocations() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForKind(t *testing.T) {
	for _, kind := range []event.Kind{event.KindEvent, event.KindJob, event.KindInternship} {
		if _, err := ForKind(kind, DefaultOptions()); err != nil {
			t.Errorf("ForKind(%q) failed: %v", kind, err)
		}
	}
	if _, ok := mustForKind(t, event.KindJob).(PostingParser); !ok {
		t.Error("jobs should use the posting parser")
	}
	if _, ok := mustForKind(t, event.KindEvent).(Parser); !ok {
		t.Error("events should use the label parser")
	}
	if _, err := ForKind("Workshop", DefaultOptions()); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func mustForKind(t *testing.T, kind event.Kind) Extractor {
	t.Helper()
	x, err := ForKind(kind, DefaultOptions())
	if err != nil {
		t.Fatalf("ForKind failed: %v", err)
	}
	return x
}
