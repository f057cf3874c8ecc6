package dedup

import (
	"testing"

	"github.com/scipunch/campusfeed/dataset"
	"github.com/scipunch/campusfeed/event"
)

func mustNew(t *testing.T, fields ...event.Field) *Deduplicator {
	t.Helper()
	d, err := New(fields)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func TestIsDuplicate(t *testing.T) {
	ds := dataset.Append(dataset.New(), []event.Event{
		{Title: "Spring Fest", When: "May 3, 2025", Location: "Quad"},
	})
	d := mustNew(t)

	tests := []struct {
		name string
		e    event.Event
		want bool
	}{
		{"same key", event.Event{Title: "Spring Fest", When: "May 3, 2025"}, true},
		{"other fields ignored", event.Event{Title: "Spring Fest", When: "May 3, 2025", Location: "Gym", Description: "new"}, true},
		{"case folded", event.Event{Title: "SPRING FEST", When: "may 3, 2025"}, true},
		{"whitespace collapsed", event.Event{Title: "  Spring   Fest ", When: "May 3,\t2025"}, true},
		{"different when", event.Event{Title: "Spring Fest", When: "May 4, 2025"}, false},
		{"different title", event.Event{Title: "Fall Fest", When: "May 3, 2025"}, false},
		{"empty", event.Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsDuplicate(ds, tt.e); got != tt.want {
				t.Errorf("IsDuplicate(%+v) = %v, want %v", tt.e, got, tt.want)
			}
		})
	}
}

func TestIsDuplicate_EmptyDataset(t *testing.T) {
	d := mustNew(t)
	if d.IsDuplicate(dataset.New(), event.Event{Title: "Anything"}) {
		t.Error("nothing is a duplicate of an empty dataset")
	}
}

func TestFresh_WithinBatch(t *testing.T) {
	d := mustNew(t)
	candidates := []event.Event{
		{Title: "A", When: "1"},
		{Title: "B", When: "2"},
		{Title: "a", When: "1", Location: "later copy"},
	}

	fresh, dups := d.Fresh(dataset.New(), candidates)
	if len(fresh) != 2 || fresh[0].Title != "A" || fresh[1].Title != "B" {
		t.Errorf("unexpected fresh events: %+v", fresh)
	}
	if len(dups) != 1 || dups[0].Location != "later copy" {
		t.Errorf("unexpected duplicates: %+v", dups)
	}
}

func TestFresh_OrderIndependent(t *testing.T) {
	d := mustNew(t)
	x := event.Event{Title: "X", When: "Mon"}
	y := event.Event{Title: "Y", When: "Tue"}

	// Ingesting x then y must leave the same key set as y then x
	keys := func(first, second event.Event) map[string]bool {
		ds := dataset.New()
		for _, e := range []event.Event{first, second, first} {
			fresh, _ := d.Fresh(ds, []event.Event{e})
			ds = dataset.Append(ds, fresh)
		}
		out := make(map[string]bool)
		for _, e := range ds.Events() {
			out[d.Key(e)] = true
		}
		if ds.Len() != 2 {
			t.Errorf("expected 2 rows, got %d", ds.Len())
		}
		return out
	}

	a, b := keys(x, y), keys(y, x)
	if len(a) != len(b) {
		t.Fatalf("key sets differ: %v vs %v", a, b)
	}
	for k := range a {
		if !b[k] {
			t.Errorf("key %q missing from reversed run", k)
		}
	}
}

func TestNew_CustomKey(t *testing.T) {
	d := mustNew(t, "Link")
	ds := dataset.Append(dataset.New(), []event.Event{{Title: "Old", Link: "https://x.edu/1"}})

	if !d.IsDuplicate(ds, event.Event{Title: "Renamed", Link: "https://x.edu/1"}) {
		t.Error("same link should be a duplicate")
	}
	if d.IsDuplicate(ds, event.Event{Title: "Old", Link: "https://x.edu/2"}) {
		t.Error("different link should not be a duplicate")
	}
	if got := d.Fields(); len(got) != 1 || got[0] != event.Link {
		t.Errorf("unexpected fields: %v", got)
	}
}

func TestNew_InvalidKey(t *testing.T) {
	tests := [][]event.Field{
		{"entry_date"},
		{"unknown"},
		{"title", "TITLE"},
	}

	for _, fields := range tests {
		if _, err := New(fields); err == nil {
			t.Errorf("New(%v) should fail", fields)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Spring Fest", "spring fest"},
		{"  ÉCOLE\t\nFest  ", "école fest"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKeyFor_Postings(t *testing.T) {
	d, err := New(KeyFor(event.KindJob))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ds := dataset.Append(dataset.New(), []event.Event{{Title: "Analyst", Company: "ACME", When: "08/01/2025"}})

	if !d.IsDuplicate(ds, event.Event{Title: "analyst", Company: "Acme", When: "08/01/2025"}) {
		t.Error("same posting should be a duplicate")
	}
	if d.IsDuplicate(ds, event.Event{Title: "Analyst", Company: "Globex", When: "08/01/2025"}) {
		t.Error("same title at another employer should not be a duplicate")
	}
	if got := KeyFor(event.KindEvent); len(got) != 2 || got[0] != event.Title || got[1] != event.When {
		t.Errorf("unexpected event key: %v", got)
	}
}
