package dataset

import (
	"strings"

	"github.com/scipunch/campusfeed/event"
)

// legacyColumns maps header names written by earlier versions of the
// dataset to event fields. Lookups are case-insensitive, so the old
// Type, Company, Title and similar headers need no entry.
var legacyColumns = map[string]event.Field{
	"whendate":  event.When,
	"pubdate":   event.Published,
	"entrydate": event.EntryDate,
	"subtype":   event.SubType,
}

// Row is one persisted event. Extra holds values of columns that do not
// map to an event field, keyed by header name.
type Row struct {
	Event event.Event
	Extra map[string]string
}

// Dataset is the ordered, append-only collection of ingested events
type Dataset struct {
	Columns []string
	Rows    []Row

	persisted bool
}

// New returns an empty dataset with the default column order
func New() Dataset {
	cols := make([]string, len(event.Fields))
	copy(cols, event.Fields)
	return Dataset{Columns: cols}
}

// Len returns the number of rows
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Persisted reports whether the dataset was read from an existing file
func (d Dataset) Persisted() bool {
	return d.persisted
}

// Events returns the events in row order
func (d Dataset) Events() []event.Event {
	events := make([]event.Event, len(d.Rows))
	for i, r := range d.Rows {
		events[i] = r.Event
	}
	return events
}

// Append returns a new dataset with events added after the existing rows
// in the given order. d is not modified.
func Append(d Dataset, events []event.Event) Dataset {
	out := Dataset{
		Columns:   append([]string(nil), d.Columns...),
		Rows:      make([]Row, len(d.Rows), len(d.Rows)+len(events)),
		persisted: d.persisted,
	}
	copy(out.Rows, d.Rows)
	for _, e := range events {
		out.Rows = append(out.Rows, Row{Event: e})
	}
	return out
}

// resolveColumn maps a header name to an event field
func resolveColumn(name string) (event.Field, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if event.IsKnown(key) {
		return key, true
	}
	f, ok := legacyColumns[key]
	return f, ok
}

// columnFields returns, per column, the field it stores or "" for extra
// columns. Only the first column mapping to a field is used for it.
func columnFields(columns []string) []event.Field {
	fields := make([]event.Field, len(columns))
	seen := make(map[event.Field]bool)
	for i, c := range columns {
		f, ok := resolveColumn(c)
		if !ok || seen[f] {
			continue
		}
		seen[f] = true
		fields[i] = f
	}
	return fields
}
