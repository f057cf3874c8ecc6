package dedup

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/scipunch/campusfeed/dataset"
	"github.com/scipunch/campusfeed/event"
)

// DefaultKey identifies an event by its cleaned title and time
var DefaultKey = []event.Field{event.Title, event.When}

// PostingKey identifies a job or internship posting
var PostingKey = []event.Field{event.Title, event.Company, event.When}

// KeyFor returns the default key for rows of the given kind
func KeyFor(kind event.Kind) []event.Field {
	if kind == event.KindJob || kind == event.KindInternship {
		return PostingKey
	}
	return DefaultKey
}

// keyFields are the fields an identity key may be built from. Ingestion
// metadata is excluded since it differs between runs for the same event.
var keyFields = map[event.Field]bool{
	event.Title:       true,
	event.Company:     true,
	event.When:        true,
	event.Location:    true,
	event.Description: true,
	event.Link:        true,
}

const keySeparator = "\x1f"

// Deduplicator decides whether an event is already present in a dataset
type Deduplicator struct {
	fields []event.Field
}

// New creates a deduplicator keyed on fields. An empty list selects
// DefaultKey.
func New(fields []event.Field) (*Deduplicator, error) {
	if len(fields) == 0 {
		fields = DefaultKey
	}

	seen := make(map[event.Field]bool, len(fields))
	out := make([]event.Field, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if !keyFields[f] {
			return nil, fmt.Errorf("field '%s' can't be used as a dedup key", f)
		}
		if seen[f] {
			return nil, fmt.Errorf("dedup key field '%s' repeated", f)
		}
		seen[f] = true
		out = append(out, f)
	}
	return &Deduplicator{fields: out}, nil
}

// Fields returns the key fields in order
func (d *Deduplicator) Fields() []event.Field {
	return append([]event.Field(nil), d.fields...)
}

// Key returns the normalized identity of e
func (d *Deduplicator) Key(e event.Event) string {
	parts := make([]string, len(d.fields))
	for i, f := range d.fields {
		v, _ := e.Get(f)
		parts[i] = Normalize(v)
	}
	return strings.Join(parts, keySeparator)
}

// Normalize folds case and collapses whitespace runs so that cosmetic
// differences between feed snapshots do not produce new rows
func Normalize(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// IsDuplicate reports whether ds already holds an event with the same key
func (d *Deduplicator) IsDuplicate(ds dataset.Dataset, e event.Event) bool {
	key := d.Key(e)
	for _, row := range ds.Rows {
		if d.Key(row.Event) == key {
			return true
		}
	}
	return false
}

// Fresh splits candidates into events absent from ds and duplicates. A
// candidate repeating an earlier candidate is a duplicate too, so the
// result does not depend on whether candidates arrive in one run or
// several. Candidate order is kept in both slices.
func (d *Deduplicator) Fresh(ds dataset.Dataset, candidates []event.Event) (fresh, dups []event.Event) {
	seen := make(map[string]struct{}, len(ds.Rows)+len(candidates))
	for _, row := range ds.Rows {
		seen[d.Key(row.Event)] = struct{}{}
	}

	for _, e := range candidates {
		key := d.Key(e)
		if _, ok := seen[key]; ok {
			dups = append(dups, e)
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh, dups
}
