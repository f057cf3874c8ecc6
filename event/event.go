package event

import (
	"fmt"
	"strings"
)

// Field names an Event attribute. The same names are used as dataset
// column names and as dedup key parts.
type Field = string

var (
	Type        = Field("type")
	SubType     = Field("sub_type")
	Company     = Field("company")
	Title       = Field("title")
	Description = Field("description")
	When        = Field("when")
	Published   = Field("published")
	Location    = Field("location")
	Link        = Field("link")
	EntryDate   = Field("entry_date")
)

// Fields lists every known field in persisted column order
var Fields = []Field{Type, SubType, Company, Title, Description, When, Published, Location, Link, EntryDate}

// Kind is the row category stored in the type column
type Kind = string

var (
	KindEvent      = Kind("Event")
	KindJob        = Kind("Job")
	KindInternship = Kind("Internship")
)

// ParseKind maps a task name such as "EVENTS" or "internships" to a Kind
func ParseKind(task string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(task)) {
	case "", "event", "events":
		return KindEvent, nil
	case "job", "jobs":
		return KindJob, nil
	case "internship", "internships":
		return KindInternship, nil
	}
	return "", fmt.Errorf("unsupported task type: %s", task)
}

// Event is a single row extracted from a feed item: a campus event, or
// a job or internship posting. Every field is a plain string; missing
// data is the empty string.
type Event struct {
	Type        Kind
	SubType     string
	Company     string // employer of a posting, empty for events
	Title       string
	Description string
	When        string // event time, or the expiry date of a posting
	Published   string // raw publication text as delivered by the feed
	Location    string
	Link        string
	EntryDate   string // RFC 3339 UTC timestamp of ingestion
}

// Get returns the value of the named field and whether the name is known
func (e Event) Get(f Field) (string, bool) {
	switch f {
	case Type:
		return e.Type, true
	case SubType:
		return e.SubType, true
	case Company:
		return e.Company, true
	case Title:
		return e.Title, true
	case Description:
		return e.Description, true
	case When:
		return e.When, true
	case Published:
		return e.Published, true
	case Location:
		return e.Location, true
	case Link:
		return e.Link, true
	case EntryDate:
		return e.EntryDate, true
	}
	return "", false
}

// Set assigns the named field and reports whether the name is known
func (e *Event) Set(f Field, v string) bool {
	switch f {
	case Type:
		e.Type = v
	case SubType:
		e.SubType = v
	case Company:
		e.Company = v
	case Title:
		e.Title = v
	case Description:
		e.Description = v
	case When:
		e.When = v
	case Published:
		e.Published = v
	case Location:
		e.Location = v
	case Link:
		e.Link = v
	case EntryDate:
		e.EntryDate = v
	default:
		return false
	}
	return true
}

// IsKnown reports whether f names an Event field
func IsKnown(f Field) bool {
	_, ok := Event{}.Get(f)
	return ok
}
