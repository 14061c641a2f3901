// Package task holds the task record and the store that keeps the in-memory
// task list equal to its durable copy.
package task

import (
	"strings"
	"time"
)

// WireTimeLayout is the persisted form of a due time: UTC with millisecond
// precision, e.g. 2030-05-01T07:00:00.000Z.
const WireTimeLayout = "2006-01-02T15:04:05.000Z"

// inputLayouts are tried in order when parsing a user supplied due time.
// Layouts without a zone are read in the caller's location.
var inputLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type Record struct {
	ID       string
	Name     string
	Time     time.Time
	Category string
	Priority string
}

// Defaults are applied to blank labels when a record is created.
type Defaults struct {
	Category string
	Priority string
}

// Remaining is how long until the task is due, negative once it has passed.
func (r Record) Remaining(now time.Time) time.Duration {
	return r.Time.Sub(now)
}

// sameTask compares everything but the id.
func (r Record) sameTask(o Record) bool {
	return r.Name == o.Name && r.Time.Equal(o.Time) &&
		strings.EqualFold(r.Category, o.Category) && strings.EqualFold(r.Priority, o.Priority)
}

// ParseTime accepts datetime-local style input and RFC 3339.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	var firstErr error
	for _, layout := range inputLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// NormalizeLabel lower-cases and trims a category or priority, falling back
// to def when blank.
func NormalizeLabel(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return strings.ToLower(strings.TrimSpace(def))
	}
	return v
}

// New validates the raw form input and builds a record without an id.
func New(name, at, category, priority string, d Defaults, loc *time.Location) (Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Record{}, &ValidationError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(at) == "" {
		return Record{}, &ValidationError{Field: "time", Reason: "required"}
	}
	due, err := ParseTime(at, loc)
	if err != nil {
		return Record{}, &ValidationError{Field: "time", Reason: "cannot parse " + strings.TrimSpace(at)}
	}
	return Record{
		Name:     name,
		Time:     due,
		Category: NormalizeLabel(category, d.Category),
		Priority: NormalizeLabel(priority, d.Priority),
	}, nil
}
