// Package view projects the task store into displayable rows.
package view

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"remind/internal/task"
)

// AllCategories disables the category part of a filter.
const AllCategories = "all"

const DefaultDueLayout = "Jan 2, 2006 15:04"

// Row is one displayed task. Ref points back at the record it was built
// from; Category is the machine value used for filtering and CategoryLabel
// is what gets shown.
type Row struct {
	Ref           string
	Name          string
	Due           string
	At            time.Time
	Category      string
	CategoryLabel string
	Priority      string
	PriorityLabel string
	Hidden        bool
}

// Source is what the list needs from a task store.
type Source interface {
	List() []task.Record
	Subscribe(fn func([]task.Record))
}

type Option func(*List)

func WithLocation(loc *time.Location) Option {
	return func(l *List) { l.loc = loc }
}

// List holds the rendered rows. It never owns task data: rows are rebuilt from
// the store on every change and filtering only toggles Hidden.
type List struct {
	mu       sync.RWMutex
	rows     []Row
	search   string
	category string
	loc      *time.Location
	title    cases.Caser
}

func NewList(opts ...Option) *List {
	l := &List{
		category: AllCategories,
		loc:      time.Local,
		title:    cases.Title(language.Und),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Bind renders src now and again after every change to it.
func (l *List) Bind(src Source) {
	src.Subscribe(l.Refresh)
	l.Refresh(src.List())
}

// Refresh rebuilds exactly one row per record and reapplies the filter.
func (l *List) Refresh(records []task.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, Row{
			Ref:           r.ID,
			Name:          r.Name,
			Due:           r.Time.In(l.loc).Format(DefaultDueLayout),
			At:            r.Time,
			Category:      strings.ToLower(r.Category),
			CategoryLabel: l.title.String(r.Category),
			Priority:      strings.ToLower(r.Priority),
			PriorityLabel: l.title.String(r.Priority),
		})
	}
	l.rows = rows
	l.apply()
}

// Filter shows a row iff its name contains search (case-insensitive) and the
// category is "all" or equal to the row's category.
func (l *List) Filter(search, category string) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = AllCategories
	}
	l.mu.Lock()
	l.search = search
	l.category = category
	l.apply()
	l.mu.Unlock()
}

// Criteria returns the active search text and category.
func (l *List) Criteria() (search, category string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.search, l.category
}

func (l *List) apply() {
	needle := strings.ToLower(l.search)
	for i := range l.rows {
		r := &l.rows[i]
		match := strings.Contains(strings.ToLower(r.Name), needle) &&
			(l.category == AllCategories || r.Category == l.category)
		r.Hidden = !match
	}
}

// Rows returns every row, hidden ones included.
func (l *List) Rows() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Visible returns the rows the current filter lets through.
func (l *List) Visible() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Row
	for _, r := range l.rows {
		if !r.Hidden {
			out = append(out, r)
		}
	}
	return out
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows)
}

// Ref resolves the i-th visible row to its record id.
func (l *List) Ref(i int) (string, bool) {
	visible := l.Visible()
	if i < 0 || i >= len(visible) {
		return "", false
	}
	return visible[i].Ref, true
}
