// Package calendar renders the current month as a grid of day cells.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type Day struct {
	Number int
	Active bool
}

type Month struct {
	Year  int
	Month time.Month
	// Offset is the weekday of day 1, Sunday being 0.
	Offset int
	Days   []Day
}

// For builds now's month with exactly the day matching now marked active.
func For(now time.Time) Month {
	year, month, today := now.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 1, -1)

	m := Month{
		Year:   year,
		Month:  month,
		Offset: int(first.Weekday()),
		Days:   make([]Day, 0, last.Day()),
	}
	for d := 1; d <= last.Day(); d++ {
		m.Days = append(m.Days, Day{Number: d, Active: d == today})
	}
	return m
}

// Active returns the active day number, or 0 when none is.
func (m Month) Active() int {
	for _, d := range m.Days {
		if d.Active {
			return d.Number
		}
	}
	return 0
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	todayStyle  = lipgloss.NewStyle().Bold(true).Reverse(true)
)

// Render lays the month out as a Sunday-first text grid.
func Render(m Month) string {
	var b strings.Builder
	title := fmt.Sprintf("%s %d", m.Month, m.Year)
	b.WriteString(headerStyle.Render(fmt.Sprintf("%*s", 14+len(title)/2, title)))
	b.WriteString("\n")
	b.WriteString(" Su  Mo  Tu  We  Th  Fr  Sa\n")

	col := 0
	for i := 0; i < m.Offset; i++ {
		b.WriteString("    ")
		col++
	}
	for _, d := range m.Days {
		cell := fmt.Sprintf("%3d", d.Number)
		if d.Active {
			cell = todayStyle.Render(cell)
		}
		b.WriteString(cell)
		b.WriteString(" ")
		col++
		if col == 7 {
			b.WriteString("\n")
			col = 0
		}
	}
	if col != 0 {
		b.WriteString("\n")
	}
	return b.String()
}
