package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"remind/internal/calendar"
	"remind/internal/config"
	"remind/internal/notify"
	"remind/internal/reminder"
	"remind/internal/task"
	"remind/internal/view"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeSearch
)

const timeInputLayout = "2006-01-02T15:04"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	cursorStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	alertStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Bold(true)
)

type formState struct {
	fields []textinput.Model
	index  int
}

const (
	fieldName = iota
	fieldTime
	fieldCategory
	fieldPriority
)

func formLabels() []string {
	return []string{"name", "time (YYYY-MM-DDTHH:MM)", "category", "priority"}
}

type tickMsg struct {
	now   time.Time
	rearm bool
}

// notifyFailedMsg carries a reminder the desktop could not show; it becomes a
// blocking alert.
type notifyFailedMsg struct {
	body string
	err  error
}

type Deps struct {
	Store    *task.Store
	List     *view.List
	Poller   *reminder.Poller
	Desktop  notify.Notifier
	Config   config.Config
	Now      func() time.Time
	LoadErr  error
	Location *time.Location
}

type Model struct {
	ctx        context.Context
	store      *task.Store
	list       *view.List
	poller     *reminder.Poller
	desktop    notify.Notifier
	cfg        config.Config
	now        func() time.Time
	loc        *time.Location
	cursor     int
	mode       mode
	form       *formState
	search     textinput.Model
	categories []string
	catIdx     int
	calendar   bool
	alerts     []string
	status     string
	confirmDel bool
	pendingDel *view.Row
	loadErr    error
}

func Run(ctx context.Context, d Deps) error {
	m := New(ctx, d)
	program := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func New(ctx context.Context, d Deps) Model {
	si := textinput.New()
	si.Placeholder = "search"
	si.CharLimit = 128
	si.Width = 30

	now := d.Now
	if now == nil {
		now = time.Now
	}
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}

	m := Model{
		ctx:        ctx,
		store:      d.Store,
		list:       d.List,
		poller:     d.Poller,
		desktop:    d.Desktop,
		cfg:        d.Config,
		now:        now,
		loc:        loc,
		mode:       modeList,
		search:     si,
		categories: append([]string{view.AllCategories}, d.Config.Categories...),
		loadErr:    d.LoadErr,
		status:     fmt.Sprintf("Press '%s' to add, '%s' to search, '%s' to delete.", d.Config.Keys.Add, d.Config.Keys.Search, d.Config.Keys.Delete),
	}
	var corrupt *task.CorruptStateError
	if errors.As(d.LoadErr, &corrupt) {
		m.status = "Stored tasks were unreadable and have been reset."
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.poller == nil {
		return nil
	}
	return tea.Batch(checkNow(m.now), m.tick())
}

func (m Model) tick() tea.Cmd {
	now := m.now
	return tea.Tick(m.poller.Interval(), func(time.Time) tea.Msg { return tickMsg{now: now(), rearm: true} })
}

func checkNow(now func() time.Time) tea.Cmd {
	return func() tea.Msg { return tickMsg{now: now()} }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if len(m.alerts) > 0 {
			return m.updateAlert(msg.String())
		}
		if m.confirmDel {
			return m.updateDeleteConfirm(msg.String())
		}
		return m.handleKey(msg)
	case tickMsg:
		return m.handleTick(msg)
	case notifyFailedMsg:
		m.alerts = append(m.alerts, msg.body)
		return m, nil
	case tea.WindowSizeMsg:
		m.search.Width = msg.Width - 10
	}
	return m, nil
}

func (m Model) handleTick(msg tickMsg) (tea.Model, tea.Cmd) {
	if m.poller == nil {
		return m, nil
	}
	var cmds []tea.Cmd
	due, err := m.poller.Due(m.ctx, msg.now)
	if err != nil && !m.reported(err) {
		m.status = fmt.Sprintf("reminder check failed: %v", err)
	}
	for _, r := range due {
		body := notify.Body(r.Name)
		if m.desktop == nil {
			m.alerts = append(m.alerts, body)
			continue
		}
		cmds = append(cmds, m.notifyCmd(body))
		m.status = "Reminder: " + r.Name
	}
	if msg.rearm {
		cmds = append(cmds, m.tick())
	}
	return m, tea.Batch(cmds...)
}

// reported is true for a corrupt durable copy the startup status already
// announced; polling keeps seeing it until the next save overwrites it.
func (m Model) reported(err error) bool {
	var corrupt *task.CorruptStateError
	return m.loadErr != nil && errors.As(err, &corrupt)
}

func (m Model) notifyCmd(body string) tea.Cmd {
	ctx, n := m.ctx, m.desktop
	return func() tea.Msg {
		if err := n.Notify(ctx, notify.Title, body); err != nil {
			return notifyFailedMsg{body: body, err: err}
		}
		return nil
	}
}

func (m Model) updateAlert(key string) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Confirm, m.cfg.Keys.Cancel, "enter", "esc", " ":
		m.alerts = m.alerts[1:]
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch m.mode {
	case modeAdd:
		return m.updateAddMode(key, msg)
	case modeSearch:
		return m.updateSearchMode(key, msg)
	}
	return m.updateListMode(key)
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	visible := m.list.Visible()
	switch key {
	case m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Down, "down":
		m.cursor = clampCursor(m.cursor+1, len(visible))
	case m.cfg.Keys.Up, "up":
		m.cursor = clampCursor(m.cursor-1, len(visible))
	case m.cfg.Keys.Add:
		return m.startAdd()
	case m.cfg.Keys.Search:
		m.mode = modeSearch
		m.status = "Search: type to filter, enter to keep, esc to clear"
		return m, m.search.Focus()
	case m.cfg.Keys.Category:
		m.catIdx = (m.catIdx + 1) % len(m.categories)
		m.applyFilter()
		m.status = "Category: " + m.categories[m.catIdx]
	case m.cfg.Keys.Calendar:
		m.calendar = !m.calendar
	case m.cfg.Keys.Delete:
		if len(visible) == 0 {
			return m, nil
		}
		r := visible[clampCursor(m.cursor, len(visible))]
		m.confirmDel = true
		m.pendingDel = &r
		m.status = fmt.Sprintf("Delete \"%s\"? y/n", r.Name)
	}
	return m, nil
}

func (m Model) updateSearchMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel, "esc":
		m.search.SetValue("")
		m.search.Blur()
		m.mode = modeList
		m.applyFilter()
		m.status = "Search cleared"
		return m, nil
	case m.cfg.Keys.Confirm, "enter":
		m.search.Blur()
		m.mode = modeList
		m.status = fmt.Sprintf("%d of %d tasks shown", len(m.list.Visible()), m.list.Len())
		return m, nil
	default:
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.applyFilter()
		return m, cmd
	}
}

func (m *Model) applyFilter() {
	m.list.Filter(m.search.Value(), m.categories[m.catIdx])
	m.cursor = clampCursor(m.cursor, len(m.list.Visible()))
}

func (m Model) startAdd() (tea.Model, tea.Cmd) {
	defaults := []string{
		"",
		m.now().In(m.loc).Add(time.Hour).Truncate(time.Minute).Format(timeInputLayout),
		m.cfg.DefaultCategory,
		m.cfg.DefaultPriority,
	}
	fs := &formState{}
	for i, label := range formLabels() {
		ti := textinput.New()
		ti.Placeholder = label
		ti.CharLimit = 256
		ti.Width = 40
		ti.SetValue(defaults[i])
		fs.fields = append(fs.fields, ti)
	}
	m.form = fs
	m.mode = modeAdd
	m.status = fmt.Sprintf("Add task: tab to move, %s to cycle category/priority, enter to advance/save, esc to cancel", m.cfg.Keys.Cycle)
	return m, m.form.fields[0].Focus()
}

func (m Model) updateAddMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.form == nil {
		m.mode = modeList
		return m, nil
	}
	switch key {
	case m.cfg.Keys.Cancel, "esc":
		m.form = nil
		m.mode = modeList
		m.status = "Cancelled"
		return m, nil
	case m.cfg.Keys.Next, "tab", "down":
		return m, m.focusField(m.form.index + 1)
	case m.cfg.Keys.Prev, "shift+tab", "up":
		return m, m.focusField(m.form.index - 1)
	case m.cfg.Keys.Cycle:
		m.cycleField()
		return m, nil
	case m.cfg.Keys.Confirm, "enter":
		if m.form.index < len(m.form.fields)-1 {
			return m, m.focusField(m.form.index + 1)
		}
		return m.submitForm()
	default:
		var cmd tea.Cmd
		i := m.form.index
		m.form.fields[i], cmd = m.form.fields[i].Update(msg)
		return m, cmd
	}
}

// cycleField replaces the focused category or priority value with the next
// configured one. Other fields are left alone.
func (m *Model) cycleField() {
	var options []string
	switch m.form.index {
	case fieldCategory:
		options = m.cfg.Categories
	case fieldPriority:
		options = m.cfg.Priorities
	}
	if len(options) == 0 {
		return
	}
	field := &m.form.fields[m.form.index]
	cur := strings.ToLower(strings.TrimSpace(field.Value()))
	next := 0
	for i, o := range options {
		if strings.ToLower(o) == cur {
			next = (i + 1) % len(options)
			break
		}
	}
	field.SetValue(options[next])
	field.CursorEnd()
}

func (m *Model) focusField(idx int) tea.Cmd {
	m.form.fields[m.form.index].Blur()
	m.form.index = wrapIndex(idx, len(m.form.fields))
	return m.form.fields[m.form.index].Focus()
}

func (m Model) submitForm() (tea.Model, tea.Cmd) {
	f := m.form.fields
	rec, err := m.store.Add(m.ctx, f[fieldName].Value(), f[fieldTime].Value(), f[fieldCategory].Value(), f[fieldPriority].Value())
	var verr *task.ValidationError
	if errors.As(err, &verr) {
		m.alerts = append(m.alerts, "Please enter the task name and time. ("+verr.Error()+")")
		return m, nil
	}
	if err != nil {
		m.status = fmt.Sprintf("save failed: %v", err)
		return m, nil
	}
	m.form = nil
	m.mode = modeList
	m.status = "Added " + rec.Name
	visible := m.list.Visible()
	for i, r := range visible {
		if r.Ref == rec.ID {
			m.cursor = i
		}
	}
	return m, nil
}

func (m Model) updateDeleteConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "n", "N", "esc":
		m.status = "Delete cancelled"
	case "y", "Y":
		if m.pendingDel == nil {
			m.status = "Nothing to delete"
			break
		}
		removed, err := m.store.Remove(m.ctx, m.pendingDel.Ref)
		switch {
		case err != nil:
			m.status = fmt.Sprintf("delete failed: %v", err)
		case removed:
			m.status = "Deleted task"
		default:
			m.status = "Task was already gone"
		}
		m.cursor = clampCursor(m.cursor, len(m.list.Visible()))
	default:
		return m, nil
	}
	m.confirmDel = false
	m.pendingDel = nil
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Task Reminder"))
	b.WriteString("\n")
	search, category := m.list.Criteria()
	b.WriteString(dimStyle.Render(fmt.Sprintf("category: %s  search: %q  (%d/%d)", category, search, len(m.list.Visible()), m.list.Len())))
	b.WriteString("\n\n")

	if m.list.Len() == 0 {
		b.WriteString(fmt.Sprintf("No tasks yet. Press '%s' to add one.\n", m.cfg.Keys.Add))
	} else {
		b.WriteString(m.renderTaskList())
	}

	if m.calendar {
		b.WriteString("\n")
		b.WriteString(calendar.Render(calendar.For(m.now().In(m.loc))))
	}

	switch m.mode {
	case modeAdd:
		b.WriteString("\n---\n")
		b.WriteString(m.renderForm())
	case modeSearch:
		b.WriteString("\nSearch: ")
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}

	if len(m.alerts) > 0 {
		b.WriteString("\n")
		b.WriteString(alertStyle.Render(m.alerts[0] + "\n\n[enter] OK"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.status)
	b.WriteString("\n")
	b.WriteString(renderHelp(m.cfg.Keys))

	return b.String()
}

func (m Model) renderTaskList() string {
	var b strings.Builder
	visible := m.list.Visible()
	if len(visible) == 0 {
		b.WriteString("No tasks match the filter.\n")
		return b.String()
	}
	for i, r := range visible {
		cursor := " "
		line := fmt.Sprintf("%s  Due: %s | Category: %s | Priority: %s", r.Name, r.Due, r.CategoryLabel, r.PriorityLabel)
		if m.cursor == i && m.mode == modeList {
			cursor = ">"
			line = cursorStyle.Render(line)
		}
		b.WriteString(cursor + " " + line + "\n")
	}
	return b.String()
}

func (m Model) renderForm() string {
	var b strings.Builder
	for i, label := range formLabels() {
		prefix := " "
		if i == m.form.index {
			prefix = ">"
		}
		b.WriteString(fmt.Sprintf("%s %-24s %s\n", prefix, label, m.form.fields[i].View()))
	}
	return b.String()
}

func renderHelp(k config.Keymap) string {
	return fmt.Sprintf("%s/%s move • %s add • %s delete • %s search • %s category • %s calendar • %s quit",
		k.Up, k.Down, k.Add, k.Delete, k.Search, k.Category, k.Calendar, k.Quit)
}

func wrapIndex(idx, n int) int {
	if n <= 0 {
		return 0
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}
