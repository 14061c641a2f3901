package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"remind/internal/calendar"
	"remind/internal/notify"
	"remind/internal/task"
	"remind/internal/view"
)

func addCmd(configPath *string) *cobra.Command {
	var at, category, priority string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			warnCorrupt(a)

			rec, err := a.store.Add(cmd.Context(), args[0], at, category, priority)
			var verr *task.ValidationError
			if errors.As(err, &verr) {
				return fmt.Errorf("please enter the task name and time: %w", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) due %s\n", rec.Name, shortID(rec.ID), rec.Time.Local().Format(view.DefaultDueLayout))
			return nil
		},
	}
	cmd.Flags().StringVarP(&at, "at", "t", "", "due time, e.g. 2030-05-01T09:00")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category (default from config)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority (default from config)")
	return cmd
}

func listCmd(configPath *string) *cobra.Command {
	var search, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			warnCorrupt(a)

			list := view.NewList()
			list.Bind(a.store)
			list.Filter(search, category)

			rows := list.Visible()
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRows(rows))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only names containing this text")
	cmd.Flags().StringVarP(&category, "category", "c", view.AllCategories, "only this category")
	return cmd
}

var (
	headerCell = lipgloss.NewStyle().Bold(true).PaddingRight(2)
	cell       = lipgloss.NewStyle().PaddingRight(2)
)

// renderRows lays the rows out as a borderless table.
func renderRows(rows []view.Row) string {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cell
		}).
		Headers("ID", "NAME", "DUE", "CATEGORY", "PRIORITY")
	for _, r := range rows {
		t.Row(shortID(r.Ref), r.Name, r.Due, r.CategoryLabel, r.PriorityLabel)
	}
	return t.String()
}

func clearCmd(configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			n := a.store.Len()
			if err := a.store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d tasks\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deleting all tasks")
	return cmd
}

func rmCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID",
		Short: "Remove a task by id or unique id prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, ok := a.store.Resolve(args[0])
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No single task matches %q.\n", args[0])
				return nil
			}
			removed, err := a.store.Remove(cmd.Context(), rec.ID)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", rec.Name)
			}
			return nil
		},
	}
}

func calendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar",
		Short: "Show the current month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), calendar.Render(calendar.For(time.Now())))
			return nil
		},
	}
}

func watchCmd(configPath *string) *cobra.Command {
	var interval, window time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll stored tasks and raise reminders until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			warnCorrupt(a)

			if interval > 0 {
				a.cfg.Reminders.Interval.Duration = interval
			}
			if window > 0 {
				a.cfg.Reminders.Window.Duration = window
			}
			n := notify.Fallback(notify.Detect(a.cfg.Reminders.Desktop), notify.NewTerminal(os.Stdout))
			p := a.poller(n)

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %d tasks every %s (window %s). Ctrl+C to stop.\n",
				a.store.Len(), a.cfg.Reminders.Interval.Duration, a.cfg.Reminders.Window.Duration)
			err = p.Run(cmd.Context())
			if errors.Is(err, cmd.Context().Err()) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default from config)")
	cmd.Flags().DurationVar(&window, "window", 0, "reminder window before the due time (default from config)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
