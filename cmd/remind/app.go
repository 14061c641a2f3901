package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"remind/internal/config"
	"remind/internal/notify"
	"remind/internal/reminder"
	"remind/internal/storage"
	"remind/internal/task"
	"remind/internal/ui"
	"remind/internal/view"
)

type app struct {
	cfg     config.Config
	db      *storage.Store
	store   *task.Store
	loadErr error
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	if configPath == "" {
		configPath = config.ResolveConfigPath()
	}
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := task.NewStore(db, task.WithDefaults(task.Defaults{
		Category: cfg.DefaultCategory,
		Priority: cfg.DefaultPriority,
	}))
	a := &app{cfg: cfg, db: db, store: store}

	err = store.Load(ctx)
	var corrupt *task.CorruptStateError
	switch {
	case errors.As(err, &corrupt):
		a.loadErr = err
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) poller(n notify.Notifier) *reminder.Poller {
	return reminder.New(a.store, n,
		reminder.WithInterval(a.cfg.Reminders.Interval.Duration),
		reminder.WithWindow(a.cfg.Reminders.Window.Duration),
		reminder.WithRepeat(a.cfg.Reminders.Repeat),
	)
}

func runTUI(ctx context.Context, configPath string) error {
	a, err := openApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	// Keep log output off the terminal while the program owns it.
	f, err := tea.LogToFile(a.cfg.LogPath, "remind")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	if a.loadErr != nil {
		log.Printf("startup: %v", a.loadErr)
	}

	list := view.NewList()
	list.Bind(a.store)

	desktop := notify.Detect(a.cfg.Reminders.Desktop)
	if desktop == nil {
		log.Printf("desktop notifications unavailable; using in-app alerts")
	}

	if err := ui.Run(ctx, ui.Deps{
		Store:   a.store,
		List:    list,
		Poller:  a.poller(nil),
		Desktop: desktop,
		Config:  a.cfg,
		LoadErr: a.loadErr,
	}); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

func warnCorrupt(a *app) {
	if a.loadErr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; starting with an empty list\n", a.loadErr)
	}
}
