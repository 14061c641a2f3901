// Package reminder raises a notification for tasks that are about to fall due.
package reminder

import (
	"context"
	"log"
	"sync"
	"time"

	"remind/internal/notify"
	"remind/internal/task"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultWindow   = time.Minute
)

// Source yields the durable task list. task.Store satisfies it.
type Source interface {
	Snapshot(ctx context.Context) ([]task.Record, error)
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.window = d
		}
	}
}

// WithRepeat makes every tick inside the window fire again instead of once
// per task.
func WithRepeat(repeat bool) Option {
	return func(p *Poller) { p.repeat = repeat }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// Poller re-reads the task list on every tick and reports tasks whose due
// time is between now and now+window. A task that has fired is remembered
// until it leaves the store.
type Poller struct {
	src      Source
	notifier notify.Notifier
	interval time.Duration
	window   time.Duration
	repeat   bool
	now      func() time.Time

	mu    sync.Mutex
	fired map[string]time.Time
}

func New(src Source, n notify.Notifier, opts ...Option) *Poller {
	p := &Poller{
		src:      src,
		notifier: n,
		interval: DefaultInterval,
		window:   DefaultWindow,
		now:      time.Now,
		fired:    map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Due returns the tasks inside the reminder window at now, in store order,
// marking them fired. It does not deliver anything.
func (p *Poller) Due(ctx context.Context, now time.Time) ([]task.Record, error) {
	records, err := p.src.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	present := make(map[string]struct{}, len(records))
	var due []task.Record
	for _, r := range records {
		present[r.ID] = struct{}{}
		remaining := r.Remaining(now)
		if remaining < 0 || remaining > p.window {
			continue
		}
		if firedFor, ok := p.fired[r.ID]; ok && !p.repeat && firedFor.Equal(r.Time) {
			continue
		}
		p.fired[r.ID] = r.Time
		due = append(due, r)
	}
	// Removing a task cancels its marker.
	for id := range p.fired {
		if _, ok := present[id]; !ok {
			delete(p.fired, id)
		}
	}
	return due, nil
}

// Tick finds due tasks and delivers one reminder for each.
func (p *Poller) Tick(ctx context.Context) ([]task.Record, error) {
	due, err := p.Due(ctx, p.now())
	if err != nil {
		return nil, err
	}
	for _, r := range due {
		if p.notifier == nil {
			continue
		}
		if err := p.notifier.Notify(ctx, notify.Title, notify.Body(r.Name)); err != nil {
			log.Printf("reminder: notify %q: %v", r.Name, err)
		}
	}
	return due, nil
}

// Run ticks until ctx is done. Snapshot errors are logged and the tick is
// skipped.
func (p *Poller) Run(ctx context.Context) error {
	if _, err := p.Tick(ctx); err != nil {
		log.Printf("reminder: %v", err)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.Tick(ctx); err != nil {
				log.Printf("reminder: %v", err)
			}
		}
	}
}
