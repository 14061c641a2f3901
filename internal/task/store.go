package task

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultKey is the durable key holding the whole task list.
const DefaultKey = "tasks"

var errNoMatch = errors.New("no matching task")

// Backend is the durable key/value layer. storage.Store satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error
	Delete(ctx context.Context, key string) error
}

type Option func(*Store)

func WithDefaults(d Defaults) Option {
	return func(s *Store) { s.defaults = d }
}

// WithLocation sets the zone used for due times typed without one.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithIDFunc replaces the uuid generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// Store is the canonical ordered task list. Every mutation is applied to the
// durable copy in one read-modify-write and the result becomes the
// in-memory list, so the two never disagree once a call returns.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	key       string
	defaults  Defaults
	loc       *time.Location
	newID     func() string
	records   []Record
	listeners []func([]Record)
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		key:      DefaultKey,
		defaults: Defaults{Category: "personal", Priority: "medium"},
		loc:      time.Local,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to receive the full list after every change.
func (s *Store) Subscribe(fn func([]Record)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Add validates the input and appends a new record as the last element.
func (s *Store) Add(ctx context.Context, name, at, category, priority string) (Record, error) {
	rec, err := New(name, at, category, priority, s.defaults, s.loc)
	if err != nil {
		return Record{}, err
	}
	rec.ID = s.newID()

	next, err := s.mutate(ctx, func(cur []Record) ([]Record, error) {
		return append(cur, rec), nil
	})
	if err != nil {
		return Record{}, err
	}
	return next[len(next)-1], nil
}

// Remove deletes the one record with the given id. It reports false when no
// record matches, which is not an error.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	_, err := s.mutate(ctx, func(cur []Record) ([]Record, error) {
		for i, r := range cur {
			if r.ID == id {
				return append(cur[:i:i], cur[i+1:]...), nil
			}
		}
		return nil, errNoMatch
	})
	if errors.Is(err, errNoMatch) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear drops the durable key, leaving the store as if nothing had ever
// been saved.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.mu.Unlock()
		return err
	}
	s.records = nil
	listeners := append([]func([]Record){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
	return nil
}

// List returns a copy of the records in insertion order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.records)
}

// Len is the number of records held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Resolve finds a record by exact id or by an unambiguous id prefix.
func (s *Store) Resolve(ref string) (Record, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Record{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var found Record
	matches := 0
	for _, r := range s.records {
		if r.ID == ref {
			return r, true
		}
		if strings.HasPrefix(r.ID, ref) {
			found = r
			matches++
		}
	}
	return found, matches == 1
}

// ReplaceAll overwrites the in-memory list without writing it back. Records
// without an id get one here; the next mutation writes it to the durable
// copy.
func (s *Store) ReplaceAll(records []Record) {
	s.mu.Lock()
	s.records = s.ensureIDs(cloneRecords(records))
	snapshot := cloneRecords(s.records)
	listeners := append([]func([]Record){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

// Load hydrates memory from the durable copy. An absent key yields an empty
// store. A corrupt copy also yields an empty store and is reported as a
// *CorruptStateError so the caller can tell the user.
func (s *Store) Load(ctx context.Context) error {
	records, err := s.Snapshot(ctx)
	var corrupt *CorruptStateError
	if errors.As(err, &corrupt) {
		log.Printf("task store: %v; starting empty", corrupt)
		s.ReplaceAll(nil)
		return err
	}
	if err != nil {
		return err
	}
	if needsIDs(records) {
		// Persist the assigned ids so rows can be matched back later.
		_, err := s.mutate(ctx, func(cur []Record) ([]Record, error) { return cur, nil })
		return err
	}
	s.ReplaceAll(records)
	return nil
}

func needsIDs(records []Record) bool {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; r.ID == "" || dup {
			return true
		}
		seen[r.ID] = struct{}{}
	}
	return false
}

// Snapshot decodes the durable copy without touching memory.
func (s *Store) Snapshot(ctx context.Context) ([]Record, error) {
	data, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	records, err := Decode(data)
	if err != nil {
		return nil, &CorruptStateError{Key: s.key, Err: err}
	}
	return records, nil
}

// mutate applies fn to the durable list and adopts what was written, decoded
// back, as the in-memory list.
func (s *Store) mutate(ctx context.Context, fn func([]Record) ([]Record, error)) ([]Record, error) {
	s.mu.Lock()
	var next []Record
	err := s.backend.Update(ctx, s.key, func(current []byte) ([]byte, error) {
		cur, err := Decode(current)
		if err != nil {
			log.Printf("task store: %v; overwriting", &CorruptStateError{Key: s.key, Err: err})
			cur = nil
		}
		cur = s.ensureIDs(s.adoptIDs(cur))
		out, err := fn(cur)
		if err != nil {
			return nil, err
		}
		data, err := Encode(out)
		if err != nil {
			return nil, err
		}
		if next, err = Decode(data); err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.records = next
	snapshot := cloneRecords(next)
	listeners := append([]func([]Record){}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return snapshot, nil
}

// adoptIDs hands id-less durable records the id memory already shows for
// the same task, so an id a caller saw after ReplaceAll still matches.
func (s *Store) adoptIDs(records []Record) []Record {
	durable := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID != "" {
			durable[r.ID] = struct{}{}
		}
	}
	var spare []Record
	for _, r := range s.records {
		if _, ok := durable[r.ID]; !ok && r.ID != "" {
			spare = append(spare, r)
		}
	}
	for i := range records {
		if records[i].ID != "" {
			continue
		}
		for j, m := range spare {
			if m.sameTask(records[i]) {
				records[i].ID = m.ID
				spare = append(spare[:j], spare[j+1:]...)
				break
			}
		}
	}
	return records
}

// ensureIDs gives every record a unique id; records written by older versions
// carry none, and hand-merged files may repeat one.
func (s *Store) ensureIDs(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		if _, dup := seen[records[i].ID]; records[i].ID == "" || dup {
			records[i].ID = s.newID()
		}
		seen[records[i].ID] = struct{}{}
	}
	return records
}

type wireRecord struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Time     string `json:"time"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}

// Encode serializes records into the durable JSON array.
func Encode(records []Record) ([]byte, error) {
	out := make([]wireRecord, 0, len(records))
	for _, r := range records {
		out = append(out, wireRecord{
			ID:       r.ID,
			Name:     r.Name,
			Time:     r.Time.UTC().Format(WireTimeLayout),
			Category: strings.ToLower(r.Category),
			Priority: strings.ToLower(r.Priority),
		})
	}
	return json.Marshal(out)
}

// Decode parses the durable JSON array. Empty input is an empty list.
func Decode(data []byte) ([]Record, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var in []wireRecord
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(in))
	for _, w := range in {
		due, err := time.Parse(time.RFC3339Nano, w.Time)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			ID:       w.ID,
			Name:     w.Name,
			Time:     due,
			Category: strings.ToLower(w.Category),
			Priority: strings.ToLower(w.Priority),
		})
	}
	return records, nil
}

func cloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	copy(out, in)
	return out
}
