package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"remind/internal/storage"
)

type memBackend struct {
	data    map[string][]byte
	failPut error
	writes  int
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][]byte{}}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Update(_ context.Context, key string, fn func([]byte) ([]byte, error)) error {
	next, err := fn(m.data[key])
	if err != nil {
		return err
	}
	if m.failPut != nil {
		return m.failPut
	}
	m.data[key] = next
	m.writes++
	return nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	m.writes++
	return nil
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(b Backend) *Store {
	return NewStore(b, WithLocation(time.UTC), WithIDFunc(seqIDs()))
}

func TestAddScenario(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)
	ctx := context.Background()

	rec, err := s.Add(ctx, "Pay rent", "2030-05-01T09:00", "Personal", "High")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	list := s.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}
	got := list[0]
	if got.Name != "Pay rent" || got.Category != "personal" || got.Priority != "high" {
		t.Errorf("unexpected record %+v", got)
	}
	if !got.Time.Equal(time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected time %v", got.Time)
	}
	if rec.ID != got.ID || rec.ID == "" {
		t.Errorf("returned record id %q does not match stored %q", rec.ID, got.ID)
	}

	var wire []map[string]string
	if err := json.Unmarshal(b.data[DefaultKey], &wire); err != nil {
		t.Fatalf("durable copy is not JSON: %v", err)
	}
	want := map[string]string{
		"id":       rec.ID,
		"name":     "Pay rent",
		"time":     "2030-05-01T09:00:00.000Z",
		"category": "personal",
		"priority": "high",
	}
	if len(wire) != 1 || !reflect.DeepEqual(wire[0], want) {
		t.Errorf("unexpected durable copy %v", wire)
	}
}

func TestAddValidationLeavesStoreUnchanged(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)

	_, err := s.Add(context.Background(), "", "2099-01-01T00:00", "", "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
	if b.writes != 0 {
		t.Errorf("expected no durable writes, got %d", b.writes)
	}
}

func TestAddKeepsOrderAndDuplicates(t *testing.T) {
	s := newTestStore(newMemBackend())
	ctx := context.Background()
	for _, name := range []string{"b", "a", "b"} {
		if _, err := s.Add(ctx, name, "2030-01-01T10:00", "work", "low"); err != nil {
			t.Fatal(err)
		}
	}
	var names []string
	for _, r := range s.List() {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, []string{"b", "a", "b"}) {
		t.Errorf("expected insertion order with duplicates, got %v", names)
	}
}

func TestRemove(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)
	ctx := context.Background()

	first, _ := s.Add(ctx, "same", "2030-01-01T10:00", "work", "low")
	second, _ := s.Add(ctx, "same", "2030-01-01T10:00", "work", "low")

	ok, err := s.Remove(ctx, first.ID)
	if err != nil || !ok {
		t.Fatalf("Remove failed: ok=%v err=%v", ok, err)
	}
	list := s.List()
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("expected only the second duplicate to remain, got %+v", list)
	}

	writes := b.writes
	for _, id := range []string{"", "nope", first.ID} {
		ok, err := s.Remove(ctx, id)
		if err != nil || ok {
			t.Errorf("Remove(%q): expected no-op, got ok=%v err=%v", id, ok, err)
		}
	}
	if b.writes != writes {
		t.Errorf("no-op removes should not write, got %d extra", b.writes-writes)
	}
}

func TestCountInvariant(t *testing.T) {
	s := newTestStore(newMemBackend())
	ctx := context.Background()

	adds, removed := 0, 0
	var ids []string
	for i := 0; i < 12; i++ {
		rec, err := s.Add(ctx, fmt.Sprintf("task %d", i), "2030-01-01T10:00", "", "")
		if err != nil {
			t.Fatal(err)
		}
		adds++
		ids = append(ids, rec.ID)
		if i%3 == 2 {
			ok, _ := s.Remove(ctx, ids[i-1])
			if ok {
				removed++
			}
			ok, _ = s.Remove(ctx, "missing")
			if ok {
				removed++
			}
		}
	}
	if got := len(s.List()); got != adds-removed {
		t.Errorf("expected %d records, got %d", adds-removed, got)
	}
}

func TestReplaceAllRoundTrip(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)
	ctx := context.Background()
	s.Add(ctx, "one", "2030-01-01T10:00", "work", "low")
	two, _ := s.Add(ctx, "two", "2030-02-01T10:00", "personal", "high")
	s.Add(ctx, "three", "2030-03-01T10:00", "shopping", "medium")
	s.Remove(ctx, two.ID)

	before := s.List()
	writes := b.writes
	s.ReplaceAll(s.List())
	if !reflect.DeepEqual(before, s.List()) {
		t.Errorf("round trip changed the store:\n%+v\n%+v", before, s.List())
	}
	if b.writes != writes {
		t.Error("ReplaceAll must not write")
	}

	durable, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, durable) {
		t.Errorf("memory and durable copy differ:\n%+v\n%+v", before, durable)
	}
}

func TestLoadEmptyAndAbsent(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load of absent key failed: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store")
	}

	b.data[DefaultKey] = []byte("")
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load of empty value failed: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store")
	}
}

func TestLoadCorruptResetsToEmpty(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)
	s.ReplaceAll([]Record{{ID: "x", Name: "stale", Time: time.Now()}})
	b.data[DefaultKey] = []byte(`[{"name": "broken"`)

	err := s.Load(context.Background())
	var corrupt *CorruptStateError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptStateError, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected reset to empty, got %d", s.Len())
	}

	if _, err := s.Add(context.Background(), "fresh", "2030-01-01T10:00", "", ""); err != nil {
		t.Fatalf("Add after corrupt state failed: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 record, got %d", s.Len())
	}
}

func TestLoadAssignsMissingIDs(t *testing.T) {
	b := newMemBackend()
	b.data[DefaultKey] = []byte(`[
		{"name":"a","time":"2030-01-01T10:00:00.000Z","category":"Work","priority":"low"},
		{"name":"b","time":"2030-01-01T11:00:00.000Z","category":"personal","priority":"high"}
	]`)
	s := newTestStore(b)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID == "" || list[1].ID == "" || list[0].ID == list[1].ID {
		t.Fatalf("expected unique ids, got %+v", list)
	}
	if list[0].Category != "work" {
		t.Errorf("expected lower-cased category, got %q", list[0].Category)
	}

	ok, err := s.Remove(context.Background(), list[0].ID)
	if err != nil || !ok {
		t.Fatalf("Remove of loaded record failed: ok=%v err=%v", ok, err)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 record left, got %d", s.Len())
	}
}

func TestRemoveAfterReplaceAllWithoutIDs(t *testing.T) {
	b := newMemBackend()
	b.data[DefaultKey] = []byte(`[
		{"name":"a","time":"2030-01-01T10:00:00.000Z","category":"work","priority":"low"},
		{"name":"a","time":"2030-01-01T10:00:00.000Z","category":"work","priority":"low"}
	]`)
	s := newTestStore(b)
	ctx := context.Background()

	records, err := Decode(b.data[DefaultKey])
	if err != nil {
		t.Fatal(err)
	}
	s.ReplaceAll(records)
	list := s.List()
	if list[0].ID == "" || list[0].ID == list[1].ID {
		t.Fatalf("expected distinct ids in memory, got %+v", list)
	}

	ok, err := s.Remove(ctx, list[1].ID)
	if err != nil || !ok {
		t.Fatalf("Remove of replaced record: ok=%v err=%v", ok, err)
	}
	after := s.List()
	if len(after) != 1 || after[0].ID != list[0].ID {
		t.Fatalf("expected %q left, got %+v", list[0].ID, after)
	}
	durable, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(after, durable) {
		t.Errorf("memory and durable copy differ:\n%+v\n%+v", after, durable)
	}
}

func TestClear(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)
	ctx := context.Background()
	s.Add(ctx, "one", "2030-01-01T10:00", "", "")
	var seen []int
	s.Subscribe(func(r []Record) { seen = append(seen, len(r)) })

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
	if _, ok := b.data[DefaultKey]; ok {
		t.Error("expected durable key to be deleted")
	}
	if !reflect.DeepEqual(seen, []int{0}) {
		t.Errorf("listeners saw %v", seen)
	}
	if err := s.Load(ctx); err != nil || s.Len() != 0 {
		t.Errorf("Load after Clear: len=%d err=%v", s.Len(), err)
	}
}

func TestFailedWriteRollsBack(t *testing.T) {
	b := newMemBackend()
	s := newTestStore(b)
	ctx := context.Background()
	s.Add(ctx, "kept", "2030-01-01T10:00", "", "")

	b.failPut = errors.New("disk full")
	if _, err := s.Add(ctx, "lost", "2030-01-01T10:00", "", ""); err == nil {
		t.Fatal("expected write error")
	}
	if s.Len() != 1 {
		t.Errorf("expected memory unchanged after failed write, got %d", s.Len())
	}
}

func TestSubscribeSeesEveryMutation(t *testing.T) {
	s := newTestStore(newMemBackend())
	ctx := context.Background()
	var seen []int
	s.Subscribe(func(records []Record) { seen = append(seen, len(records)) })

	rec, _ := s.Add(ctx, "a", "2030-01-01T10:00", "", "")
	s.Add(ctx, "b", "2030-01-01T10:00", "", "")
	s.Remove(ctx, rec.ID)
	s.Remove(ctx, "missing")
	s.ReplaceAll(nil)

	if !reflect.DeepEqual(seen, []int{1, 2, 1, 0}) {
		t.Errorf("unexpected notifications %v", seen)
	}
}

func TestResolvePrefix(t *testing.T) {
	s := NewStore(newMemBackend())
	s.ReplaceAll([]Record{
		{ID: "abc123", Name: "a"},
		{ID: "abd456", Name: "b"},
	})
	if r, ok := s.Resolve("abc"); !ok || r.Name != "a" {
		t.Errorf("expected unique prefix match, got %+v %v", r, ok)
	}
	if _, ok := s.Resolve("ab"); ok {
		t.Error("ambiguous prefix should not resolve")
	}
	if r, ok := s.Resolve("abd456"); !ok || r.Name != "b" {
		t.Errorf("expected exact match, got %+v %v", r, ok)
	}
}

func TestStoreWithSQLite(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "remind.db"))
	if err != nil {
		t.Fatalf("storage.Open failed: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	s := NewStore(db, WithLocation(time.UTC))
	if _, err := s.Add(ctx, "Pay rent", "2030-05-01T09:00", "personal", "high"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, "Stand-up", "2030-05-02T09:30", "work", "low"); err != nil {
		t.Fatal(err)
	}

	reopened := NewStore(db, WithLocation(time.UTC))
	if err := reopened.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(s.List(), reopened.List()) {
		t.Errorf("reloaded store differs:\n%+v\n%+v", s.List(), reopened.List())
	}

	// A second handle appending must not be overwritten by the first.
	if _, err := reopened.Add(ctx, "Groceries", "2030-05-03T17:00", "shopping", "medium"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, "Dentist", "2030-05-04T08:00", "personal", "high"); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 4 {
		t.Errorf("expected 4 records after interleaved writers, got %d", s.Len())
	}
}
