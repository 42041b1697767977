// Package memory is a process-local record.Store used for tests, demos and
// the "memory" store driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/drblury/todobridge/internal/record"
)

// Store keeps records in a map guarded by a single mutex.
type Store struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]record.Record
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSeed inserts record.SeedDrafts on construction.
func WithSeed() Option {
	return func(s *Store) {
		for _, draft := range record.SeedDrafts() {
			s.insert(record.New(draft, s.now()))
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nextID: 1,
		items:  make(map[int64]record.Record),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]record.Record, 0, len(s.items))
	for _, r := range s.items {
		items = append(items, clone(r))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) Get(ctx context.Context, id int64) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[id]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}
	return clone(r), nil
}

func (s *Store) Create(ctx context.Context, draft record.Draft) (record.Record, error) {
	r := record.New(draft, s.now())
	if err := record.Validate(r); err != nil {
		return record.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.insert(r)), nil
}

func (s *Store) Update(ctx context.Context, id int64, changes record.Changes) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}

	next := clone(current)
	next.Apply(changes, s.now())
	if err := record.Validate(next); err != nil {
		return record.Record{}, err
	}
	s.items[id] = next
	return clone(next), nil
}

func (s *Store) Delete(ctx context.Context, id int64) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[id]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}
	delete(s.items, id)
	return r, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) insert(r record.Record) record.Record {
	r.ID = s.nextID
	s.nextID++
	s.items[r.ID] = r
	return r
}

func clone(r record.Record) record.Record {
	if r.Description != nil {
		d := *r.Description
		r.Description = &d
	}
	if r.CompletedAt != nil {
		c := *r.CompletedAt
		r.CompletedAt = &c
	}
	return r
}
