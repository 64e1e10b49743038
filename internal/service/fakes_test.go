package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/tasks"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory tasks.Store.
type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]model.Task
	keys      map[string]bool
	seq       int
	clock     time.Time
	calls     int
	failWrite bool
	failKey   string // Insert fails for a recurrence key with this prefix
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:  make(map[string]model.Task),
		keys:  make(map[string]bool),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *fakeStore) List(_ context.Context, userID string) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.rows {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) Insert(_ context.Context, t *model.Task) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failWrite {
		return nil, errStoreDown
	}
	if t.RecurrenceKey != nil && s.failKey != "" && strings.HasPrefix(*t.RecurrenceKey, s.failKey) {
		return nil, errStoreDown
	}
	if t.RecurrenceKey != nil {
		if s.keys[*t.RecurrenceKey] {
			return nil, fmt.Errorf("create task: %w", tasks.ErrDuplicate)
		}
		s.keys[*t.RecurrenceKey] = true
	}
	row := t.Clone()
	s.seq++
	row.ID = fmt.Sprintf("task-%04d", s.seq)
	now := s.tick()
	row.CreatedAt = now
	row.UpdatedAt = &now
	s.rows[row.ID] = row
	return &row, nil
}

func (s *fakeStore) Update(_ context.Context, userID, id string, fields map[string]any) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failWrite {
		return nil, errStoreDown
	}
	row, ok := s.rows[id]
	if !ok || row.UserID != userID {
		return nil, tasks.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			row.Status = v.(string)
		case "title":
			row.Title = v.(string)
		case "priority":
			row.Priority = v.(string)
		case "completed_at":
			if ts, ok := v.(time.Time); ok {
				row.CompletedAt = &ts
			} else {
				row.CompletedAt = nil
			}
		case "due_date":
			row.DueDate = v.(*string)
		case "due_time":
			row.DueTime = v.(*string)
		}
	}
	now := s.tick()
	row.UpdatedAt = &now
	s.rows[id] = row
	cp := row.Clone()
	return &cp, nil
}

func (s *fakeStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failWrite {
		return errStoreDown
	}
	row, ok := s.rows[id]
	if !ok || row.UserID != userID {
		return tasks.ErrNotFound
	}
	delete(s.rows, id)
	for k, r := range s.rows {
		if r.ParentTaskID != nil && *r.ParentTaskID == id {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *fakeStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeReminders records scheduling calls.
type fakeReminders struct {
	mu        sync.Mutex
	scheduled map[string]model.Task
	cancelled []string
}

func newFakeReminders() *fakeReminders {
	return &fakeReminders{scheduled: make(map[string]model.Task)}
}

func (r *fakeReminders) Schedule(t model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled[t.ID] = t
}

func (r *fakeReminders) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scheduled, id)
	r.cancelled = append(r.cancelled, id)
}

func (r *fakeReminders) has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.scheduled[id]
	return ok
}

type fakeCategories struct{}

func (fakeCategories) GetOrCreate(_ context.Context, userID, name string) (*model.Category, error) {
	return &model.Category{ID: "cat-" + name, UserID: userID, Name: name}, nil
}
