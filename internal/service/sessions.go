package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/realtime"
	"barakah-tasks/internal/tasks"
)

// Subscriber opens scoped push-stream subscriptions.
type Subscriber interface {
	Subscribe(f realtime.Filter) (<-chan realtime.Event, func())
}

type session struct {
	svc    *TaskService
	cancel context.CancelFunc
	unsub  func()
}

// Sessions owns one TaskService per user, each fed by its own subscription.
type Sessions struct {
	store      tasks.Store
	feed       Subscriber
	categories CategoryResolver
	reminders  ReminderScheduler

	mu       sync.Mutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

func NewSessions(store tasks.Store, feed Subscriber, categories CategoryResolver, reminders ReminderScheduler) *Sessions {
	return &Sessions{
		store:      store,
		feed:       feed,
		categories: categories,
		reminders:  reminders,
		sessions:   make(map[string]*session),
	}
}

// Get returns the user's session, loading it on first use. The
// subscription is opened before the initial load so no change is missed.
func (m *Sessions) Get(ctx context.Context, user model.User) (*TaskService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[user.ID]; ok {
		return s.svc, nil
	}

	svc := NewTaskService(user.ID, m.store, m.categories, m.reminders, user.Location())
	var events <-chan realtime.Event
	unsub := func() {}
	if m.feed != nil {
		events, unsub = m.feed.Subscribe(realtime.Filter{Table: tasks.Table, UserID: user.ID})
	}
	if err := svc.Load(ctx); err != nil {
		unsub()
		return nil, fmt.Errorf("open session %s: %w", user.ID, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if events != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			svc.Run(runCtx, events)
		}()
	}
	m.sessions[user.ID] = &session{svc: svc, cancel: cancel, unsub: unsub}
	log.Printf("[info] session opened user=%s tasks=%d", user.ID, len(svc.Tasks()))
	return svc, nil
}

// Len returns the number of open sessions.
func (m *Sessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every session and waits for their event loops to exit.
func (m *Sessions) Close() {
	m.mu.Lock()
	for id, s := range m.sessions {
		s.cancel()
		s.unsub()
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// GenerateRecurring creates today's recurring instances for every user.
func (m *Sessions) GenerateRecurring(ctx context.Context, users []model.User) (int, error) {
	total := 0
	for _, user := range users {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		svc, err := m.Get(ctx, user)
		if err != nil {
			log.Printf("[warn] recurring for user=%s: %v", user.ID, err)
			continue
		}
		n, err := svc.GenerateRecurring(ctx)
		total += n
		if err != nil {
			log.Printf("[warn] recurring for user=%s: %v", user.ID, err)
		}
	}
	log.Printf("[info] generated %d recurring task(s) at %s", total, time.Now().Format(time.RFC3339))
	return total, nil
}
