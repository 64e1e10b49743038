package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/realtime"
	"barakah-tasks/internal/tasks"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title             string
	Description       string
	CategoryID        string
	Priority          string
	DueDate           string
	DueTime           string
	ParentTaskID      string
	IsRecurring       bool
	RecurrencePattern string

	recurrenceKey string
}

// CategoryResolver finds or creates a category by name.
type CategoryResolver interface {
	GetOrCreate(ctx context.Context, userID, name string) (*model.Category, error)
}

// ReminderScheduler arms and disarms per-task reminders.
type ReminderScheduler interface {
	Schedule(t model.Task)
	Cancel(taskID string)
}

// TaskService holds the in-memory task list for one user session. Writes
// are applied locally first, then sent to the store; change events from the
// push stream are folded in as they arrive.
type TaskService struct {
	userID     string
	store      tasks.Store
	categories CategoryResolver
	reminders  ReminderScheduler
	loc        *time.Location
	now        func() time.Time

	mu   sync.RWMutex
	list []model.Task
}

func NewTaskService(userID string, store tasks.Store, categories CategoryResolver, reminders ReminderScheduler, loc *time.Location) *TaskService {
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{
		userID:     userID,
		store:      store,
		categories: categories,
		reminders:  reminders,
		loc:        loc,
		now:        time.Now,
	}
}

// UserID returns the session owner.
func (s *TaskService) UserID() string { return s.userID }

// Load replaces local state with the store's rows.
func (s *TaskService) Load(ctx context.Context) error {
	rows, err := s.store.List(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	tree := tasks.BuildTree(rows)

	s.mu.Lock()
	s.list = tree
	s.mu.Unlock()

	for _, t := range tasks.Flatten(tree) {
		s.schedule(t)
	}
	return nil
}

// Tasks returns a snapshot of the task list.
func (s *TaskService) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tasks.Clone(s.list)
}

// Get returns a task or subtask by id.
func (s *TaskService) Get(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := tasks.Find(s.list, id)
	if !ok {
		return model.Task{}, false
	}
	return t.Clone(), true
}

// FindByShortID resolves the id suffix shown in the bot.
func (s *TaskService) FindByShortID(short string) (model.Task, bool) {
	short = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(short, "#")))
	if short == "" {
		return model.Task{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range tasks.Flatten(s.list) {
		if t.ID == short || tasks.ShortID(t.ID) == short {
			return t.Clone(), true
		}
	}
	return model.Task{}, false
}

// CreateTask validates input, writes it to the store and folds the stored
// row into local state. A duplicate (an already generated recurring
// instance) is logged and yields nil, nil.
func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, tasks.ErrEmptyTitle
	}
	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !tasks.ValidPriority(priority) {
		return nil, &tasks.ValidationError{Field: "priority", Value: priority, Reason: "unknown priority"}
	}
	pattern := optional(input.RecurrencePattern)
	if pattern != nil && !tasks.ValidPattern(*pattern) {
		return nil, &tasks.ValidationError{Field: "recurrence_pattern", Value: *pattern, Reason: "unknown pattern"}
	}
	dueDate := optional(input.DueDate)
	if dueDate != nil {
		if _, err := time.Parse("2006-01-02", *dueDate); err != nil {
			return nil, &tasks.ValidationError{Field: "due_date", Value: *dueDate, Reason: "expected YYYY-MM-DD"}
		}
	}
	dueTime := optional(input.DueTime)
	if dueTime != nil {
		if _, err := time.Parse("15:04", *dueTime); err != nil {
			return nil, &tasks.ValidationError{Field: "due_time", Value: *dueTime, Reason: "expected HH:MM"}
		}
	}

	parentID := optional(input.ParentTaskID)
	if parentID != nil {
		if err := s.checkParent(*parentID, ""); err != nil {
			return nil, err
		}
	}

	t := model.Task{
		UserID:            s.userID,
		Title:             title,
		Description:       optional(input.Description),
		Priority:          priority,
		Status:            model.StatusPending,
		DueDate:           dueDate,
		DueTime:           dueTime,
		CategoryID:        optional(input.CategoryID),
		ParentTaskID:      parentID,
		IsRecurring:       input.IsRecurring || pattern != nil,
		RecurrencePattern: pattern,
		RecurrenceKey:     optional(input.recurrenceKey),
	}

	stored, err := s.store.Insert(ctx, &t)
	if errors.Is(err, tasks.ErrDuplicate) {
		log.Printf("[info] skip duplicate task user=%s title=%q", s.userID, title)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.fold(*stored)
	s.schedule(*stored)
	cp := stored.Clone()
	return &cp, nil
}

// CreateTaskFromTemplate prefills a task from a catalog entry.
func (s *TaskService) CreateTaskFromTemplate(ctx context.Context, tpl model.Template, dueDate string) (*model.Task, error) {
	input := TaskInput{
		Title:       tpl.Name,
		Description: tpl.Description,
		Priority:    tpl.Priority,
		DueDate:     dueDate,
	}
	if tpl.RecurrencePattern != nil {
		input.IsRecurring = true
		input.RecurrencePattern = *tpl.RecurrencePattern
	}
	if tpl.Category != "" && s.categories != nil {
		category, err := s.categories.GetOrCreate(ctx, s.userID, tpl.Category)
		if err != nil {
			return nil, err
		}
		if category != nil {
			input.CategoryID = category.ID
		}
	}
	return s.CreateTask(ctx, input)
}

// UpdateTask writes column changes to the store and folds the result.
func (s *TaskService) UpdateTask(ctx context.Context, id string, fields map[string]any) (*model.Task, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	if v, ok := fields["parent_task_id"]; ok {
		if parentID := parentValue(v); parentID != "" {
			if err := s.checkParent(parentID, id); err != nil {
				return nil, err
			}
		}
	}
	stored, err := s.store.Update(ctx, s.userID, id, fields)
	if err != nil {
		return nil, err
	}
	s.fold(*stored)
	s.schedule(*stored)
	cp := stored.Clone()
	return &cp, nil
}

// CompleteTask marks a task completed locally, then in the store. A failed
// store write is returned to the caller; local state is not rolled back.
func (s *TaskService) CompleteTask(ctx context.Context, id string) (*model.Task, error) {
	completedAt := s.now().UTC().Truncate(time.Microsecond)

	s.mu.Lock()
	current, ok := tasks.Find(s.list, id)
	if !ok {
		s.mu.Unlock()
		return nil, tasks.ErrNotFound
	}
	local := current.Clone()
	local.Status = model.StatusCompleted
	local.CompletedAt = &completedAt
	local.UpdatedAt = nil
	s.list = tasks.Upsert(s.list, local)
	s.mu.Unlock()

	if s.reminders != nil {
		s.reminders.Cancel(id)
	}

	stored, err := s.store.Update(ctx, s.userID, id, map[string]any{
		"status":       model.StatusCompleted,
		"completed_at": completedAt,
	})
	if err != nil {
		log.Printf("[warn] complete task %s: %v", id, err)
		return nil, fmt.Errorf("complete task: %w", err)
	}
	s.fold(*stored)
	cp := stored.Clone()
	return &cp, nil
}

// DeleteTask removes a task locally, then from the store. On failure the
// local list is restored from the snapshot taken before removal.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := tasks.Find(s.list, id); !ok {
		s.mu.Unlock()
		return tasks.ErrNotFound
	}
	snapshot := s.list
	s.list = tasks.RemoveByID(s.list, id)
	s.mu.Unlock()

	if err := s.store.Delete(ctx, s.userID, id); err != nil {
		s.mu.Lock()
		s.list = snapshot
		s.mu.Unlock()
		log.Printf("[warn] delete task %s rolled back: %v", id, err)
		return fmt.Errorf("delete task: %w", err)
	}

	if s.reminders != nil {
		s.reminders.Cancel(id)
		for _, sub := range subtasksOf(snapshot, id) {
			s.reminders.Cancel(sub.ID)
		}
	}
	return nil
}

// ApplyEvent folds a push-stream event into local state. Events that fail
// validation are logged and dropped.
func (s *TaskService) ApplyEvent(e realtime.Event) {
	s.mu.Lock()
	next, err := tasks.Apply(s.list, e)
	if err != nil {
		s.mu.Unlock()
		log.Printf("[warn] drop %s event for user=%s: %v", e.Type, s.userID, err)
		return
	}
	s.list = next
	var current model.Task
	var found bool
	id := eventID(e)
	if e.Type != realtime.Delete {
		current, found = tasks.Find(s.list, id)
	}
	s.mu.Unlock()

	if s.reminders == nil {
		return
	}
	switch {
	case e.Type == realtime.Delete:
		s.reminders.Cancel(id)
	case found:
		s.schedule(current)
	}
}

// Run consumes events until ctx is done or the channel closes.
func (s *TaskService) Run(ctx context.Context, events <-chan realtime.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.ApplyEvent(e)
		}
	}
}

// GenerateRecurring creates today's instance of every recurring task that
// is due today. Instances that already exist are skipped; a failed instance
// does not stop the rest, and all failures are returned together.
func (s *TaskService) GenerateRecurring(ctx context.Context) (int, error) {
	now := s.now().In(s.loc)
	today := now.Format("2006-01-02")

	created := 0
	var failed error
	for _, parent := range s.Tasks() {
		if !parent.IsRecurring || parent.RecurrencePattern == nil || parent.IsCompleted() {
			continue
		}
		if !RecursOn(parent, now) {
			continue
		}
		t, err := s.CreateTask(ctx, TaskInput{
			Title:         parent.Title,
			Description:   deref(parent.Description),
			CategoryID:    deref(parent.CategoryID),
			Priority:      parent.Priority,
			DueDate:       today,
			DueTime:       deref(parent.DueTime),
			ParentTaskID:  parent.ID,
			recurrenceKey: parent.ID + ":" + today,
		})
		if err != nil {
			failed = errors.Join(failed, fmt.Errorf("generate %s: %w", parent.ID, err))
			log.Printf("[warn] recurring instance of %s for user=%s: %v", parent.ID, s.userID, err)
			continue
		}
		if t != nil {
			created++
		}
	}
	return created, failed
}

// RecursOn reports whether a recurring task has an occurrence on day.
// Weekly and monthly tasks anchor on their due date, or their creation date.
func RecursOn(t model.Task, day time.Time) bool {
	if t.RecurrencePattern == nil {
		return false
	}
	anchor, ok := t.Due(day.Location())
	if !ok {
		anchor = t.CreatedAt.In(day.Location())
	}
	if anchor.IsZero() {
		return *t.RecurrencePattern == model.RecurDaily
	}
	endOfDay := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())
	if anchor.After(endOfDay) {
		return false
	}
	switch *t.RecurrencePattern {
	case model.RecurDaily:
		return true
	case model.RecurWeekly:
		return anchor.Weekday() == day.Weekday()
	case model.RecurMonthly:
		dueDay := anchor.Day()
		if last := daysInMonth(day.Month(), day.Year()); dueDay > last {
			dueDay = last
		}
		return day.Day() == dueDay
	default:
		return false
	}
}

// GetTodaysTasks returns top-level tasks due today.
func (s *TaskService) GetTodaysTasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tasks.TodaysTasks(s.list, s.now().In(s.loc))
}

// GetCompletedTasksToday returns tasks completed on today's local date.
func (s *TaskService) GetCompletedTasksToday() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tasks.CompletedToday(s.list, s.now().In(s.loc))
}

// GetTasksByCategory returns top-level tasks in a category.
func (s *TaskService) GetTasksByCategory(categoryID string) []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tasks.ByCategory(s.list, categoryID)
}

// CalculateTaskStreak counts consecutive days, ending today, with completions.
func (s *TaskService) CalculateTaskStreak() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tasks.Streak(s.list, s.now().In(s.loc))
}

func (s *TaskService) fold(t model.Task) {
	s.mu.Lock()
	s.list = tasks.Upsert(s.list, t)
	s.mu.Unlock()
}

func (s *TaskService) schedule(t model.Task) {
	if s.reminders == nil {
		return
	}
	if t.IsCompleted() || t.Status == model.StatusCancelled {
		s.reminders.Cancel(t.ID)
		return
	}
	s.reminders.Schedule(t)
}

// checkParent requires parentID to be a top-level task of this session.
// childID, when set, is the task being moved; it must not be the parent
// itself and must have no subtasks of its own.
func (s *TaskService) checkParent(parentID, childID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parent, ok := tasks.Find(s.list, parentID)
	if !ok {
		return fmt.Errorf("parent %s: %w", parentID, tasks.ErrNotFound)
	}
	if parent.ParentTaskID != nil {
		return &tasks.ValidationError{Field: "parent_task_id", Value: parentID, Reason: "parent is a subtask"}
	}
	if childID == "" {
		return nil
	}
	if childID == parentID {
		return &tasks.ValidationError{Field: "parent_task_id", Value: parentID, Reason: "task cannot be its own parent"}
	}
	if child, ok := tasks.Find(s.list, childID); ok && len(child.Subtasks) > 0 {
		return &tasks.ValidationError{Field: "parent_task_id", Value: parentID, Reason: "task has subtasks"}
	}
	return nil
}

func parentValue(v any) string {
	switch p := v.(type) {
	case string:
		return strings.TrimSpace(p)
	case *string:
		if p != nil {
			return strings.TrimSpace(*p)
		}
	}
	return ""
}

func validateFields(fields map[string]any) error {
	if v, ok := fields["title"]; ok {
		title, _ := v.(string)
		if strings.TrimSpace(title) == "" {
			return tasks.ErrEmptyTitle
		}
	}
	if v, ok := fields["status"]; ok {
		status, _ := v.(string)
		if !tasks.ValidStatus(status) {
			return &tasks.ValidationError{Field: "status", Value: v, Reason: "unknown status"}
		}
	}
	if v, ok := fields["priority"]; ok {
		priority, _ := v.(string)
		if !tasks.ValidPriority(priority) {
			return &tasks.ValidationError{Field: "priority", Value: v, Reason: "unknown priority"}
		}
	}
	return nil
}

func eventID(e realtime.Event) string {
	if e.Type == realtime.Delete {
		id, _ := e.Old["id"].(string)
		return id
	}
	id, _ := e.New["id"].(string)
	return id
}

func subtasksOf(list []model.Task, id string) []model.Task {
	for _, t := range list {
		if t.ID == id {
			return t.Subtasks
		}
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstOfNextMonth := firstOfMonth.AddDate(0, 1, 0)
	lastOfMonth := firstOfNextMonth.AddDate(0, 0, -1)
	return lastOfMonth.Day()
}
