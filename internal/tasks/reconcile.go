package tasks

import (
	"fmt"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/realtime"
)

// Newer reports whether incoming should replace existing under
// last-write-wins. A missing timestamp on either side counts as newer.
func Newer(incoming, existing model.Task) bool {
	if incoming.UpdatedAt == nil || existing.UpdatedAt == nil {
		return true
	}
	return !incoming.UpdatedAt.Before(*existing.UpdatedAt)
}

// Find returns the task with id from the top level or any subtask list.
func Find(list []model.Task, id string) (model.Task, bool) {
	for _, t := range list {
		if t.ID == id {
			return t, true
		}
		for _, sub := range t.Subtasks {
			if sub.ID == id {
				return sub, true
			}
		}
	}
	return model.Task{}, false
}

// Upsert folds t into list, routing it to its parent when it has one.
func Upsert(list []model.Task, t model.Task) []model.Task {
	if t.ParentTaskID != nil {
		return InsertOrReplaceSubtask(list, t)
	}
	return InsertOrReplaceParent(list, t)
}

// InsertOrReplaceParent folds a top-level task into list. An existing entry
// keeps its subtasks when the incoming record carries none. Strictly older
// records leave the list unchanged.
func InsertOrReplaceParent(list []model.Task, t model.Task) []model.Task {
	out := Clone(list)
	if existing, ok := Find(out, t.ID); ok && !Newer(t, existing) {
		return out
	}

	incoming := t.Clone()
	for i := range out {
		if out[i].ID != t.ID {
			continue
		}
		if len(incoming.Subtasks) == 0 {
			incoming.Subtasks = out[i].Subtasks
		}
		capDepth(incoming.Subtasks)
		out[i] = incoming
		return out
	}

	// Previously a subtask; it has been promoted.
	out = removeNested(out, t.ID)
	capDepth(incoming.Subtasks)
	return append(out, incoming)
}

// InsertOrReplaceSubtask folds a subtask into its parent's subtask list.
// A subtask whose parent is not in list is dropped.
func InsertOrReplaceSubtask(list []model.Task, t model.Task) []model.Task {
	out := Clone(list)
	if t.ParentTaskID == nil {
		return out
	}
	parent := -1
	for i := range out {
		if out[i].ID == *t.ParentTaskID {
			parent = i
			break
		}
	}
	if parent < 0 {
		return out
	}
	if existing, ok := Find(out, t.ID); ok && !Newer(t, existing) {
		return out
	}

	incoming := t.Clone()
	incoming.Subtasks = []model.Task{}

	for i := range out[parent].Subtasks {
		if out[parent].Subtasks[i].ID == t.ID {
			out[parent].Subtasks[i] = incoming
			return out
		}
	}

	// Moved from the top level or from another parent.
	out = RemoveByID(out, t.ID)
	for i := range out {
		if out[i].ID == *t.ParentTaskID {
			out[i].Subtasks = append(out[i].Subtasks, incoming)
			break
		}
	}
	return out
}

// RemoveByID removes the task from the top level and from every parent's
// subtasks in one pass.
func RemoveByID(list []model.Task, id string) []model.Task {
	out := make([]model.Task, 0, len(list))
	for _, t := range list {
		if t.ID == id {
			continue
		}
		cp := t.Clone()
		if len(cp.Subtasks) > 0 {
			subs := cp.Subtasks[:0]
			for _, sub := range cp.Subtasks {
				if sub.ID != id {
					subs = append(subs, sub)
				}
			}
			cp.Subtasks = subs
		}
		out = append(out, cp)
	}
	return out
}

// Apply folds a push-stream event into list.
func Apply(list []model.Task, e realtime.Event) ([]model.Task, error) {
	switch e.Type {
	case realtime.Insert, realtime.Update:
		t, err := Normalize(Record(e.New))
		if err != nil {
			return list, err
		}
		return Upsert(list, t), nil
	case realtime.Delete:
		id, _ := e.Old["id"].(string)
		if id == "" {
			return list, &ValidationError{Field: "id", Reason: "delete event without id"}
		}
		return RemoveByID(list, id), nil
	default:
		return list, fmt.Errorf("apply event: unknown type %q", e.Type)
	}
}

// Clone deep-copies a task list.
func Clone(list []model.Task) []model.Task {
	if list == nil {
		return nil
	}
	out := make([]model.Task, len(list))
	for i, t := range list {
		out[i] = t.Clone()
	}
	return out
}

func removeNested(list []model.Task, id string) []model.Task {
	for i := range list {
		for j, sub := range list[i].Subtasks {
			if sub.ID == id {
				list[i].Subtasks = append(list[i].Subtasks[:j:j], list[i].Subtasks[j+1:]...)
				return list
			}
		}
	}
	return list
}

func capDepth(subs []model.Task) {
	for i := range subs {
		subs[i].Subtasks = []model.Task{}
	}
}
