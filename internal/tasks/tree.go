package tasks

import "barakah-tasks/internal/model"

// BuildTree nests flat rows under their parents. Rows whose parent is not a
// top-level task are dropped, which caps nesting at one level.
func BuildTree(flat []model.Task) []model.Task {
	var top []model.Task
	index := make(map[string]int)
	for _, t := range flat {
		if t.ParentTaskID != nil {
			continue
		}
		cp := t.Clone()
		cp.Subtasks = []model.Task{}
		index[cp.ID] = len(top)
		top = append(top, cp)
	}
	for _, t := range flat {
		if t.ParentTaskID == nil {
			continue
		}
		i, ok := index[*t.ParentTaskID]
		if !ok {
			continue
		}
		cp := t.Clone()
		cp.Subtasks = []model.Task{}
		top[i].Subtasks = append(top[i].Subtasks, cp)
	}
	return top
}

// Flatten lists every task and subtask.
func Flatten(list []model.Task) []model.Task {
	var out []model.Task
	for _, t := range list {
		out = append(out, t)
		out = append(out, t.Subtasks...)
	}
	return out
}

// ShortID is the suffix of an id shown to people. UUIDv7 prefixes encode
// the creation time, so the random tail is used.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
