package realtime

import "time"

// EventType is the kind of row change carried by an Event.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Event is a row-level change notification. New and Old carry the row as
// decoded JSON; Old is only guaranteed to hold the primary key.
type Event struct {
	Type      EventType      `json:"type"`
	Table     string         `json:"table"`
	UserID    string         `json:"user_id"`
	New       map[string]any `json:"new,omitempty"`
	Old       map[string]any `json:"old,omitempty"`
	Timestamp time.Time      `json:"commit_timestamp"`
}
