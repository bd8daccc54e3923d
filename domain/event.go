package domain

import "time"

// Event is an activity feed entry published after a board mutation.
type Event struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"projectId"`
	TaskID    string    `json:"taskId,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
	At        time.Time `json:"at"`
}

// EventEnvelope wraps an event with the project it belongs to so queue
// consumers can route without decoding the payload twice.
type EventEnvelope struct {
	ProjectID string `json:"projectId"`
	Event     Event  `json:"event"`
}

const (
	EventTaskCreated = "task-created"
	EventTaskMoved   = "task-moved"
	EventTaskDeleted = "task-deleted"
)
