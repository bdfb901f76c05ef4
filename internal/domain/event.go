package domain

import (
	"time"
)

// Event names producers may fire. The set is closed: subscriptions can only
// register for these and the dispatcher ignores anything else.
const (
	EventTaskCreated       = "task.created"
	EventTaskUpdated       = "task.updated"
	EventTaskDeleted       = "task.deleted"
	EventTaskAssigned      = "task.assigned"
	EventTaskStatusChanged = "task.status_changed"

	EventProjectCreated  = "project.created"
	EventProjectUpdated  = "project.updated"
	EventProjectDeleted  = "project.deleted"
	EventProjectArchived = "project.archived"

	EventSprintCreated   = "sprint.created"
	EventSprintUpdated   = "sprint.updated"
	EventSprintDeleted   = "sprint.deleted"
	EventSprintStarted   = "sprint.started"
	EventSprintCompleted = "sprint.completed"

	EventCommentCreated = "comment.created"
	EventCommentUpdated = "comment.updated"
	EventCommentDeleted = "comment.deleted"
)

var eventNames = []string{
	EventTaskCreated, EventTaskUpdated, EventTaskDeleted, EventTaskAssigned, EventTaskStatusChanged,
	EventProjectCreated, EventProjectUpdated, EventProjectDeleted, EventProjectArchived,
	EventSprintCreated, EventSprintUpdated, EventSprintDeleted, EventSprintStarted, EventSprintCompleted,
	EventCommentCreated, EventCommentUpdated, EventCommentDeleted,
}

var knownEvents = func() map[string]struct{} {
	m := make(map[string]struct{}, len(eventNames))
	for _, e := range eventNames {
		m[e] = struct{}{}
	}
	return m
}()

// EventNames returns the full event vocabulary in declaration order.
func EventNames() []string {
	out := make([]string, len(eventNames))
	copy(out, eventNames)
	return out
}

// IsKnownEvent reports whether name belongs to the event vocabulary.
func IsKnownEvent(name string) bool {
	_, ok := knownEvents[name]
	return ok
}

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// EventPayload is the JSON body POSTed to every matching subscription.
type EventPayload struct {
	Event     string  `json:"event"`
	Timestamp string  `json:"timestamp"`
	Data      any     `json:"data"`
	ProjectID *string `json:"projectId,omitempty"`
}

// NewEventPayload stamps the payload once; the same value is serialised a
// single time and shared by all recipients.
func NewEventPayload(event string, data any, projectID string, now time.Time) EventPayload {
	p := EventPayload{
		Event:     event,
		Timestamp: now.UTC().Format(TimestampLayout),
		Data:      data,
	}
	if projectID != "" {
		p.ProjectID = &projectID
	}
	return p
}
