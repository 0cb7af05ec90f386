package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind names a task lifecycle transition. It doubles as the routing key.
type EventKind string

const (
	EventTaskCreated   EventKind = "task.created"
	EventTaskUpdated   EventKind = "task.updated"
	EventTaskCompleted EventKind = "task.completed"
	EventTaskDeleted   EventKind = "task.deleted"
)

// EventSchemaVersion is the only payload version this build emits and accepts.
const EventSchemaVersion = 1

// EventKinds lists every known kind.
func EventKinds() []EventKind {
	return []EventKind{EventTaskCreated, EventTaskUpdated, EventTaskCompleted, EventTaskDeleted}
}

// Known reports whether k is part of the closed schema.
func (k EventKind) Known() bool {
	switch k {
	case EventTaskCreated, EventTaskUpdated, EventTaskCompleted, EventTaskDeleted:
		return true
	}
	return false
}

// EventHeader holds the fields shared by every event kind.
type EventHeader struct {
	ID        string    `json:"event_id"`
	Kind      EventKind `json:"kind"`
	Version   int       `json:"version"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is implemented by the four task event payloads.
type Event interface {
	Header() EventHeader
}

type TaskCreated struct {
	EventHeader
	Title string `json:"title"`
}

type TaskUpdated struct {
	EventHeader
	ChangedFields []string `json:"changed_fields"`
}

type TaskCompleted struct {
	EventHeader
	Title       string    `json:"title"`
	CompletedAt time.Time `json:"completed_at"`
}

type TaskDeleted struct {
	EventHeader
}

func (e TaskCreated) Header() EventHeader   { return e.EventHeader }
func (e TaskUpdated) Header() EventHeader   { return e.EventHeader }
func (e TaskCompleted) Header() EventHeader { return e.EventHeader }
func (e TaskDeleted) Header() EventHeader   { return e.EventHeader }

func newHeader(kind EventKind, task *Task, at time.Time) EventHeader {
	return EventHeader{
		ID:        uuid.NewString(),
		Kind:      kind,
		Version:   EventSchemaVersion,
		TaskID:    task.ID,
		UserID:    task.UserID,
		Timestamp: at.UTC(),
	}
}

func NewTaskCreated(task *Task, at time.Time) TaskCreated {
	return TaskCreated{EventHeader: newHeader(EventTaskCreated, task, at), Title: task.Title}
}

func NewTaskUpdated(task *Task, changed []string, at time.Time) TaskUpdated {
	return TaskUpdated{EventHeader: newHeader(EventTaskUpdated, task, at), ChangedFields: changed}
}

func NewTaskCompleted(task *Task, at time.Time) TaskCompleted {
	e := TaskCompleted{EventHeader: newHeader(EventTaskCompleted, task, at), Title: task.Title}
	if task.CompletedAt != nil {
		e.CompletedAt = task.CompletedAt.UTC()
	}
	return e
}

func NewTaskDeleted(task *Task, at time.Time) TaskDeleted {
	return TaskDeleted{EventHeader: newHeader(EventTaskDeleted, task, at)}
}

// EncodeEvent serializes an event as a flat JSON object.
func EncodeEvent(e Event) ([]byte, error) {
	if e == nil {
		return nil, ErrInvalidPayload
	}
	if !e.Header().Kind.Known() {
		return nil, WrapError(ErrCodeInvalid, "unknown event", fmt.Errorf("kind %q", e.Header().Kind))
	}
	return json.Marshal(e)
}

// DecodeEvent parses a payload produced by EncodeEvent. Unknown kinds and
// unsupported versions are rejected with ErrUnknownEvent.
func DecodeEvent(data []byte) (Event, error) {
	var header EventHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, WrapError(ErrCodeInvalid, "malformed event", err)
	}
	if header.Version != EventSchemaVersion {
		return nil, WrapError(ErrCodeInvalid, ErrUnknownEvent.Message,
			fmt.Errorf("kind %q version %d", header.Kind, header.Version))
	}

	var (
		event Event
		err   error
	)
	switch header.Kind {
	case EventTaskCreated:
		var e TaskCreated
		err = json.Unmarshal(data, &e)
		event = e
	case EventTaskUpdated:
		var e TaskUpdated
		err = json.Unmarshal(data, &e)
		event = e
	case EventTaskCompleted:
		var e TaskCompleted
		err = json.Unmarshal(data, &e)
		event = e
	case EventTaskDeleted:
		var e TaskDeleted
		err = json.Unmarshal(data, &e)
		event = e
	default:
		return nil, WrapError(ErrCodeInvalid, ErrUnknownEvent.Message, fmt.Errorf("kind %q", header.Kind))
	}
	if err != nil {
		return nil, WrapError(ErrCodeInvalid, "malformed event", err)
	}
	return event, nil
}
