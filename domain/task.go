package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDone       TaskStatus = "DONE"
)

const (
	TitleMinLength       = 3
	TitleMaxLength       = 100
	DescriptionMaxLength = 500
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task represents a user-owned to-do item.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Deleted     bool       `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (t *Task) IsCompleted() bool {
	return t != nil && t.Status == TaskStatusDone
}

// OwnedBy reports whether the task belongs to userID.
func (t *Task) OwnedBy(userID string) bool {
	return t != nil && userID != "" && t.UserID == userID
}

// NewTaskInput carries the caller-provided fields of a new task.
type NewTaskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// Normalize trims surrounding whitespace from text fields.
func (in *NewTaskInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
}

// Validate checks field constraints and returns an INVALID error with per-field messages.
func (in NewTaskInput) Validate() error {
	fields := map[string]string{}
	checkTitle(fields, in.Title)
	checkDescription(fields, in.Description)
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	DueDate     *time.Time
}

// Normalize trims surrounding whitespace from provided text fields.
func (p *TaskPatch) Normalize() {
	if p.Title != nil {
		v := strings.TrimSpace(*p.Title)
		p.Title = &v
	}
	if p.Description != nil {
		v := strings.TrimSpace(*p.Description)
		p.Description = &v
	}
}

// IsEmpty reports whether no field is set.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.DueDate == nil
}

// Validate checks the provided fields only.
func (p TaskPatch) Validate() error {
	fields := map[string]string{}
	if p.IsEmpty() {
		fields["patch"] = "at least one field must be provided"
	}
	if p.Title != nil {
		checkTitle(fields, *p.Title)
	}
	if p.Description != nil {
		checkDescription(fields, *p.Description)
	}
	if p.Status != nil && !p.Status.Valid() {
		fields["status"] = "status must be one of PENDING, IN_PROGRESS, DONE"
	}
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// ChangedFields lists the names of the set fields in a stable order.
func (p TaskPatch) ChangedFields() []string {
	var out []string
	if p.Title != nil {
		out = append(out, "title")
	}
	if p.Description != nil {
		out = append(out, "description")
	}
	if p.Status != nil {
		out = append(out, "status")
	}
	if p.DueDate != nil {
		out = append(out, "due_date")
	}
	return out
}

// TaskStats aggregates a user's visible tasks by status.
type TaskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
}

// Add counts one task with the given status.
func (s *TaskStats) Add(status TaskStatus) {
	s.Total++
	switch status {
	case TaskStatusPending:
		s.Pending++
	case TaskStatusInProgress:
		s.InProgress++
	case TaskStatusDone:
		s.Done++
	}
}

func checkTitle(fields map[string]string, title string) {
	n := utf8.RuneCountInString(title)
	switch {
	case n == 0:
		fields["title"] = "title is required"
	case n < TitleMinLength:
		fields["title"] = "title must be at least 3 characters long"
	case n > TitleMaxLength:
		fields["title"] = "title must be at most 100 characters long"
	}
}

func checkDescription(fields map[string]string, description string) {
	if utf8.RuneCountInString(description) > DescriptionMaxLength {
		fields["description"] = "description must be at most 500 characters long"
	}
}
