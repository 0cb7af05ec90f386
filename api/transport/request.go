package transport

import (
	"strings"
	"time"

	"github.com/fastygo/tasktracker/domain"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CreateTaskRequest only checks shape; length rules live in domain.NewTaskInput.
// DueDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
type CreateTaskRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	DueDate     *string `json:"due_date" validate:"omitempty,isodate"`
}

func (r CreateTaskRequest) Input() domain.NewTaskInput {
	return domain.NewTaskInput{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     dueDate(r.DueDate),
	}
}

type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status" validate:"omitempty,oneof=PENDING IN_PROGRESS DONE"`
	DueDate     *string `json:"due_date" validate:"omitempty,isodate"`
}

func (r UpdateTaskRequest) Patch() domain.TaskPatch {
	patch := domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     dueDate(r.DueDate),
	}
	if r.Status != nil {
		status := domain.TaskStatus(*r.Status)
		patch.Status = &status
	}
	return patch
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02"}

// ParseDate reads a calendar date as midnight UTC or a full RFC 3339 timestamp.
func ParseDate(value string) (time.Time, error) {
	var err error
	for _, layout := range dateLayouts {
		t, perr := time.Parse(layout, strings.TrimSpace(value))
		if perr == nil {
			return t.UTC(), nil
		}
		err = perr
	}
	return time.Time{}, err
}

// dueDate converts an already validated due_date; blank means unset.
func dueDate(value *string) *time.Time {
	if value == nil {
		return nil
	}
	t, err := ParseDate(*value)
	if err != nil {
		return nil
	}
	return &t
}
