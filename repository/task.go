package repository

import (
	"context"
	"time"

	"github.com/fastygo/tasktracker/domain"
)

// TaskFilter selects tasks. Queries are scoped to UserID and skip soft-deleted
// rows unless IncludeDeleted is set.
type TaskFilter struct {
	ID             string
	UserID         string
	Status         domain.TaskStatus
	IncludeDeleted bool
}

// TaskSort orders FindMany results.
type TaskSort struct {
	Field string
	Desc  bool
}

// SortByCreatedDesc is the default ordering for task listings.
var SortByCreatedDesc = TaskSort{Field: "created_at", Desc: true}

// TaskUpdate is the set of columns an update writes. Nil fields are left as is;
// UpdatedAt is always written.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *domain.TaskStatus
	DueDate     *time.Time
	CompletedAt *time.Time
	Deleted     *bool
	UpdatedAt   time.Time
}

// TaskStore is the persistence gateway for tasks.
type TaskStore interface {
	// Insert persists a new task and returns the assigned id.
	Insert(ctx context.Context, task *domain.Task) (string, error)
	// FindOne returns domain.ErrTaskNotFound when nothing matches.
	FindOne(ctx context.Context, filter TaskFilter) (*domain.Task, error)
	FindMany(ctx context.Context, filter TaskFilter, sort TaskSort) ([]domain.Task, error)
	// FindOneAndUpdate applies the update atomically and returns the row after it,
	// or domain.ErrTaskNotFound.
	FindOneAndUpdate(ctx context.Context, filter TaskFilter, update TaskUpdate) (*domain.Task, error)
	// UpdateOne applies the update to at most one row and returns the matched count.
	UpdateOne(ctx context.Context, filter TaskFilter, update TaskUpdate) (int64, error)
}
