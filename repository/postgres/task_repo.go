package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/repository"
)

const taskColumns = `id, user_id, title, description, status, due_date, deleted, created_at, updated_at, completed_at`

var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_date":   "due_date",
	"title":      "title",
}

type taskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore returns a Postgres-backed implementation of TaskStore.
func NewTaskStore(pool *pgxpool.Pool) repository.TaskStore {
	return &taskStore{pool: pool}
}

func (r *taskStore) Insert(ctx context.Context, task *domain.Task) (string, error) {
	if task == nil {
		return "", domain.ErrInvalidPayload
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO tasks (id, user_id, title, description, status, due_date, deleted, created_at, updated_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()), COALESCE($9, NOW()), $10)
	RETURNING created_at, updated_at
	`

	if err := r.pool.QueryRow(ctx, query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		string(task.Status),
		task.DueDate,
		task.Deleted,
		nullTime(task.CreatedAt),
		nullTime(task.UpdatedAt),
		task.CompletedAt,
	).Scan(&task.CreatedAt, &task.UpdatedAt); err != nil {
		return "", classify(err)
	}

	return task.ID, nil
}

func (r *taskStore) FindOne(ctx context.Context, filter repository.TaskFilter) (*domain.Task, error) {
	where, args := buildWhere(filter, nil)
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s LIMIT 1`, taskColumns, where)

	row := r.pool.QueryRow(ctx, query, args...)
	task, err := scanTask(row)
	if err != nil {
		return nil, classify(err)
	}
	return task, nil
}

func (r *taskStore) FindMany(ctx context.Context, filter repository.TaskFilter, sort repository.TaskSort) ([]domain.Task, error) {
	where, args := buildWhere(filter, nil)
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY %s`, taskColumns, where, orderBy(sort))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, classify(err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, classify(rows.Err())
}

func (r *taskStore) FindOneAndUpdate(ctx context.Context, filter repository.TaskFilter, update repository.TaskUpdate) (*domain.Task, error) {
	set, args := buildSet(update)
	where, args := buildWhere(filter, args)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE %s RETURNING %s`, set, where, taskColumns)

	row := r.pool.QueryRow(ctx, query, args...)
	task, err := scanTask(row)
	if err != nil {
		return nil, classify(err)
	}
	return task, nil
}

func (r *taskStore) UpdateOne(ctx context.Context, filter repository.TaskFilter, update repository.TaskUpdate) (int64, error) {
	set, args := buildSet(update)
	where, args := buildWhere(filter, args)
	// ids are unique, so the id filter already limits this to one row
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE %s`, set, where)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

func buildWhere(filter repository.TaskFilter, args []interface{}) (string, []interface{}) {
	clauses := []string{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.ID != "" {
		add("id", filter.ID)
	}
	if filter.UserID != "" {
		add("user_id", filter.UserID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if !filter.IncludeDeleted {
		clauses = append(clauses, "deleted = FALSE")
	}
	if len(clauses) == 0 {
		return "TRUE", args
	}
	return strings.Join(clauses, " AND "), args
}

func buildSet(update repository.TaskUpdate) (string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.DueDate != nil {
		add("due_date", *update.DueDate)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}
	if update.Deleted != nil {
		add("deleted", *update.Deleted)
	}

	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	add("updated_at", updatedAt)

	return strings.Join(sets, ", "), args
}

func orderBy(sort repository.TaskSort) string {
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = "created_at"
	}
	if sort.Desc {
		return column + " DESC, id DESC"
	}
	return column + " ASC, id ASC"
}

func scanTask(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Task, error) {
	var (
		task   domain.Task
		status string
	)

	if err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&status,
		&task.DueDate,
		&task.Deleted,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	return &task, nil
}
