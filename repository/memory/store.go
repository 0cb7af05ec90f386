// Package memory provides map-backed repositories for tests and local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/repository"
)

// TaskStore is an in-memory repository.TaskStore. It counts calls per method so
// tests can tell whether a read reached the store.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
	calls map[string]int
	// Err, when set, is returned by every method.
	Err error
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]domain.Task),
		calls: make(map[string]int),
	}
}

var _ repository.TaskStore = (*TaskStore)(nil)

// Calls returns how many times method was invoked.
func (s *TaskStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Raw returns the stored record regardless of soft-delete state.
func (s *TaskStore) Raw(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Len returns the number of stored records, deleted ones included.
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *TaskStore) Insert(ctx context.Context, task *domain.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["Insert"]++
	if err := s.check(ctx); err != nil {
		return "", err
	}
	if task == nil {
		return "", domain.ErrInvalidPayload
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	s.tasks[task.ID] = *task
	return task.ID, nil
}

func (s *TaskStore) FindOne(ctx context.Context, filter repository.TaskFilter) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindOne"]++
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for _, t := range s.tasks {
		if matches(t, filter) {
			found := t
			return &found, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (s *TaskStore) FindMany(ctx context.Context, filter repository.TaskFilter, order repository.TaskSort) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindMany"]++
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0)
	for _, t := range s.tasks {
		if matches(t, filter) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		less := lessBy(out[i], out[j], order.Field)
		if order.Desc {
			return lessBy(out[j], out[i], order.Field)
		}
		return less
	})
	return out, nil
}

func (s *TaskStore) FindOneAndUpdate(ctx context.Context, filter repository.TaskFilter, update repository.TaskUpdate) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FindOneAndUpdate"]++
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	for id, t := range s.tasks {
		if matches(t, filter) {
			apply(&t, update)
			s.tasks[id] = t
			updated := t
			return &updated, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (s *TaskStore) UpdateOne(ctx context.Context, filter repository.TaskFilter, update repository.TaskUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["UpdateOne"]++
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	for id, t := range s.tasks {
		if matches(t, filter) {
			apply(&t, update)
			s.tasks[id] = t
			return 1, nil
		}
	}
	return 0, nil
}

func (s *TaskStore) check(ctx context.Context) error {
	if s.Err != nil {
		return s.Err
	}
	return ctx.Err()
}

func matches(t domain.Task, f repository.TaskFilter) bool {
	if f.ID != "" && t.ID != f.ID {
		return false
	}
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.IncludeDeleted && t.Deleted {
		return false
	}
	return true
}

func apply(t *domain.Task, u repository.TaskUpdate) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.DueDate != nil {
		due := *u.DueDate
		t.DueDate = &due
	}
	if u.CompletedAt != nil {
		done := *u.CompletedAt
		t.CompletedAt = &done
	}
	if u.Deleted != nil {
		t.Deleted = *u.Deleted
	}
	t.UpdatedAt = u.UpdatedAt
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
}

func lessBy(a, b domain.Task, field string) bool {
	switch field {
	case "updated_at":
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	case "title":
		if a.Title != b.Title {
			return a.Title < b.Title
		}
	default:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	return a.ID < b.ID
}

// UserRepository is an in-memory repository.UserRepository.
type UserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]domain.User)}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	r.users[id] = u
	return nil
}

// SessionRepository is an in-memory repository.SessionRepository.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	ttl      time.Duration
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionRepository{sessions: make(map[string]domain.Session), ttl: ttl}
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.IsExpired(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *SessionRepository) Save(_ context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		session.ExpiresAt = session.CreatedAt.Add(r.ttl)
	}
	r.sessions[session.ID] = *session
	return nil
}

func (r *SessionRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *SessionRepository) Extend(_ context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.IsExpired(time.Now()) {
		return domain.ErrSessionNotFound
	}
	s.ExpiresAt = time.Now().Add(ttl)
	r.sessions[id] = s
	return nil
}
