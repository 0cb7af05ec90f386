package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/repository"
	"github.com/fastygo/tasktracker/usecase"
)

// DefaultCacheTTL bounds how stale a cached task list may get.
const DefaultCacheTTL = 300 * time.Second

// Config holds coordinator settings resolved from application config.
type Config struct {
	Exchange string
	CacheTTL time.Duration
	Timeouts usecase.Timeouts
}

// CacheKey returns the cache key of a user's task list.
func CacheKey(userID string) string {
	return "tasks:user:" + userID
}

// UseCase coordinates every task mutation: the store write comes first, then
// the user's cache entry is dropped, then the event is published. Only a
// failed store write fails the call; the later steps are best effort.
type UseCase struct {
	tasks     repository.TaskStore
	cache     usecase.Cache
	publisher usecase.Publisher
	outbox    usecase.EventOutbox
	recorder  *observability.Recorder
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
	lists     singleflight.Group
}

type Option func(*UseCase)

// WithOutbox defers events that fail to publish.
func WithOutbox(outbox usecase.EventOutbox) Option {
	return func(uc *UseCase) { uc.outbox = outbox }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(uc *UseCase) { uc.now = now }
}

func New(
	tasks repository.TaskStore,
	cache usecase.Cache,
	publisher usecase.Publisher,
	recorder *observability.Recorder,
	logger *zap.Logger,
	cfg Config,
	opts ...Option,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "TASKS"
	}
	cfg.Timeouts = cfg.Timeouts.WithDefaults()

	uc := &UseCase{
		tasks:     tasks,
		cache:     cache,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *UseCase) Create(ctx context.Context, userID string, in domain.NewTaskInput) (*domain.Task, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	task := &domain.Task{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Status:      domain.TaskStatusPending,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	pctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Persistence)
	id, err := uc.tasks.Insert(pctx, task)
	cancel()
	if err != nil {
		return nil, uc.persistenceError("create", userID, "", err)
	}
	task.ID = id

	uc.afterWrite(ctx, "create", task, domain.NewTaskCreated(task, now))
	return task, nil
}

// List serves the user's tasks from cache, reading through to the store on a miss.
func (uc *UseCase) List(ctx context.Context, userID string) ([]domain.Task, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	key := CacheKey(userID)

	if tasks, ok := uc.cached(ctx, userID, key); ok {
		uc.recorder.CacheHit(userID)
		return tasks, nil
	}
	uc.recorder.CacheMiss(userID)

	// The shared read is detached from any single caller so one cancelled
	// request cannot fail the others waiting on the same key.
	shared := context.WithoutCancel(ctx)
	ch := uc.lists.DoChan(key, func() (interface{}, error) {
		pctx, cancel := context.WithTimeout(shared, uc.cfg.Timeouts.Persistence)
		defer cancel()
		tasks, err := uc.tasks.FindMany(pctx, repository.TaskFilter{UserID: userID}, repository.SortByCreatedDesc)
		if err != nil {
			return nil, uc.persistenceError("list", userID, "", err)
		}
		uc.populate(shared, userID, key, tasks)
		return tasks, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	found := res.Val.([]domain.Task)
	out := make([]domain.Task, len(found))
	copy(out, found)
	return out, nil
}

func (uc *UseCase) GetOne(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if taskID == "" {
		return nil, domain.ErrTaskNotFound
	}

	pctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Persistence)
	defer cancel()
	task, err := uc.tasks.FindOne(pctx, repository.TaskFilter{ID: taskID, UserID: userID})
	if err != nil {
		return nil, uc.persistenceError("get", userID, taskID, err)
	}
	return task, nil
}

func (uc *UseCase) Update(ctx context.Context, userID, taskID string, patch domain.TaskPatch) (*domain.Task, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if taskID == "" {
		return nil, domain.ErrTaskNotFound
	}

	now := uc.now().UTC()
	update := repository.TaskUpdate{
		Title:       patch.Title,
		Description: patch.Description,
		Status:      patch.Status,
		DueDate:     patch.DueDate,
		UpdatedAt:   now,
	}
	if patch.Status != nil && *patch.Status == domain.TaskStatusDone {
		update.CompletedAt = &now
	}

	pctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Persistence)
	task, err := uc.tasks.FindOneAndUpdate(pctx, repository.TaskFilter{ID: taskID, UserID: userID}, update)
	cancel()
	if err != nil {
		return nil, uc.persistenceError("update", userID, taskID, err)
	}

	uc.afterWrite(ctx, "update", task, domain.NewTaskUpdated(task, patch.ChangedFields(), now))
	return task, nil
}

// MarkDone sets DONE and refreshes the completion time, also for tasks that are already done.
func (uc *UseCase) MarkDone(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if taskID == "" {
		return nil, domain.ErrTaskNotFound
	}

	now := uc.now().UTC()
	status := domain.TaskStatusDone
	update := repository.TaskUpdate{
		Status:      &status,
		CompletedAt: &now,
		UpdatedAt:   now,
	}

	pctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Persistence)
	task, err := uc.tasks.FindOneAndUpdate(pctx, repository.TaskFilter{ID: taskID, UserID: userID}, update)
	cancel()
	if err != nil {
		return nil, uc.persistenceError("mark_done", userID, taskID, err)
	}

	uc.afterWrite(ctx, "mark_done", task, domain.NewTaskCompleted(task, now))
	return task, nil
}

// Remove soft-deletes the task; the record stays in the store.
func (uc *UseCase) Remove(ctx context.Context, userID, taskID string) error {
	if userID == "" {
		return domain.ErrUnauthorized
	}
	if taskID == "" {
		return domain.ErrTaskNotFound
	}

	now := uc.now().UTC()
	deleted := true
	update := repository.TaskUpdate{Deleted: &deleted, UpdatedAt: now}

	pctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Persistence)
	matched, err := uc.tasks.UpdateOne(pctx, repository.TaskFilter{ID: taskID, UserID: userID}, update)
	cancel()
	if err != nil {
		return uc.persistenceError("remove", userID, taskID, err)
	}
	if matched == 0 {
		return domain.ErrTaskNotFound
	}

	task := &domain.Task{ID: taskID, UserID: userID}
	uc.afterWrite(ctx, "remove", task, domain.NewTaskDeleted(task, now))
	return nil
}

// Stats always scans the store; the cache is never consulted.
func (uc *UseCase) Stats(ctx context.Context, userID string) (domain.TaskStats, error) {
	var stats domain.TaskStats
	if userID == "" {
		return stats, domain.ErrUnauthorized
	}

	pctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Persistence)
	defer cancel()
	tasks, err := uc.tasks.FindMany(pctx, repository.TaskFilter{UserID: userID}, repository.SortByCreatedDesc)
	if err != nil {
		return stats, uc.persistenceError("stats", userID, "", err)
	}
	for _, t := range tasks {
		stats.Add(t.Status)
	}
	return stats, nil
}

// afterWrite runs the best-effort steps of a mutation in order. They run
// detached from the caller's cancellation so a disconnecting client cannot
// skip them once the write is durable.
func (uc *UseCase) afterWrite(ctx context.Context, operation string, task *domain.Task, event domain.Event) {
	ctx = context.WithoutCancel(ctx)
	uc.invalidate(ctx, operation, task)
	uc.publish(ctx, operation, task, event)
}

func (uc *UseCase) invalidate(ctx context.Context, operation string, task *domain.Task) {
	if uc.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Cache)
	defer cancel()
	if err := uc.cache.Delete(cctx, CacheKey(task.UserID)); err != nil {
		uc.recorder.Degraded(observability.Degradation{
			Operation: operation,
			Step:      observability.StepCacheInvalidate,
			UserID:    task.UserID,
			TaskID:    task.ID,
			Err:       err,
		})
	}
}

func (uc *UseCase) publish(ctx context.Context, operation string, task *domain.Task, event domain.Event) {
	degraded := func(step string, err error) {
		uc.recorder.Degraded(observability.Degradation{
			Operation: operation,
			Step:      step,
			UserID:    task.UserID,
			TaskID:    task.ID,
			Err:       err,
		})
	}

	payload, err := domain.EncodeEvent(event)
	if err != nil {
		degraded(observability.StepPublish, err)
		return
	}

	if uc.publisher == nil {
		err = errors.New("publisher not configured")
	} else {
		pctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Publish)
		err = uc.publisher.Publish(pctx, uc.cfg.Exchange, string(event.Header().Kind), payload)
		cancel()
	}
	if err == nil {
		return
	}
	degraded(observability.StepPublish, err)

	if uc.outbox == nil {
		return
	}
	if oerr := uc.outbox.Defer(ctx, uc.cfg.Exchange, event, payload, err); oerr != nil {
		degraded(observability.StepOutbox, oerr)
	}
}

func (uc *UseCase) cached(ctx context.Context, userID, key string) ([]domain.Task, bool) {
	if uc.cache == nil {
		return nil, false
	}
	cctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeouts.Cache)
	defer cancel()

	data, found, err := uc.cache.Get(cctx, key)
	if err != nil {
		uc.recorder.Degraded(observability.Degradation{Operation: "list", Step: observability.StepCacheRead, UserID: userID, Err: err})
		return nil, false
	}
	if !found {
		return nil, false
	}

	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		uc.recorder.Degraded(observability.Degradation{Operation: "list", Step: observability.StepCacheRead, UserID: userID, Err: err})
		return nil, false
	}
	return tasks, true
}

func (uc *UseCase) populate(ctx context.Context, userID, key string, tasks []domain.Task) {
	if uc.cache == nil {
		return
	}
	data, err := json.Marshal(tasks)
	if err == nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.Timeouts.Cache)
		err = uc.cache.Set(cctx, key, data, uc.cfg.CacheTTL)
		cancel()
	}
	if err != nil {
		uc.recorder.Degraded(observability.Degradation{Operation: "list", Step: observability.StepCachePopulate, UserID: userID, Err: err})
	}
}

// persistenceError passes domain errors through and reports anything else as a
// retryable UNAVAILABLE.
func (uc *UseCase) persistenceError(operation, userID, taskID string, err error) error {
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr.Code != domain.ErrCodeUnavailable {
		return err
	}
	uc.logger.Error("task store failed",
		zap.String("operation", operation),
		zap.String("user_id", userID),
		zap.String("task_id", taskID),
		zap.Error(err))
	if dErr != nil {
		return err
	}
	return domain.WrapError(domain.ErrCodeUnavailable, "task storage unavailable", err)
}
