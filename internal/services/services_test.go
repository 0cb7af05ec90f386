package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/internal/infrastructure/buffer"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/repository/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	err      error
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, _, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, routingKey)
	return nil
}

type staticHealth bool

func (h staticHealth) IsOnline() bool { return bool(h) }

func newOutbox(t *testing.T, pub *recordingPublisher, online bool, maxRetries int) (*OutboxProcessor, *observability.Recorder) {
	t.Helper()
	store, err := buffer.Open(filepath.Join(t.TempDir(), "outbox.db"), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	rec := observability.New(observability.Settings{Enabled: true}, zap.NewNop())
	return NewOutboxProcessor(store, staticHealth(online), pub, rec, zap.NewNop(), ProcessorConfig{MaxRetries: maxRetries}), rec
}

func deferEvent(t *testing.T, op *OutboxProcessor, event domain.Event) {
	t.Helper()
	payload, err := domain.EncodeEvent(event)
	require.NoError(t, err)
	require.NoError(t, op.Defer(context.Background(), "TASKS", event, payload, errors.New("nats down")))
}

func TestOutboxRepublishesDeferredEvents(t *testing.T) {
	pub := &recordingPublisher{}
	op, _ := newOutbox(t, pub, true, 3)
	task := &domain.Task{ID: "t1", UserID: "u1", Title: "demo"}

	deferEvent(t, op, domain.NewTaskCreated(task, time.Now()))
	deferEvent(t, op, domain.NewTaskDeleted(task, time.Now()))
	assert.Equal(t, 2, op.Size())

	require.NoError(t, op.Drain(context.Background()))
	assert.Equal(t, []string{"task.created", "task.deleted"}, pub.subjects)
	assert.Zero(t, op.Size())
}

func TestOutboxWaitsWhileOffline(t *testing.T) {
	pub := &recordingPublisher{}
	op, _ := newOutbox(t, pub, false, 3)
	deferEvent(t, op, domain.NewTaskCreated(&domain.Task{ID: "t1", UserID: "u1"}, time.Now()))

	require.NoError(t, op.Drain(context.Background()))
	assert.Empty(t, pub.subjects)
	assert.Equal(t, 1, op.Size())
}

func TestOutboxDropsAfterMaxRetries(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("still down")}
	op, rec := newOutbox(t, pub, true, 2)
	deferEvent(t, op, domain.NewTaskCreated(&domain.Task{ID: "t1", UserID: "u1"}, time.Now()))

	require.NoError(t, op.Drain(context.Background()))
	assert.Equal(t, 1, op.Size())

	require.NoError(t, op.Drain(context.Background()))
	assert.Zero(t, op.Size())
	assert.EqualValues(t, 1, rec.Snapshot().Degraded[observability.StepOutbox])
}

func TestOutboxDeferRejectsNil(t *testing.T) {
	op, _ := newOutbox(t, &recordingPublisher{}, true, 3)
	assert.ErrorIs(t, op.Defer(context.Background(), "TASKS", nil, nil, nil), domain.ErrInvalidPayload)

	var unset *OutboxProcessor
	assert.Error(t, unset.Defer(context.Background(), "TASKS", nil, nil, nil))
	assert.Zero(t, unset.Size())
}

type fakeSender struct {
	sent []Notification
	err  error
}

func (s *fakeSender) Send(_ context.Context, n Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func newConsumer(t *testing.T, sender Sender) (*EventConsumer, *observability.Recorder, string) {
	t.Helper()
	users := memory.NewUserRepository()
	user := &domain.User{Email: "ada@example.com", Name: "Ada", Active: true}
	require.NoError(t, users.Create(context.Background(), user))

	rec := observability.New(observability.Settings{Enabled: true}, zap.NewNop())
	notifier := NewCompletionNotifier(users, sender, rec, "noreply@example.com", time.Second, nil)
	return NewEventConsumer(notifier, rec, nil), rec, user.ID
}

func encode(t *testing.T, e domain.Event) []byte {
	t.Helper()
	data, err := domain.EncodeEvent(e)
	require.NoError(t, err)
	return data
}

func TestConsumerNotifiesOnCompletion(t *testing.T) {
	sender := &fakeSender{}
	consumer, rec, userID := newConsumer(t, sender)
	done := time.Now()
	task := &domain.Task{ID: "t1", UserID: userID, Title: "Ship", CompletedAt: &done}

	require.NoError(t, consumer.Handle(context.Background(), "task.completed", encode(t, domain.NewTaskCompleted(task, done))))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "ada@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Subject, "Ship")

	s := rec.Snapshot()
	assert.EqualValues(t, 1, s.Notifications)
	assert.EqualValues(t, 1, s.Consumed["task.completed.acked"])
}

func TestConsumerRecordsOtherKinds(t *testing.T) {
	sender := &fakeSender{}
	consumer, rec, userID := newConsumer(t, sender)
	task := &domain.Task{ID: "t1", UserID: userID, Title: "Ship"}

	require.NoError(t, consumer.Handle(context.Background(), "task.created", encode(t, domain.NewTaskCreated(task, time.Now()))))
	require.NoError(t, consumer.Handle(context.Background(), "task.updated", encode(t, domain.NewTaskUpdated(task, []string{"title"}, time.Now()))))
	require.NoError(t, consumer.Handle(context.Background(), "task.deleted", encode(t, domain.NewTaskDeleted(task, time.Now()))))

	assert.Empty(t, sender.sent)
	s := rec.Snapshot()
	assert.EqualValues(t, 1, s.Consumed["task.created.acked"])
	assert.EqualValues(t, 1, s.Consumed["task.updated.acked"])
	assert.EqualValues(t, 1, s.Consumed["task.deleted.acked"])
}

func TestConsumerRejectsBadPayloads(t *testing.T) {
	consumer, rec, _ := newConsumer(t, &fakeSender{})

	err := consumer.Handle(context.Background(), "task.created", []byte("{oops"))
	assert.Error(t, err)

	err = consumer.Handle(context.Background(), "task.archived", []byte(`{"kind":"task.archived","version":1}`))
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	s := rec.Snapshot()
	assert.EqualValues(t, 1, s.Consumed["task.created.rejected"])
	assert.EqualValues(t, 1, s.Consumed["task.archived.rejected"])
}

func TestConsumerRejectsWhenNotificationFails(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	consumer, rec, userID := newConsumer(t, sender)
	task := &domain.Task{ID: "t1", UserID: userID, Title: "Ship"}

	err := consumer.Handle(context.Background(), "task.completed", encode(t, domain.NewTaskCompleted(task, time.Now())))
	assert.Error(t, err)
	assert.EqualValues(t, 1, rec.Snapshot().Consumed["task.completed.rejected"])

	missing := &domain.Task{ID: "t2", UserID: "ghost", Title: "Ghost"}
	err = consumer.Handle(context.Background(), "task.completed", encode(t, domain.NewTaskCompleted(missing, time.Now())))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestLogSenderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, LogSender{}.Send(ctx, Notification{To: "a@b.c"}))
	assert.NoError(t, LogSender{}.Send(context.Background(), Notification{To: "a@b.c"}))
}
