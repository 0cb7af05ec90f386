package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/usecase"
)

// CompletionNotifications is implemented by CompletionNotifier.
type CompletionNotifications interface {
	NotifyCompleted(ctx context.Context, event domain.TaskCompleted) error
}

// EventConsumer reacts to task events delivered by the bus.
type EventConsumer struct {
	dispatcher *usecase.Dispatcher
	notifier   CompletionNotifications
	recorder   *observability.Recorder
	logger     *zap.Logger
}

func NewEventConsumer(notifier CompletionNotifications, recorder *observability.Recorder, logger *zap.Logger) *EventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &EventConsumer{
		dispatcher: usecase.NewDispatcher(),
		notifier:   notifier,
		recorder:   recorder,
		logger:     logger.Named("events"),
	}

	c.dispatcher.Register(domain.EventTaskCreated, c.record)
	c.dispatcher.Register(domain.EventTaskUpdated, c.record)
	c.dispatcher.Register(domain.EventTaskDeleted, c.record)
	c.dispatcher.Register(domain.EventTaskCompleted, c.record)
	c.dispatcher.Register(domain.EventTaskCompleted, c.notifyCompleted)
	return c
}

// Handle decodes and dispatches one message. A non-nil error means the
// delivery must be rejected.
func (c *EventConsumer) Handle(ctx context.Context, subject string, data []byte) error {
	event, err := domain.DecodeEvent(data)
	if err != nil {
		c.recorder.Consumed(domain.EventKind(subject), observability.OutcomeRejected, err)
		return err
	}

	kind := event.Header().Kind
	if err := c.dispatcher.Dispatch(ctx, event); err != nil {
		c.recorder.Consumed(kind, observability.OutcomeRejected, err)
		return err
	}
	c.recorder.Consumed(kind, observability.OutcomeAcked, nil)
	return nil
}

func (c *EventConsumer) record(_ context.Context, event domain.Event) error {
	h := event.Header()
	c.logger.Info("task event received",
		zap.String("kind", string(h.Kind)),
		zap.String("task_id", h.TaskID),
		zap.String("user_id", h.UserID))
	c.recorder.Event(h)
	return nil
}

func (c *EventConsumer) notifyCompleted(ctx context.Context, event domain.Event) error {
	completed, ok := event.(domain.TaskCompleted)
	if !ok {
		return domain.ErrInvalidPayload
	}
	if c.notifier == nil {
		return nil
	}
	return c.notifier.NotifyCompleted(ctx, completed)
}
