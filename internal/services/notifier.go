package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/repository"
)

// Notification is a message for one user.
type Notification struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers a notification over some channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the log instead of a real channel.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification sent", zap.String("to", n.To), zap.String("subject", n.Subject))
	return nil
}

// CompletionNotifier tells a user that one of their tasks was completed.
type CompletionNotifier struct {
	users    repository.UserRepository
	sender   Sender
	recorder *observability.Recorder
	from     string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewCompletionNotifier(users repository.UserRepository, sender Sender, recorder *observability.Recorder, from string, timeout time.Duration, logger *zap.Logger) *CompletionNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionNotifier{
		users:    users,
		sender:   sender,
		recorder: recorder,
		from:     from,
		timeout:  timeout,
		logger:   logger,
	}
}

// NotifyCompleted resolves the owner and delivers the message under the
// notifier's own timeout.
func (n *CompletionNotifier) NotifyCompleted(ctx context.Context, event domain.TaskCompleted) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	user, err := n.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	msg := Notification{
		From:    n.from,
		To:      user.Email,
		Subject: "Task completed: " + event.Title,
		Body:    "You completed \"" + event.Title + "\" at " + event.CompletedAt.UTC().Format(time.RFC3339) + ".",
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return err
	}
	n.recorder.NotificationSent()
	n.logger.Debug("completion notification delivered", zap.String("user_id", event.UserID), zap.String("task_id", event.TaskID))
	return nil
}
