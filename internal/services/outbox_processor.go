package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/internal/infrastructure/buffer"
	"github.com/fastygo/tasktracker/internal/observability"
	"github.com/fastygo/tasktracker/usecase"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the outbox is drained.
type ProcessorConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxRetries     int
	PublishTimeout time.Duration
	Retention      time.Duration
}

// OutboxProcessor keeps events whose publish failed and republishes them on a
// schedule while the bus is reachable.
type OutboxProcessor struct {
	store     *buffer.Store
	monitor   ConnectionHealth
	publisher usecase.Publisher
	recorder  *observability.Recorder
	logger    *zap.Logger
	cron      *cron.Cron
	cfg       ProcessorConfig
}

func NewOutboxProcessor(
	store *buffer.Store,
	monitor ConnectionHealth,
	publisher usecase.Publisher,
	recorder *observability.Recorder,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *OutboxProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	op := &OutboxProcessor{
		store:     store,
		monitor:   monitor,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger.Named("outbox"),
		cfg:       cfg,
		cron:      cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", max(1, int(cfg.Interval.Seconds())))
	_, _ = op.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := op.Drain(ctx); err != nil {
			op.logger.Error("outbox drain failed", zap.Error(err))
		}
	})
	if cfg.Retention > 0 {
		_, _ = op.cron.AddFunc("@hourly", op.cleanup)
	}

	return op
}

// Start launches the cron scheduler.
func (op *OutboxProcessor) Start() {
	if op == nil || op.cron == nil {
		return
	}
	op.cron.Start()
	op.logger.Info("outbox processor started", zap.Duration("interval", op.cfg.Interval))
}

// Stop waits for a running drain to finish or ctx to expire.
func (op *OutboxProcessor) Stop(ctx context.Context) {
	if op == nil || op.cron == nil {
		return
	}
	stopCtx := op.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	op.logger.Info("outbox processor stopped")
}

// Defer stores an event the coordinator failed to publish.
func (op *OutboxProcessor) Defer(_ context.Context, exchange string, event domain.Event, payload []byte, cause error) error {
	if op == nil || op.store == nil {
		return fmt.Errorf("outbox not configured")
	}
	if event == nil {
		return domain.ErrInvalidPayload
	}
	header := event.Header()
	item := buffer.Item{
		ID:       header.ID,
		Kind:     string(header.Kind),
		Exchange: exchange,
		Subject:  string(header.Kind),
		Payload:  payload,
	}
	if cause != nil {
		item.LastError = cause.Error()
	}
	if err := op.store.Enqueue(item); err != nil {
		return err
	}
	op.logger.Warn("event deferred",
		zap.String("event_id", header.ID),
		zap.String("kind", item.Kind),
		zap.String("task_id", header.TaskID))
	return nil
}

// Drain republishes one batch synchronously.
func (op *OutboxProcessor) Drain(ctx context.Context) error {
	if op == nil || op.store == nil || op.publisher == nil {
		return nil
	}
	if op.monitor != nil && !op.monitor.IsOnline() {
		op.logger.Debug("skipping outbox drain (bus offline)")
		return nil
	}

	items, err := op.store.GetBatch(op.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := op.publish(ctx, item); err != nil {
			op.retry(item, err)
			continue
		}
		if err := op.store.Remove(item); err != nil {
			op.logger.Warn("failed to purge published outbox item", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	return nil
}

// Size returns the number of deferred events.
func (op *OutboxProcessor) Size() int {
	if op == nil || op.store == nil {
		return 0
	}
	size, err := op.store.Size()
	if err != nil {
		return 0
	}
	return size
}

func (op *OutboxProcessor) publish(ctx context.Context, item buffer.Item) error {
	pctx, cancel := context.WithTimeout(ctx, op.cfg.PublishTimeout)
	defer cancel()
	return op.publisher.Publish(pctx, item.Exchange, item.Subject, item.Payload)
}

func (op *OutboxProcessor) retry(item buffer.Item, cause error) {
	item.Retries++
	item.LastError = cause.Error()

	if item.Retries >= op.cfg.MaxRetries {
		op.logger.Error("dropping outbox item (max retries reached)",
			zap.String("item_id", item.ID),
			zap.String("kind", item.Kind),
			zap.Int("retries", item.Retries),
			zap.Error(cause))
		op.recorder.Degraded(observability.Degradation{Operation: "republish", Step: observability.StepOutbox, Err: cause})
		if err := op.store.Remove(item); err != nil {
			op.logger.Warn("failed to remove outbox item", zap.String("item_id", item.ID), zap.Error(err))
		}
		return
	}

	op.logger.Warn("republish failed", zap.String("item_id", item.ID), zap.Int("retries", item.Retries), zap.Error(cause))
	if err := op.store.Requeue(item); err != nil {
		op.logger.Error("failed to requeue outbox item", zap.String("item_id", item.ID), zap.Error(err))
	}
}

func (op *OutboxProcessor) cleanup() {
	removed, err := op.store.Cleanup(time.Now().Add(-op.cfg.Retention))
	if err != nil {
		op.logger.Error("outbox cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		op.logger.Warn("expired outbox items dropped", zap.Int("count", removed))
	}
}

var _ usecase.EventOutbox = (*OutboxProcessor)(nil)
