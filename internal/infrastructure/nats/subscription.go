package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/internal/config"
)

// Handler processes one message body. A nil return acks the message; any
// error rejects it.
type Handler func(ctx context.Context, subject string, data []byte) error

// Subscription binds a durable explicit-ack consumer on the task stream.
type Subscription struct {
	stream jetstream.Stream
	cfg    config.ConsumerConfig
	logger *zap.Logger
}

func NewSubscription(client *Client, cfg config.ConsumerConfig, logger *zap.Logger) *Subscription {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	return &Subscription{stream: client.Stream(), cfg: cfg, logger: logger.Named("consumer")}
}

// Subscribe consumes messages under the durable queueName and blocks until ctx ends.
func (s *Subscription) Subscribe(ctx context.Context, queueName string, handler Handler) error {
	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:           queueName,
		Durable:        queueName,
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        s.cfg.AckWait,
		MaxDeliver:     s.cfg.MaxDeliver,
		MaxAckPending:  s.cfg.MaxAckPending,
		FilterSubjects: s.cfg.Subjects,
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", queueName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		Process(ctx, NewDelivery(msg, msg.Subject(), msg.Data()), handler, s.cfg.HandlerTimeout, s.logger)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}
	s.logger.Info("consumer started", zap.String("queue", queueName), zap.Strings("subjects", s.cfg.Subjects))

	<-ctx.Done()
	// Drain lets in-flight handlers settle; unsettled messages are redelivered
	// after AckWait.
	cc.Drain()
	select {
	case <-cc.Closed():
	case <-time.After(s.cfg.HandlerTimeout):
		cc.Stop()
		s.logger.Warn("consumer drain timed out", zap.String("queue", queueName))
	}
	s.logger.Info("consumer stopped", zap.String("queue", queueName))
	return nil
}

// Process runs handler for one delivery and settles it. A panicking handler
// rejects the delivery. The handler is bounded by timeout only; cancelling ctx
// on shutdown does not abort it.
func Process(ctx context.Context, d *Delivery, handler Handler, timeout time.Duration, logger *zap.Logger) DeliveryState {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := d.Begin(); err != nil {
		logger.Warn("delivery already in progress", zap.String("subject", d.Subject), zap.Error(err))
		return d.State()
	}

	err := run(ctx, d, handler, timeout)
	if err != nil {
		if terr := d.Reject(); terr != nil {
			logger.Error("failed to reject message", zap.String("subject", d.Subject), zap.Error(terr))
		}
		return d.State()
	}
	if aerr := d.Ack(); aerr != nil {
		logger.Error("failed to ack message", zap.String("subject", d.Subject), zap.Error(aerr))
	}
	return d.State()
}

func run(ctx context.Context, d *Delivery, handler Handler, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return handler(hctx, d.Subject, d.Data)
}
