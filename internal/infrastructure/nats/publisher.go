package nats

import (
	"context"
	"encoding/json"
	"fmt"

	natsio "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// PublishError reports an event the broker did not accept.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s to %s: %v", e.RoutingKey, e.Exchange, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// MsgPublisher is the slice of jetstream.JetStream the publisher needs.
type MsgPublisher interface {
	PublishMsg(ctx context.Context, msg *natsio.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher writes events to the stream and waits for the broker ack.
type Publisher struct {
	js     MsgPublisher
	logger *zap.Logger
}

func NewPublisher(js MsgPublisher, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{js: js, logger: logger}
}

// Publish sends payload on subject routingKey of stream exchange. The event id,
// when present, becomes the message id so a republished event is deduplicated.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if p == nil || p.js == nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: natsio.ErrConnectionClosed}
	}

	msg := natsio.NewMsg(routingKey)
	msg.Data = payload
	msg.Header.Set("Content-Type", "application/json")

	opts := []jetstream.PublishOpt{jetstream.WithExpectStream(exchange)}
	if id := eventID(payload); id != "" {
		opts = append(opts, jetstream.WithMsgID(id))
	}

	ack, err := p.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
	}

	p.logger.Debug("event published",
		zap.String("subject", routingKey),
		zap.String("stream", ack.Stream),
		zap.Uint64("sequence", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate))
	return nil
}

func eventID(payload []byte) string {
	var envelope struct {
		ID string `json:"event_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	return envelope.ID
}
