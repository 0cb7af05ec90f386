package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acks  int
	terms int
	err   error
}

func (f *fakeAck) Ack() error  { f.acks++; return f.err }
func (f *fakeAck) Term() error { f.terms++; return f.err }

func TestDeliveryHappyPath(t *testing.T) {
	ack := &fakeAck{}
	d := NewDelivery(ack, "task.created", []byte("{}"))
	assert.Equal(t, Received, d.State())

	require.NoError(t, d.Begin())
	assert.Equal(t, Processing, d.State())
	require.NoError(t, d.Ack())
	assert.Equal(t, Acked, d.State())
	assert.True(t, d.State().Terminal())

	assert.ErrorIs(t, d.Ack(), ErrInvalidTransition)
	assert.ErrorIs(t, d.Reject(), ErrInvalidTransition)
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.terms)
}

func TestDeliveryRejectSettlesOnce(t *testing.T) {
	ack := &fakeAck{err: errors.New("broker gone")}
	d := NewDelivery(ack, "task.deleted", nil)

	assert.ErrorIs(t, d.Ack(), ErrInvalidTransition)
	require.NoError(t, d.Begin())
	assert.ErrorIs(t, d.Begin(), ErrInvalidTransition)

	assert.Error(t, d.Reject())
	assert.Equal(t, Rejected, d.State())
	assert.ErrorIs(t, d.Reject(), ErrInvalidTransition)
	assert.Equal(t, 1, ack.terms)
}

func TestProcessAcksOnSuccess(t *testing.T) {
	ack := &fakeAck{}
	var got string
	state := Process(context.Background(), NewDelivery(ack, "task.updated", []byte("x")),
		func(_ context.Context, subject string, _ []byte) error {
			got = subject
			return nil
		}, time.Second, nil)

	assert.Equal(t, Acked, state)
	assert.Equal(t, "task.updated", got)
	assert.Equal(t, 1, ack.acks)
}

func TestProcessRejectsOnErrorAndPanic(t *testing.T) {
	ack := &fakeAck{}
	state := Process(context.Background(), NewDelivery(ack, "task.created", nil),
		func(context.Context, string, []byte) error { return errors.New("bad") }, time.Second, nil)
	assert.Equal(t, Rejected, state)

	state = Process(context.Background(), NewDelivery(ack, "task.created", nil),
		func(context.Context, string, []byte) error { panic("boom") }, time.Second, nil)
	assert.Equal(t, Rejected, state)
	assert.Equal(t, 2, ack.terms)
	assert.Zero(t, ack.acks)
}

func TestProcessAppliesTimeout(t *testing.T) {
	ack := &fakeAck{}
	state := Process(context.Background(), NewDelivery(ack, "task.completed", nil),
		func(ctx context.Context, _ string, _ []byte) error {
			<-ctx.Done()
			return ctx.Err()
		}, 10*time.Millisecond, nil)
	assert.Equal(t, Rejected, state)
}

func TestProcessSurvivesShutdown(t *testing.T) {
	ack := &fakeAck{}
	parent, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan DeliveryState, 1)
	go func() {
		done <- Process(parent, NewDelivery(ack, "task.completed", nil),
			func(ctx context.Context, _ string, _ []byte) error {
				close(started)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-release:
					return nil
				}
			}, time.Second, nil)
	}()

	<-started
	cancel()
	select {
	case state := <-done:
		t.Fatalf("handler aborted by shutdown, state=%s", state)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	assert.Equal(t, Acked, <-done)
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.terms)
}

type fakeJS struct {
	msg  *natsio.Msg
	opts []jetstream.PublishOpt
	err  error
}

func (f *fakeJS) PublishMsg(_ context.Context, msg *natsio.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.msg = msg
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &jetstream.PubAck{Stream: "TASKS", Sequence: 7}, nil
}

func TestPublisherSendsOnSubject(t *testing.T) {
	js := &fakeJS{}
	p := NewPublisher(js, nil)

	err := p.Publish(context.Background(), "TASKS", "task.created", []byte(`{"event_id":"e1","kind":"task.created"}`))
	require.NoError(t, err)
	assert.Equal(t, "task.created", js.msg.Subject)
	assert.Equal(t, "application/json", js.msg.Header.Get("Content-Type"))
	assert.Len(t, js.opts, 2)
}

func TestPublisherWrapsFailures(t *testing.T) {
	cause := errors.New("no responders")
	p := NewPublisher(&fakeJS{err: cause}, nil)

	err := p.Publish(context.Background(), "TASKS", "task.deleted", []byte(`not json`))
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "TASKS", pubErr.Exchange)
	assert.Equal(t, "task.deleted", pubErr.RoutingKey)
	assert.ErrorIs(t, err, cause)

	var nilPublisher *Publisher
	assert.Error(t, nilPublisher.Publish(context.Background(), "TASKS", "task.created", nil))
}

func TestEventID(t *testing.T) {
	assert.Equal(t, "abc", eventID([]byte(`{"event_id":"abc"}`)))
	assert.Empty(t, eventID([]byte(`{}`)))
	assert.Empty(t, eventID([]byte(`[`)))
}
