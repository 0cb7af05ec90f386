package nats

import (
	"errors"
	"fmt"
	"sync"
)

// DeliveryState tracks one message from arrival to settlement.
type DeliveryState int

const (
	Received DeliveryState = iota
	Processing
	Acked
	Rejected
)

func (s DeliveryState) String() string {
	switch s {
	case Received:
		return "received"
	case Processing:
		return "processing"
	case Acked:
		return "acked"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the delivery has been settled.
func (s DeliveryState) Terminal() bool {
	return s == Acked || s == Rejected
}

var ErrInvalidTransition = errors.New("invalid delivery transition")

// Acknowledger settles a message with the broker. jetstream.Msg implements it.
type Acknowledger interface {
	Ack() error
	// Term rejects the message; the broker never redelivers it.
	Term() error
}

// Delivery is a received message plus its settlement state. It is settled
// exactly once: Received → Processing → Acked or Rejected.
type Delivery struct {
	Subject string
	Data    []byte

	msg   Acknowledger
	mu    sync.Mutex
	state DeliveryState
}

func NewDelivery(msg Acknowledger, subject string, data []byte) *Delivery {
	return &Delivery{Subject: subject, Data: data, msg: msg}
}

func (d *Delivery) State() DeliveryState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Begin moves the delivery into processing.
func (d *Delivery) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Received {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.state, Processing)
	}
	d.state = Processing
	return nil
}

// Ack confirms successful handling. The state is settled even when the broker
// call fails, so the message is never settled twice.
func (d *Delivery) Ack() error {
	return d.settle(Acked, d.msg.Ack)
}

// Reject drops the message without requeue.
func (d *Delivery) Reject() error {
	return d.settle(Rejected, d.msg.Term)
}

func (d *Delivery) settle(to DeliveryState, call func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Processing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.state, to)
	}
	d.state = to
	return call()
}
