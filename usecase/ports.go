package usecase

import (
	"context"
	"time"

	"github.com/fastygo/tasktracker/domain"
)

// Cache is the key/value layer the coordinator keeps per-user snapshots in.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Publisher hands an encoded event to the bus and returns once the broker accepted it.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload []byte) error
}

// EventOutbox keeps events that could not be published for a later retry.
type EventOutbox interface {
	Defer(ctx context.Context, exchange string, event domain.Event, payload []byte, cause error) error
}

// Timeouts bound each external call made while serving a request.
type Timeouts struct {
	Persistence time.Duration
	Cache       time.Duration
	Publish     time.Duration
}

func (t Timeouts) WithDefaults() Timeouts {
	if t.Persistence <= 0 {
		t.Persistence = 3 * time.Second
	}
	if t.Cache <= 0 {
		t.Cache = 500 * time.Millisecond
	}
	if t.Publish <= 0 {
		t.Publish = time.Second
	}
	return t
}
