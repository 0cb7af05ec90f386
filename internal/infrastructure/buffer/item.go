package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Item is an encoded event waiting to be republished.
type Item struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Exchange   string          `json:"exchange"`
	Subject    string          `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	LastError  string          `json:"last_error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	// EnqueuedAt is the first time the item entered the store. Requeue keeps it.
	EnqueuedAt time.Time       `json:"enqueued_at"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Subject == "" {
		i.Subject = i.Kind
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
	if i.EnqueuedAt.IsZero() {
		i.EnqueuedAt = i.Timestamp
	}
}

// firstSeen falls back to Timestamp for items written before EnqueuedAt existed.
func (i Item) firstSeen() time.Time {
	if i.EnqueuedAt.IsZero() {
		return i.Timestamp
	}
	return i.EnqueuedAt
}
