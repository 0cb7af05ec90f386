package monitor

import "time"

// Status is the last observed health of each dependency.
type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      bool      `json:"redis"`
	NATS       bool      `json:"nats"`
	Outbox     bool      `json:"outbox"`
	OutboxSize int       `json:"outbox_size"`
	LastCheck  time.Time `json:"last_check"`
}

// Healthy reports whether the request path can serve traffic. The bus and the
// outbox are not required since publishing degrades instead of failing.
func (s Status) Healthy() bool {
	return s.PostgreSQL && s.Redis
}
