// Package observability records cache, side-effect and consumer outcomes.
package observability

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/domain"
)

// Settings is read once from configuration at start-up.
type Settings struct {
	Enabled bool
}

// Side effect steps that can degrade after a durable write.
const (
	StepCacheInvalidate = "cache_invalidate"
	StepCachePopulate   = "cache_populate"
	StepCacheRead       = "cache_read"
	StepPublish         = "publish"
	StepOutbox          = "outbox"
)

// Consumer outcomes.
const (
	OutcomeAcked    = "acked"
	OutcomeRejected = "rejected"
)

// Degradation describes a side effect that failed after persistence succeeded.
type Degradation struct {
	Operation string
	Step      string
	UserID    string
	TaskID    string
	Err       error
}

// Recorder is the observability sink. Counters are kept only when enabled;
// failures are always logged.
type Recorder struct {
	settings Settings
	logger   *zap.Logger

	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	notifications atomic.Uint64

	mu       sync.Mutex
	degraded map[string]uint64
	consumed map[string]uint64
}

func New(settings Settings, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		settings: settings,
		logger:   logger.Named("observability"),
		degraded: make(map[string]uint64),
		consumed: make(map[string]uint64),
	}
}

// Enabled reports whether counters are being collected.
func (r *Recorder) Enabled() bool {
	return r != nil && r.settings.Enabled
}

func (r *Recorder) CacheHit(userID string) {
	if !r.Enabled() {
		return
	}
	r.cacheHits.Add(1)
	r.logger.Debug("cache hit", zap.String("user_id", userID))
}

func (r *Recorder) CacheMiss(userID string) {
	if !r.Enabled() {
		return
	}
	r.cacheMisses.Add(1)
	r.logger.Debug("cache miss", zap.String("user_id", userID))
}

// Degraded records a failed best-effort step.
func (r *Recorder) Degraded(d Degradation) {
	if r == nil {
		return
	}
	r.logger.Warn("side effect degraded",
		zap.String("operation", d.Operation),
		zap.String("step", d.Step),
		zap.String("user_id", d.UserID),
		zap.String("task_id", d.TaskID),
		zap.Error(d.Err))
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	r.degraded[d.Step]++
	r.mu.Unlock()
}

// Consumed records the final state of one delivered event.
func (r *Recorder) Consumed(kind domain.EventKind, outcome string, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.logger.Error("event handler failed",
			zap.String("kind", string(kind)),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	r.consumed[string(kind)+"."+outcome]++
	r.mu.Unlock()
}

// Event records a task lifecycle fact observed by the consumer.
func (r *Recorder) Event(header domain.EventHeader) {
	if !r.Enabled() {
		return
	}
	r.logger.Info("task event",
		zap.String("kind", string(header.Kind)),
		zap.String("event_id", header.ID),
		zap.String("task_id", header.TaskID),
		zap.String("user_id", header.UserID),
		zap.Time("timestamp", header.Timestamp))
}

func (r *Recorder) NotificationSent() {
	if !r.Enabled() {
		return
	}
	r.notifications.Add(1)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Enabled       bool              `json:"enabled"`
	CacheHits     uint64            `json:"cache_hits"`
	CacheMisses   uint64            `json:"cache_misses"`
	HitRate       float64           `json:"hit_rate"`
	Notifications uint64            `json:"notifications"`
	Degraded      map[string]uint64 `json:"degraded"`
	Consumed      map[string]uint64 `json:"consumed"`
}

func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	hits := r.cacheHits.Load()
	misses := r.cacheMisses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	s := Snapshot{
		Enabled:       r.settings.Enabled,
		CacheHits:     hits,
		CacheMisses:   misses,
		HitRate:       hitRate,
		Notifications: r.notifications.Load(),
		Degraded:      make(map[string]uint64),
		Consumed:      make(map[string]uint64),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.degraded {
		s.Degraded[k] = v
	}
	for k, v := range r.consumed {
		s.Consumed[k] = v
	}
	return s
}
