package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/tasktracker/domain"
)

func TestRecorderCounts(t *testing.T) {
	r := New(Settings{Enabled: true}, zap.NewNop())

	r.CacheHit("u1")
	r.CacheMiss("u1")
	r.CacheMiss("u1")
	r.Degraded(Degradation{Operation: "create", Step: StepPublish, Err: errors.New("down")})
	r.Consumed(domain.EventTaskCreated, OutcomeAcked, nil)
	r.Consumed(domain.EventTaskCompleted, OutcomeRejected, errors.New("boom"))
	r.NotificationSent()

	s := r.Snapshot()
	assert.True(t, s.Enabled)
	assert.EqualValues(t, 1, s.CacheHits)
	assert.EqualValues(t, 2, s.CacheMisses)
	assert.InDelta(t, 33.33, s.HitRate, 0.01)
	assert.EqualValues(t, 1, s.Degraded[StepPublish])
	assert.EqualValues(t, 1, s.Consumed["task.created.acked"])
	assert.EqualValues(t, 1, s.Consumed["task.completed.rejected"])
	assert.EqualValues(t, 1, s.Notifications)
}

func TestDisabledRecorderStillLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(Settings{Enabled: false}, zap.New(core))

	r.CacheHit("u1")
	r.Degraded(Degradation{Operation: "remove", Step: StepCacheInvalidate, UserID: "u1", TaskID: "t1", Err: errors.New("redis down")})
	r.Consumed(domain.EventTaskDeleted, OutcomeRejected, errors.New("bad payload"))

	s := r.Snapshot()
	assert.False(t, s.Enabled)
	assert.Zero(t, s.CacheHits)
	assert.Empty(t, s.Degraded)

	assert.Equal(t, 1, logs.FilterMessage("side effect degraded").Len())
	assert.Equal(t, 1, logs.FilterMessage("event handler failed").Len())
	entry := logs.FilterMessage("side effect degraded").All()[0]
	assert.Equal(t, "t1", entry.ContextMap()["task_id"])
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.CacheHit("u1")
		r.Degraded(Degradation{Step: StepPublish})
		r.Consumed(domain.EventTaskCreated, OutcomeAcked, nil)
		_ = r.Snapshot()
	})
}
