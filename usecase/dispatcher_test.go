package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/tasktracker/domain"
)

func TestDispatcherRoutesByKind(t *testing.T) {
	d := NewDispatcher()
	task := &domain.Task{ID: "t1", UserID: "u1", Title: "demo"}

	var order []string
	d.Register(domain.EventTaskCompleted, func(_ context.Context, e domain.Event) error {
		order = append(order, "first:"+e.Header().TaskID)
		return nil
	})
	d.Register(domain.EventTaskCompleted, func(_ context.Context, e domain.Event) error {
		order = append(order, "second")
		return nil
	})

	assert.True(t, d.Handles(domain.EventTaskCompleted))
	assert.False(t, d.Handles(domain.EventTaskCreated))

	require.NoError(t, d.Dispatch(context.Background(), domain.NewTaskCompleted(task, time.Now())))
	assert.Equal(t, []string{"first:t1", "second"}, order)
}

func TestDispatcherStopsAtFirstError(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	calls := 0
	d.Register(domain.EventTaskDeleted, func(context.Context, domain.Event) error {
		calls++
		return boom
	})
	d.Register(domain.EventTaskDeleted, func(context.Context, domain.Event) error {
		calls++
		return nil
	})

	err := d.Dispatch(context.Background(), domain.NewTaskDeleted(&domain.Task{ID: "t1", UserID: "u1"}, time.Now()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDispatcherUnknownKind(t *testing.T) {
	d := NewDispatcher()

	err := d.Dispatch(context.Background(), domain.NewTaskCreated(&domain.Task{ID: "t1"}, time.Now()))
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	assert.ErrorIs(t, d.Dispatch(context.Background(), nil), domain.ErrInvalidPayload)
}

func TestTimeoutDefaults(t *testing.T) {
	got := Timeouts{Cache: 50 * time.Millisecond}.WithDefaults()
	assert.Equal(t, 3*time.Second, got.Persistence)
	assert.Equal(t, 50*time.Millisecond, got.Cache)
	assert.Equal(t, time.Second, got.Publish)
}
