package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/tasktracker/internal/infrastructure/buffer"
)

type pinger struct{ err error }

func (p *pinger) Ping(context.Context) error { return p.err }

func TestMonitorRefresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := buffer.Open(filepath.Join(t.TempDir(), "outbox.db"), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Enqueue(buffer.Item{Kind: "task.created"}))

	bus := &pinger{}
	m := New(nil, client, bus, store, 0, nil)
	m.Refresh()

	s := m.GetStatus()
	assert.False(t, s.PostgreSQL)
	assert.True(t, s.Redis)
	assert.True(t, s.NATS)
	assert.True(t, s.Outbox)
	assert.Equal(t, 1, s.OutboxSize)
	assert.True(t, m.IsOnline())
	assert.False(t, s.Healthy())

	bus.err = errors.New("disconnected")
	m.Refresh()
	assert.False(t, m.IsOnline())

	m.Stop()
	m.Stop()
}
