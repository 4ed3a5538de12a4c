package delivery

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
	"github.com/syntrixbase/datewatch/internal/core/pubsub/memory"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

type snapshots map[int64]model.Record

func (s snapshots) Snapshot(_ context.Context, _ string, id int64) (model.Record, error) {
	if r, ok := s[id]; ok {
		return r.Clone(), nil
	}
	return nil, model.ErrNotFound
}

type failingSnapshots struct{}

func (failingSnapshots) Snapshot(context.Context, string, int64) (model.Record, error) {
	return nil, errors.New("connection reset")
}

type publishMetrics struct {
	metrics.NoopMetrics
	mu      sync.Mutex
	results []string
}

func (m *publishMetrics) IncPublish(result string) {
	m.mu.Lock()
	m.results = append(m.results, result)
	m.mu.Unlock()
}

func watcher() datewatch.Definition {
	return datewatch.Definition{
		Component: "billing",
		Table:     "subscriptions",
		Field:     "renews_at",
		Offset:    -72 * time.Hour,
	}
}

func TestNewTask(t *testing.T) {
	w := watcher()
	n := datewatch.NewNotification("run-1", w, 42, 1_000_000, nil)

	task := NewTask(n, nil)
	assert.Equal(t, "run-1", task.RunID)
	assert.Equal(t, w.Key(), task.Watcher)
	assert.Equal(t, strconv.FormatUint(w.Hash(), 16), task.WatcherID)
	assert.Equal(t, "billing", task.Component)
	assert.Equal(t, int64(-72*3600), task.Offset)
	assert.Equal(t, int64(42), task.ObjectID)
	assert.Equal(t, int64(1_000_000), task.Value)
	assert.Equal(t, int64(1_000_000-72*3600), task.NotifyTime)
	assert.Equal(t, "billing.subscriptions.renews_at", task.Subject())
}

func TestDecodeTask(t *testing.T) {
	_, err := DecodeTask([]byte("nope"))
	assert.ErrorContains(t, err, "invalid notification task")

	task, err := DecodeTask([]byte(`{"component":"billing","objectId":3}`))
	require.NoError(t, err)
	assert.Equal(t, "billing", task.Component)
	assert.Equal(t, int64(3), task.ObjectID)
}

func TestPublisher_PublishesTask(t *testing.T) {
	engine := memory.New()
	defer engine.Close()

	cons, err := engine.NewConsumer(ConsumerOptions("test", "notify.billing.>", pubsub.MemoryStorage))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := cons.Subscribe(ctx)
	require.NoError(t, err)

	pub, err := engine.NewPublisher(PublisherOptions(pubsub.MemoryStorage, 0))
	require.NoError(t, err)
	m := &publishMetrics{}
	p := NewPublisher(pub, Options{IncludeRecord: true}, m, nil)

	src := snapshots{42: {"id": int64(42), "plan": "pro"}}
	n := datewatch.NewNotification("run-1", watcher(), 42, 1_000_000, src)
	require.NoError(t, p.Callback()(ctx, n))

	select {
	case msg := <-ch:
		assert.Equal(t, "notify.billing.subscriptions.renews_at", msg.Subject())
		task, err := DecodeTask(msg.Data())
		require.NoError(t, err)
		assert.Equal(t, int64(42), task.ObjectID)
		assert.Equal(t, "pro", task.Record["plan"])
		require.NoError(t, msg.Ack())
	case <-time.After(2 * time.Second):
		t.Fatal("no task published")
	}
	assert.Equal(t, []string{"ok"}, m.results)
}

func TestPublisher_MissingRecordStillPublishes(t *testing.T) {
	engine := memory.New()
	defer engine.Close()

	pub, err := engine.NewPublisher(PublisherOptions(pubsub.MemoryStorage, 0))
	require.NoError(t, err)
	m := &publishMetrics{}
	p := NewPublisher(pub, Options{IncludeRecord: true}, m, nil)

	n := datewatch.NewNotification("run-1", watcher(), 7, 10, snapshots{})
	require.NoError(t, p.Publish(context.Background(), n))
	assert.Equal(t, []string{"ok"}, m.results)
}

func TestPublisher_Errors(t *testing.T) {
	engine := memory.New()
	defer engine.Close()

	pub, err := engine.NewPublisher(PublisherOptions(pubsub.MemoryStorage, 0))
	require.NoError(t, err)

	t.Run("record", func(t *testing.T) {
		m := &publishMetrics{}
		p := NewPublisher(pub, Options{IncludeRecord: true}, m, nil)
		n := datewatch.NewNotification("run-1", watcher(), 7, 10, failingSnapshots{})
		assert.ErrorContains(t, p.Publish(context.Background(), n), "failed to load record")
		assert.Equal(t, []string{"error"}, m.results)
	})

	t.Run("publish", func(t *testing.T) {
		closed, err := engine.NewPublisher(PublisherOptions(pubsub.MemoryStorage, 0))
		require.NoError(t, err)
		require.NoError(t, closed.Close())

		m := &publishMetrics{}
		p := NewPublisher(closed, Options{}, m, nil)
		n := datewatch.NewNotification("run-1", watcher(), 7, 10, nil)
		assert.ErrorIs(t, p.Publish(context.Background(), n), memory.ErrEngineClosed)
		assert.Equal(t, []string{"error"}, m.results)
	})
}
