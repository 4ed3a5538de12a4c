package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
)

func receive(t *testing.T, ch <-chan pubsub.Message) pubsub.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func subscribe(t *testing.T, e *Engine, opts pubsub.ConsumerOptions) (<-chan pubsub.Message, context.CancelFunc) {
	t.Helper()
	c, err := e.NewConsumer(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Subscribe(ctx)
	require.NoError(t, err)
	return ch, cancel
}

func TestEngine_Lifecycle(t *testing.T) {
	e := New()
	assert.False(t, e.IsClosed())
	require.NoError(t, e.Close())
	assert.True(t, e.IsClosed())
	require.NoError(t, e.Close())

	_, err := e.NewPublisher(pubsub.PublisherOptions{})
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.NewConsumer(pubsub.ConsumerOptions{})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_PublishSubscribe(t *testing.T) {
	e := New()
	defer e.Close()

	ch, cancel := subscribe(t, e, pubsub.ConsumerOptions{FilterSubject: "changes.>"})
	defer cancel()

	var observed atomic.Value
	pub, err := e.NewPublisher(pubsub.PublisherOptions{
		SubjectPrefix: "changes",
		OnPublish: func(subject string, err error, _ time.Duration) {
			observed.Store(subject)
		},
	})
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), "users", []byte(`{"a":1}`)))
	msg := receive(t, ch)
	assert.Equal(t, "changes.users", msg.Subject())
	assert.Equal(t, []byte(`{"a":1}`), msg.Data())
	assert.Equal(t, "changes.users", observed.Load())

	md, err := msg.Metadata()
	require.NoError(t, err)
	assert.EqualValues(t, 1, md.NumDelivered)
	assert.Equal(t, "changes.users", md.Subject)
	require.NoError(t, msg.Ack())
}

func TestEngine_NonMatchingSubjectDropped(t *testing.T) {
	e := New()
	defer e.Close()

	ch, cancel := subscribe(t, e, pubsub.ConsumerOptions{FilterSubject: "notify.>"})
	defer cancel()

	pub, err := e.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "changes.users", nil))
	require.NoError(t, pub.Publish(context.Background(), "notify.billing.users.renewsAt", []byte("x")))

	msg := receive(t, ch)
	assert.Equal(t, "notify.billing.users.renewsAt", msg.Subject())
}

func TestEngine_DuplicatePattern(t *testing.T) {
	e := New()
	defer e.Close()

	_, cancel := subscribe(t, e, pubsub.ConsumerOptions{StreamName: "S"})
	defer cancel()

	c, err := e.NewConsumer(pubsub.ConsumerOptions{StreamName: "S"})
	require.NoError(t, err)
	_, err = c.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrPatternSubscribed)
}

func TestEngine_CancelClosesChannel(t *testing.T) {
	e := New()
	defer e.Close()

	ch, cancel := subscribe(t, e, pubsub.ConsumerOptions{FilterSubject: "a.*"})
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}

	// The pattern becomes available again once the old subscription is gone.
	require.Eventually(t, func() bool {
		c, err := e.NewConsumer(pubsub.ConsumerOptions{FilterSubject: "a.*"})
		if err != nil {
			return false
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		_, err = c.Subscribe(ctx)
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestEngine_CloseClosesSubscriptions(t *testing.T) {
	e := New()
	ch, cancel := subscribe(t, e, pubsub.ConsumerOptions{})
	defer cancel()

	require.NoError(t, e.Close())
	_, ok := <-ch
	assert.False(t, ok)

	pub := &publisher{engine: e}
	assert.ErrorIs(t, pub.Publish(context.Background(), "x", nil), ErrEngineClosed)
}

func TestPublisher_Close(t *testing.T) {
	e := New()
	defer e.Close()

	pub, err := e.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(context.Background(), "x", nil), ErrEngineClosed)
}

func TestPublish_BlockedHonoursContext(t *testing.T) {
	e := New()
	defer e.Close()

	_, cancel := subscribe(t, e, pubsub.ConsumerOptions{FilterSubject: "x", ChannelBufSize: 1})
	defer cancel()

	pub, err := e.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "x", nil))

	ctx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	assert.ErrorIs(t, pub.Publish(ctx, "x", nil), context.DeadlineExceeded)
}

func TestMessage_NakRedelivers(t *testing.T) {
	e := New()
	defer e.Close()

	ch, cancel := subscribe(t, e, pubsub.ConsumerOptions{FilterSubject: "x"})
	defer cancel()

	pub, err := e.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "x", []byte("1")))

	msg := receive(t, ch)
	require.NoError(t, msg.Nak())
	// A second settle is a no-op.
	require.NoError(t, msg.Nak())

	again := receive(t, ch)
	md, _ := again.Metadata()
	assert.EqualValues(t, 2, md.NumDelivered)
	require.NoError(t, again.Ack())
}

func TestMessage_NakWithDelay(t *testing.T) {
	e := New()
	defer e.Close()

	ch, cancel := subscribe(t, e, pubsub.ConsumerOptions{FilterSubject: "x"})
	defer cancel()

	pub, err := e.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "x", []byte("1")))

	msg := receive(t, ch)
	start := time.Now()
	require.NoError(t, msg.NakWithDelay(30*time.Millisecond))

	again := receive(t, ch)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	md, _ := again.Metadata()
	assert.EqualValues(t, 2, md.NumDelivered)
}

func TestMessage_TermIsFinal(t *testing.T) {
	e := New()
	defer e.Close()

	ch, cancel := subscribe(t, e, pubsub.ConsumerOptions{FilterSubject: "x"})
	defer cancel()

	pub, err := e.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "x", nil))

	msg := receive(t, ch)
	require.NoError(t, msg.Term())
	require.NoError(t, msg.Nak())

	select {
	case <-ch:
		t.Fatal("terminated message was redelivered")
	case <-time.After(50 * time.Millisecond):
	}
}
