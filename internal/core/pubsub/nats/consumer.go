package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
)

type consumer struct {
	js     JetStream
	opts   pubsub.ConsumerOptions
	logger *slog.Logger
}

// NewConsumer creates a durable pull consumer on opts.StreamName.
func NewConsumer(js JetStream, opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if opts.StreamName == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	defaults := pubsub.DefaultConsumerOptions()
	if opts.ChannelBufSize <= 0 {
		opts.ChannelBufSize = defaults.ChannelBufSize
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = defaults.ConsumerName
	}
	return &consumer{js: js, opts: opts, logger: slog.Default().With("stream", opts.StreamName)}, nil
}

func (c *consumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	filter := c.opts.Filter()

	if _, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.opts.StreamName,
		Subjects: []string{filter},
		Storage:  storageOf(c.opts.Storage),
	}); err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.StreamName, jetstream.ConsumerConfig{
		Durable:       c.opts.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filter,
		MaxDeliver:    c.opts.MaxDeliver,
		AckWait:       c.opts.AckWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan pubsub.Message, c.opts.ChannelBufSize)

	// mu guards out against sends racing the close below.
	var mu sync.RWMutex
	closed := false

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		mu.RLock()
		defer mu.RUnlock()
		if closed {
			_ = msg.Nak()
			return
		}
		select {
		case out <- &message{msg: msg}:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		close(out)
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}
	c.logger.Info("Consumer subscribed", "consumer", c.opts.ConsumerName, "filter", filter)

	go func() {
		<-ctx.Done()
		cc.Stop()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
		c.logger.Info("Consumer stopped", "consumer", c.opts.ConsumerName)
	}()

	return out, nil
}
