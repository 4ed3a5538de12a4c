// Package nats implements pubsub on NATS JetStream.
package nats

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
)

// JetStream is the subset of jetstream.JetStream used here.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NewJetStream wraps a live connection.
func NewJetStream(nc *nats.Conn) (JetStream, error) {
	return jetstream.New(nc)
}

func storageOf(s pubsub.StorageType) jetstream.StorageType {
	if s == pubsub.FileStorage {
		return jetstream.FileStorage
	}
	return jetstream.MemoryStorage
}
