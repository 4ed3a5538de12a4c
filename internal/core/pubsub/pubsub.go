// Package pubsub abstracts the message broker used to carry change events
// into the indexer and due notifications out of it.
package pubsub

import (
	"context"
	"io"
	"time"
)

// Message is a received message with acknowledgment controls.
type Message interface {
	Data() []byte
	Subject() string

	// Ack acknowledges successful processing.
	Ack() error
	// Nak requests immediate redelivery.
	Nak() error
	// NakWithDelay requests redelivery after delay.
	NakWithDelay(delay time.Duration) error
	// Term drops the message without redelivery.
	Term() error

	Metadata() (MessageMetadata, error)
}

// MessageMetadata describes a delivery.
type MessageMetadata struct {
	NumDelivered uint64
	Timestamp    time.Time
	Subject      string
	Stream       string
	Consumer     string
}

// Publisher publishes messages to a stream.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// Consumer consumes messages from a stream.
type Consumer interface {
	// Subscribe starts consuming. The returned channel is closed once ctx is
	// done. The caller must Ack, Nak or Term every message.
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// Provider creates publishers and consumers on one broker.
type Provider interface {
	io.Closer
	NewPublisher(opts PublisherOptions) (Publisher, error)
	NewConsumer(opts ConsumerOptions) (Consumer, error)
}

// Connectable is implemented by providers that must dial before use.
type Connectable interface {
	Connect(ctx context.Context) error
}
