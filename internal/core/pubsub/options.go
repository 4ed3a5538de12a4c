package pubsub

import "time"

// StorageType selects stream persistence.
type StorageType int

const (
	MemoryStorage StorageType = iota
	FileStorage
)

// ParseStorage maps "file" to FileStorage and anything else to MemoryStorage.
func ParseStorage(s string) StorageType {
	if s == "file" {
		return FileStorage
	}
	return MemoryStorage
}

// PublisherOptions configures a publisher.
type PublisherOptions struct {
	// StreamName is created on demand when set.
	StreamName string

	// SubjectPrefix is joined to every published subject with a dot. The
	// stream captures "<prefix>.>".
	SubjectPrefix string

	// RetryAttempts is passed to the broker on each publish. 0 disables retry.
	RetryAttempts int

	Storage StorageType

	// OnPublish observes every publish attempt.
	OnPublish func(subject string, err error, latency time.Duration)
}

// Subject returns the full subject for a relative one.
func (o PublisherOptions) Subject(subject string) string {
	if o.SubjectPrefix == "" {
		return subject
	}
	return o.SubjectPrefix + "." + subject
}

// ConsumerOptions configures a consumer.
type ConsumerOptions struct {
	StreamName string

	// ConsumerName is the durable name; defaults to "consumer".
	ConsumerName string

	// FilterSubject selects messages. Defaults to "<StreamName>.>".
	FilterSubject string

	// ChannelBufSize bounds in-flight messages on the returned channel.
	ChannelBufSize int

	// MaxDeliver caps redeliveries on brokers that track them. 0 is unlimited.
	MaxDeliver int

	// AckWait is how long the broker waits for an ack before redelivering.
	AckWait time.Duration

	Storage StorageType
}

// DefaultConsumerOptions returns ConsumerOptions with sensible defaults.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		ConsumerName:   "consumer",
		ChannelBufSize: 100,
	}
}

// Filter returns the effective filter subject.
func (o ConsumerOptions) Filter() string {
	switch {
	case o.FilterSubject != "":
		return o.FilterSubject
	case o.StreamName != "":
		return o.StreamName + ".>"
	default:
		return ">"
	}
}
