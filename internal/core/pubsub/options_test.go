package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublisherOptions_Subject(t *testing.T) {
	assert.Equal(t, "users", PublisherOptions{}.Subject("users"))
	assert.Equal(t, "changes.users", PublisherOptions{SubjectPrefix: "changes"}.Subject("users"))
}

func TestConsumerOptions_Filter(t *testing.T) {
	assert.Equal(t, ">", ConsumerOptions{}.Filter())
	assert.Equal(t, "S.>", ConsumerOptions{StreamName: "S"}.Filter())
	assert.Equal(t, "changes.>", ConsumerOptions{StreamName: "S", FilterSubject: "changes.>"}.Filter())
}

func TestDefaultConsumerOptions(t *testing.T) {
	opts := DefaultConsumerOptions()
	assert.Equal(t, 100, opts.ChannelBufSize)
	assert.Equal(t, "consumer", opts.ConsumerName)
	assert.Equal(t, MemoryStorage, opts.Storage)
}

func TestParseStorage(t *testing.T) {
	assert.Equal(t, FileStorage, ParseStorage("file"))
	assert.Equal(t, MemoryStorage, ParseStorage("memory"))
	assert.Equal(t, MemoryStorage, ParseStorage(""))
}
