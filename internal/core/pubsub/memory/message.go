package memory

import (
	"sync"
	"time"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
)

type message struct {
	data      []byte
	subject   string
	timestamp time.Time
	sub       *subscription

	mu           sync.Mutex
	numDelivered uint64
	settled      bool
}

func (m *message) Data() []byte    { return m.data }
func (m *message) Subject() string { return m.subject }

// settle marks the message as handled and reports whether it was pending.
func (m *message) settle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return false
	}
	m.settled = true
	return true
}

func (m *message) requeue() {
	m.mu.Lock()
	m.settled = false
	m.numDelivered++
	m.mu.Unlock()
}

func (m *message) Ack() error {
	m.settle()
	return nil
}

func (m *message) Term() error {
	m.settle()
	return nil
}

// Nak requeues without blocking. The message is dropped when the
// subscription buffer is full or closed.
func (m *message) Nak() error {
	if !m.settle() {
		return nil
	}
	m.requeue()
	m.sub.tryDeliver(m)
	return nil
}

// NakWithDelay requeues after delay unless the subscription ends first.
func (m *message) NakWithDelay(delay time.Duration) error {
	if !m.settle() {
		return nil
	}
	time.AfterFunc(delay, func() {
		m.requeue()
		_ = m.sub.deliver(m.sub.ctx, m)
	})
	return nil
}

func (m *message) Metadata() (pubsub.MessageMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pubsub.MessageMetadata{
		NumDelivered: m.numDelivered,
		Timestamp:    m.timestamp,
		Subject:      m.subject,
	}, nil
}
