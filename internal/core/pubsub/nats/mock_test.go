package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/mock"
)

type MockJetStream struct {
	mock.Mock
}

func (m *MockJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Stream), args.Error(1)
}

func (m *MockJetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	args := m.Called(ctx, stream, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(jetstream.Consumer), args.Error(1)
}

func (m *MockJetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	args := m.Called(ctx, subject, data, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jetstream.PubAck), args.Error(1)
}

// MockConsumer hands the registered handler to the test through HandlerCh.
type MockConsumer struct {
	mock.Mock
	jetstream.Consumer
	handlers chan jetstream.MessageHandler
}

func NewMockConsumer() *MockConsumer {
	return &MockConsumer{handlers: make(chan jetstream.MessageHandler, 1)}
}

func (m *MockConsumer) Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	args := m.Called(handler)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	m.handlers <- handler
	return args.Get(0).(jetstream.ConsumeContext), args.Error(1)
}

type MockConsumeContext struct {
	jetstream.ConsumeContext
	stopped chan struct{}
}

func NewMockConsumeContext() *MockConsumeContext {
	return &MockConsumeContext{stopped: make(chan struct{})}
}

func (m *MockConsumeContext) Stop() {
	select {
	case <-m.stopped:
	default:
		close(m.stopped)
	}
}

type MockMsg struct {
	mock.Mock
	jetstream.Msg
	subject string
	data    []byte
}

func NewMockMsg(subject string, data []byte) *MockMsg {
	return &MockMsg{subject: subject, data: data}
}

func (m *MockMsg) Data() []byte    { return m.data }
func (m *MockMsg) Subject() string { return m.subject }
func (m *MockMsg) Ack() error      { return m.Called().Error(0) }
func (m *MockMsg) Nak() error      { return m.Called().Error(0) }
func (m *MockMsg) Term() error     { return m.Called().Error(0) }

func (m *MockMsg) NakWithDelay(d time.Duration) error {
	return m.Called(d).Error(0)
}

func (m *MockMsg) Metadata() (*jetstream.MsgMetadata, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jetstream.MsgMetadata), args.Error(1)
}
