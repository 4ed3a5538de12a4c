// Package memory provides an in-process pubsub broker for standalone mode.
//
// Messages are not persisted: a publish with no matching subscription is
// dropped, and Nak redelivers on the same subscription channel.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
)

var (
	ErrEngineClosed      = errors.New("engine is closed")
	ErrPatternSubscribed = errors.New("pattern already has a subscriber")
)

var _ pubsub.Provider = (*Engine)(nil)

// Engine routes published messages to subscriptions whose pattern matches.
type Engine struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{subs: make(map[string]*subscription)}
}

// NewPublisher creates a publisher. The stream fields of opts are ignored.
func (e *Engine) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &publisher{engine: e, opts: opts}, nil
}

// NewConsumer creates a consumer for opts.Filter().
func (e *Engine) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	if opts.ChannelBufSize <= 0 {
		opts.ChannelBufSize = pubsub.DefaultConsumerOptions().ChannelBufSize
	}
	return &consumer{engine: e, opts: opts}, nil
}

// Close cancels every subscription. It is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (e *Engine) IsClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) publish(ctx context.Context, subject string, data []byte) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrEngineClosed
	}
	var targets []*subscription
	for pattern, sub := range e.subs {
		if matchSubject(pattern, subject) {
			targets = append(targets, sub)
		}
	}
	e.mu.RUnlock()

	for _, sub := range targets {
		msg := &message{
			data:         data,
			subject:      subject,
			timestamp:    time.Now(),
			numDelivered: 1,
			sub:          sub,
		}
		if err := sub.deliver(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) subscribe(ctx context.Context, pattern string, bufSize int) (*subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if _, ok := e.subs[pattern]; ok {
		return nil, ErrPatternSubscribed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		ch:     make(chan pubsub.Message, bufSize),
		ctx:    subCtx,
		cancel: cancel,
	}
	e.subs[pattern] = sub

	go func() {
		<-subCtx.Done()
		e.mu.Lock()
		if e.subs != nil && e.subs[pattern] == sub {
			delete(e.subs, pattern)
		}
		e.mu.Unlock()
		sub.close()
	}()
	return sub, nil
}

type subscription struct {
	ch     chan pubsub.Message
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// deliver blocks until the message is buffered or either context ends. A
// cancelled subscription drops the message silently.
func (s *subscription) deliver(ctx context.Context, msg pubsub.Message) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryDeliver is the non-blocking variant used for immediate requeue.
func (s *subscription) tryDeliver(msg pubsub.Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *subscription) close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type publisher struct {
	engine *Engine
	opts   pubsub.PublisherOptions

	mu     sync.Mutex
	closed bool
}

func (p *publisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrEngineClosed
	}

	start := time.Now()
	full := p.opts.Subject(subject)
	err := p.engine.publish(ctx, full, data)
	if p.opts.OnPublish != nil {
		p.opts.OnPublish(full, err, time.Since(start))
	}
	return err
}

func (p *publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type consumer struct {
	engine *Engine
	opts   pubsub.ConsumerOptions
}

func (c *consumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	sub, err := c.engine.subscribe(ctx, c.opts.Filter(), c.opts.ChannelBufSize)
	if err != nil {
		return nil, err
	}
	return sub.ch, nil
}
