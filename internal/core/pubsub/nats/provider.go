package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
)

var ErrNotConnected = errors.New("nats not connected, call Connect first")

var (
	_ pubsub.Provider    = (*Provider)(nil)
	_ pubsub.Connectable = (*Provider)(nil)
)

// Provider owns one NATS connection and hands out JetStream publishers and
// consumers on it.
type Provider struct {
	url string

	// dial is swapped in tests.
	dial func(ctx context.Context, url string) (*nats.Conn, JetStream, error)

	mu sync.Mutex
	nc *nats.Conn
	js JetStream
}

// NewProvider returns an unconnected provider for url.
func NewProvider(url string) *Provider {
	return &Provider{url: url, dial: dial}
}

func dial(ctx context.Context, url string) (*nats.Conn, JetStream, error) {
	opts := []nats.Option{
		nats.Name("datewatch"),
		nats.MaxReconnects(-1),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, err
	}
	js, err := NewJetStream(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream: %w", err)
	}
	return nc, js, nil
}

// Connect dials the server. Calling it again on a live provider is a no-op.
func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.js != nil {
		return nil
	}
	nc, js, err := p.dial(ctx, p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	p.nc, p.js = nc, js
	slog.Info("Connected to NATS", "url", p.url)
	return nil
}

func (p *Provider) jetStream() (JetStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.js == nil {
		return nil, ErrNotConnected
	}
	return p.js, nil
}

func (p *Provider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	js, err := p.jetStream()
	if err != nil {
		return nil, err
	}
	return NewPublisher(js, opts)
}

func (p *Provider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	js, err := p.jetStream()
	if err != nil {
		return nil, err
	}
	return NewConsumer(js, opts)
}

// Close drops the connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nc != nil {
		slog.Info("Closing NATS connection")
		p.nc.Close()
	}
	p.nc, p.js = nil, nil
	return nil
}
