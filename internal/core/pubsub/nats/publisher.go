package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
)

const streamSetupTimeout = 10 * time.Second

type publisher struct {
	js   JetStream
	opts pubsub.PublisherOptions
}

// NewPublisher creates a publisher, ensuring opts.StreamName exists when set.
func NewPublisher(js JetStream, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}

	if opts.StreamName != "" {
		subject := opts.StreamName + ".>"
		if opts.SubjectPrefix != "" {
			subject = opts.SubjectPrefix + ".>"
		}
		ctx, cancel := context.WithTimeout(context.Background(), streamSetupTimeout)
		defer cancel()
		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     opts.StreamName,
			Subjects: []string{subject},
			Storage:  storageOf(opts.Storage),
		}); err != nil {
			return nil, fmt.Errorf("failed to ensure stream %s: %w", opts.StreamName, err)
		}
	}

	return &publisher{js: js, opts: opts}, nil
}

func (p *publisher) Publish(ctx context.Context, subject string, data []byte) error {
	start := time.Now()
	full := p.opts.Subject(subject)

	var popts []jetstream.PublishOpt
	if p.opts.RetryAttempts > 0 {
		popts = append(popts, jetstream.WithRetryAttempts(p.opts.RetryAttempts))
	}
	_, err := p.js.Publish(ctx, full, data, popts...)

	if p.opts.OnPublish != nil {
		p.opts.OnPublish(full, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", full, err)
	}
	return nil
}

func (p *publisher) Close() error { return nil }
