// Package delivery turns due notifications into tasks on a pubsub stream, for
// watchers that are declared in configuration rather than in code.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

const (
	// Stream carries tasks on "notify.<component>.<table>.<field>".
	Stream        = "DATEWATCH_NOTIFY"
	SubjectPrefix = "notify"
)

// NotificationTask is the wire form of a due notification.
type NotificationTask struct {
	RunID      string       `json:"runId"`
	Watcher    string       `json:"watcher"`
	WatcherID  string       `json:"watcherId"`
	Component  string       `json:"component"`
	Table      string       `json:"table"`
	Field      string       `json:"field"`
	Identifier string       `json:"identifier,omitempty"`
	Offset     int64        `json:"offset"`
	ObjectID   int64        `json:"objectId"`
	Value      int64        `json:"value"`
	NotifyTime int64        `json:"notifyTime"`
	Record     model.Record `json:"record,omitempty"`
}

// NewTask builds the task for n. record may be nil.
func NewTask(n *datewatch.Notification, record model.Record) NotificationTask {
	w := n.Watcher
	return NotificationTask{
		RunID:      n.RunID,
		Watcher:    w.Key(),
		WatcherID:  strconv.FormatUint(w.Hash(), 16),
		Component:  w.Component,
		Table:      w.Table,
		Field:      w.Field,
		Identifier: w.Identifier,
		Offset:     w.OffsetSeconds(),
		ObjectID:   n.ObjectID,
		Value:      n.Value,
		NotifyTime: n.NotifyTime,
		Record:     record,
	}
}

// Subject returns the subject relative to SubjectPrefix.
func (t NotificationTask) Subject() string {
	return t.Component + "." + t.Table + "." + t.Field
}

// DecodeTask parses a task payload.
func DecodeTask(data []byte) (NotificationTask, error) {
	var t NotificationTask
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("invalid notification task: %w", err)
	}
	return t, nil
}

// PublisherOptions returns the pubsub options for the notify stream.
func PublisherOptions(storage pubsub.StorageType, retryAttempts int) pubsub.PublisherOptions {
	return pubsub.PublisherOptions{
		StreamName:    Stream,
		SubjectPrefix: SubjectPrefix,
		RetryAttempts: retryAttempts,
		Storage:       storage,
	}
}

// ConsumerOptions returns options for a downstream consumer of tasks
// matching filter, e.g. "notify.billing.>".
func ConsumerOptions(name, filter string, storage pubsub.StorageType) pubsub.ConsumerOptions {
	opts := pubsub.DefaultConsumerOptions()
	opts.StreamName = Stream
	opts.ConsumerName = name
	opts.FilterSubject = filter
	opts.Storage = storage
	return opts
}

// Options configures a Publisher.
type Options struct {
	// IncludeRecord attaches the object snapshot to each task.
	IncludeRecord bool
}

// Publisher publishes notification tasks.
type Publisher struct {
	pub     pubsub.Publisher
	opts    Options
	metrics metrics.Metrics
	logger  *slog.Logger
}

// NewPublisher wraps a publisher created with PublisherOptions.
func NewPublisher(pub pubsub.Publisher, opts Options, m metrics.Metrics, logger *slog.Logger) *Publisher {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		pub:     pub,
		opts:    opts,
		metrics: m,
		logger:  logger.With("component", "datewatch-delivery"),
	}
}

// Callback returns a watcher callback that publishes every notification.
// Publish failures are returned so the sweep counts them as failed callbacks.
func (p *Publisher) Callback() datewatch.Callback {
	return p.Publish
}

// Publish sends the task for n.
func (p *Publisher) Publish(ctx context.Context, n *datewatch.Notification) error {
	var record model.Record
	if p.opts.IncludeRecord {
		r, err := n.Record(ctx)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			p.metrics.IncPublish("error")
			return fmt.Errorf("failed to load record for %s: %w", n.Watcher.Key(), err)
		default:
			record = r
		}
	}

	task := NewTask(n, record)
	data, err := json.Marshal(task)
	if err != nil {
		p.metrics.IncPublish("error")
		return fmt.Errorf("failed to encode notification task: %w", err)
	}
	if err := p.pub.Publish(ctx, task.Subject(), data); err != nil {
		p.metrics.IncPublish("error")
		p.logger.Error("Failed to publish notification", "watcher", task.Watcher, "object_id", n.ObjectID, "error", err)
		return err
	}
	p.metrics.IncPublish("ok")
	p.logger.Debug("Published notification", "watcher", task.Watcher, "object_id", n.ObjectID, "run_id", n.RunID)
	return nil
}
