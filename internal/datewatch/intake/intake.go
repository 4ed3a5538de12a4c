// Package intake feeds change events from a pubsub stream into the updater.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/internal/datewatch/updater"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
)

const (
	// Stream carries change events on "changes.<table>".
	Stream        = "DATEWATCH_CHANGES"
	SubjectPrefix = "changes"
	ConsumerName  = "datewatch-intake"
)

// Intake event results.
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultInvalid   = "invalid"
	ResultRetry     = "retry"
	ResultDropped   = "dropped"
)

// Handler applies one change event.
type Handler interface {
	OnChange(ctx context.Context, ev datewatch.ChangeEvent) error
}

// Config configures the consumer.
type Config struct {
	Workers        int
	ChannelBufSize int

	// MaxAttempts bounds deliveries of an event whose handler keeps failing.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// EventTimeout bounds one handler call.
	EventTimeout time.Duration

	// ShutdownTimeout bounds the wait for workers after the stream closes.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default intake settings.
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		ChannelBufSize:  100,
		MaxAttempts:     5,
		InitialBackoff:  time.Second,
		MaxBackoff:      time.Minute,
		EventTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.ChannelBufSize <= 0 {
		c.ChannelBufSize = d.ChannelBufSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = d.EventTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
}

// ConsumerOptions returns the pubsub options for the changes stream.
func ConsumerOptions(storage pubsub.StorageType) pubsub.ConsumerOptions {
	opts := pubsub.DefaultConsumerOptions()
	opts.StreamName = Stream
	opts.ConsumerName = ConsumerName
	opts.FilterSubject = SubjectPrefix + ".>"
	opts.Storage = storage
	return opts
}

// PublisherOptions returns the pubsub options hosts use to emit events.
func PublisherOptions(storage pubsub.StorageType) pubsub.PublisherOptions {
	return pubsub.PublisherOptions{
		StreamName:    Stream,
		SubjectPrefix: SubjectPrefix,
		Storage:       storage,
	}
}

// Consumer dispatches change events to a pool of workers. Events for one
// object always land on the same worker, so they are applied in order.
type Consumer struct {
	consumer pubsub.Consumer
	handler  Handler
	cfg      Config
	metrics  metrics.Metrics
	logger   *slog.Logger

	workers []chan work
	wg      sync.WaitGroup
}

type work struct {
	msg pubsub.Message
	ev  datewatch.ChangeEvent
}

// New creates a Consumer.
func New(consumer pubsub.Consumer, h Handler, cfg Config, m metrics.Metrics, logger *slog.Logger) *Consumer {
	cfg.applyDefaults()
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		consumer: consumer,
		handler:  h,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("component", "datewatch-intake"),
	}
}

// Start consumes until ctx is cancelled, then waits for the workers.
func (c *Consumer) Start(ctx context.Context) error {
	msgCh, err := c.consumer.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.workers = make([]chan work, c.cfg.Workers)
	for i := range c.workers {
		c.workers[i] = make(chan work, c.cfg.ChannelBufSize)
		c.wg.Add(1)
		go c.workerLoop(ctx, i)
	}
	c.logger.Info("Intake started", "workers", c.cfg.Workers)

	for msg := range msgCh {
		c.dispatch(msg)
	}

	c.logger.Info("Stopping intake")
	for _, ch := range c.workers {
		close(ch)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.logger.Info("Intake stopped")
	case <-time.After(c.cfg.ShutdownTimeout):
		c.logger.Warn("Shutdown timeout exceeded, some intake workers may still be running")
	}
	return nil
}

func (c *Consumer) dispatch(msg pubsub.Message) {
	var ev datewatch.ChangeEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		c.logger.Error("Invalid change event payload", "subject", msg.Subject(), "error", err)
		c.metrics.IncIntakeEvent("unknown", ResultMalformed)
		_ = msg.Term()
		return
	}
	c.workers[c.partition(ev)] <- work{msg: msg, ev: ev}
}

func (c *Consumer) partition(ev datewatch.ChangeEvent) int {
	h := xxhash.New()
	_, _ = h.WriteString(ev.Table)
	_, _ = h.WriteString("/")
	_, _ = h.WriteString(strconv.FormatInt(ev.ObjectID, 10))
	return int(h.Sum64() % uint64(len(c.workers)))
}

func (c *Consumer) workerLoop(ctx context.Context, id int) {
	defer c.wg.Done()
	for w := range c.workers[id] {
		c.process(ctx, id, w)
	}
}

func (c *Consumer) process(ctx context.Context, id int, w work) {
	kind := string(w.ev.Kind)
	log := c.logger.With("worker_id", id, "table", w.ev.Table, "object_id", w.ev.ObjectID, "kind", kind)

	evCtx, cancel := context.WithTimeout(ctx, c.cfg.EventTimeout)
	err := c.handler.OnChange(evCtx, w.ev)
	cancel()

	if err == nil {
		c.metrics.IncIntakeEvent(kind, ResultOK)
		_ = w.msg.Ack()
		return
	}

	if errors.Is(err, updater.ErrInvalidEvent) {
		log.Error("Invalid change event. Terminating.", "error", err)
		c.metrics.IncIntakeEvent(kind, ResultInvalid)
		_ = w.msg.Term()
		return
	}

	log.Error("Failed to apply change event", "error", err)
	md, mdErr := w.msg.Metadata()
	if mdErr != nil {
		log.Error("Failed to get message metadata", "error", mdErr)
		c.metrics.IncIntakeEvent(kind, ResultRetry)
		_ = w.msg.Nak()
		return
	}

	attempt := int(md.NumDelivered)
	if attempt >= c.cfg.MaxAttempts {
		log.Error("Max attempts reached. Terminating.", "max_attempts", c.cfg.MaxAttempts)
		c.metrics.IncIntakeEvent(kind, ResultDropped)
		_ = w.msg.Term()
		return
	}

	backoff := c.backoff(attempt)
	log.Info("Retrying change event", "backoff", backoff, "attempt", attempt+1, "max_attempts", c.cfg.MaxAttempts)
	c.metrics.IncIntakeEvent(kind, ResultRetry)
	_ = w.msg.NakWithDelay(backoff)
}

// backoff doubles from InitialBackoff per attempt, capped at MaxBackoff.
func (c *Consumer) backoff(attempt int) time.Duration {
	d := c.cfg.InitialBackoff
	for i := 1; i < attempt && d < c.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, c.cfg.MaxBackoff)
}

var _ Handler = (*updater.Updater)(nil)
