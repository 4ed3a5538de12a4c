package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syntrixbase/datewatch/internal/config"
	"github.com/syntrixbase/datewatch/internal/core/pubsub"
	"github.com/syntrixbase/datewatch/internal/core/pubsub/memory"
	natspubsub "github.com/syntrixbase/datewatch/internal/core/pubsub/nats"
	"github.com/syntrixbase/datewatch/internal/datewatch/delivery"
	"github.com/syntrixbase/datewatch/internal/datewatch/intake"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/internal/datewatch/reconciler"
	"github.com/syntrixbase/datewatch/internal/datewatch/scheduler"
	memstore "github.com/syntrixbase/datewatch/internal/datewatch/store/memory"
	mongostore "github.com/syntrixbase/datewatch/internal/datewatch/store/mongo"
	"github.com/syntrixbase/datewatch/internal/datewatch/store/sqlstore"
	"github.com/syntrixbase/datewatch/internal/datewatch/sweeper"
	"github.com/syntrixbase/datewatch/internal/datewatch/updater"
	"github.com/syntrixbase/datewatch/internal/datewatch/watchfile"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
)

// Swapped in tests.
var (
	openSQL = func(cfg config.StorageConfig) (*sql.DB, sqlstore.Dialect, error) {
		d, err := sqlstore.DialectFor(cfg.Driver)
		if err != nil {
			return nil, sqlstore.Dialect{}, err
		}
		db, err := sqlstore.Open(d, cfg.DSN)
		if err != nil {
			return nil, d, err
		}
		return db, d, nil
	}
	connectMongo = func(ctx context.Context, cfg config.MongoConfig) (*mongostore.Source, error) {
		return mongostore.Connect(ctx, cfg.URI, cfg.DatabaseName)
	}
	newNATSProvider = func(url string) pubsub.Provider {
		return natspubsub.NewProvider(url)
	}
)

func (m *Manager) Init(ctx context.Context) error {
	m.initMetrics()

	if err := m.initStores(ctx); err != nil {
		return err
	}

	m.registry = datewatch.NewRegistry(m.base)
	for _, p := range m.opts.Providers {
		m.registry.Register(p)
	}

	if err := m.initPubSub(ctx); err != nil {
		return err
	}

	m.initCore()

	if m.opts.WatchFile {
		m.initWatchFile()
	}

	if m.opts.RunIntake && m.cfg.Datewatch.Intake.Enabled {
		if err := m.initIntake(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) initMetrics() {
	if !m.opts.RunMetrics || !m.cfg.Metrics.Enabled {
		m.metrics = metrics.NoopMetrics{}
		return
	}

	m.promReg = prometheus.NewRegistry()
	m.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.metrics = metrics.NewPrometheus(m.promReg)

	mux := http.NewServeMux()
	mux.Handle(m.cfg.Metrics.Path, promhttp.HandlerFor(m.promReg, promhttp.HandlerOpts{}))
	m.servers = append(m.servers, &http.Server{
		Addr:    m.cfg.Metrics.Listen,
		Handler: mux,
	})
}

func (m *Manager) initStores(ctx context.Context) error {
	storage := m.cfg.Storage

	var (
		dialect sqlstore.Dialect
		err     error
	)
	if storage.UsesSQL() {
		m.db, dialect, err = openSQL(storage)
		if err != nil {
			return fmt.Errorf("failed to open %s database: %w", storage.Driver, err)
		}
		db := m.db
		m.closers = append(m.closers, func(context.Context) error { return db.Close() })
	}

	switch storage.Index {
	case config.IndexSQL:
		if err := sqlstore.EnsureSchema(m.db, dialect); err != nil {
			return fmt.Errorf("failed to create index schema: %w", err)
		}
		m.index = sqlstore.NewIndexStore(m.db, dialect)
	default:
		m.index = memstore.NewIndexStore()
	}

	switch storage.Source {
	case config.SourceSQL:
		m.source = sqlstore.NewSource(m.db, dialect)
	case config.SourceMongo:
		src, err := connectMongo(ctx, storage.Mongo)
		if err != nil {
			return fmt.Errorf("failed to connect to mongo: %w", err)
		}
		m.source = src
		m.closers = append(m.closers, src.Close)
	default:
		m.source = memstore.NewSource()
	}

	m.logger.Info("Stores ready", "index", storage.Index, "source", storage.Source, "driver", storage.Driver)
	return nil
}

func (m *Manager) initPubSub(ctx context.Context) error {
	ps := m.cfg.PubSub
	switch ps.Provider {
	case config.PubSubNATS:
		m.broker = newNATSProvider(ps.NatsURL)
	default:
		m.broker = memory.New()
	}
	if c, ok := m.broker.(pubsub.Connectable); ok {
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to %s: %w", ps.Provider, err)
		}
	}

	storage := pubsub.ParseStorage(ps.Storage)

	pub, err := m.broker.NewPublisher(intake.PublisherOptions(storage))
	if err != nil {
		return fmt.Errorf("failed to create change publisher: %w", err)
	}
	m.emitter = intake.NewEmitter(pub)

	pub, err = m.broker.NewPublisher(delivery.PublisherOptions(storage, m.cfg.Datewatch.Delivery.RetryAttempts))
	if err != nil {
		return fmt.Errorf("failed to create notification publisher: %w", err)
	}
	m.publisher = delivery.NewPublisher(pub, delivery.Options{
		IncludeRecord: m.cfg.Datewatch.Delivery.IncludeRecord,
	}, m.metrics, m.base)
	return nil
}

func (m *Manager) initCore() {
	clock := m.opts.Clock

	m.reconciler = reconciler.New(m.registry, m.index, m.source, clock, m.metrics, m.base)
	m.updater = updater.New(m.registry, m.index, m.source, clock, m.metrics, m.base)
	m.sweeper = sweeper.New(
		sweeper.Config{Delay: m.cfg.Datewatch.Delay()},
		m.reconciler, m.registry, m.index, m.source, clock, m.metrics, m.base,
	)
	m.scheduler = scheduler.New(m.sweeper, scheduler.Config{
		Interval:   m.cfg.Datewatch.SweepInterval,
		RunOnStart: true,
	}, m.base)
}

// initWatchFile registers the watcher file. A missing or broken file is
// logged; the watcher picks it up once it appears.
func (m *Manager) initWatchFile() {
	path := m.cfg.Datewatch.WatchFile
	if path == "" {
		return
	}

	m.watchFile = watchfile.NewProvider(path, m.publisher.Callback(), m.base)
	if err := m.watchFile.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Info("Watcher file not found", "path", path)
		} else {
			m.logger.Error("Failed to load watcher file", "path", path, "error", err)
		}
	}
	m.registry.Register(m.watchFile)

	w, err := watchfile.NewWatcher(m.watchFile, m.cfg.Datewatch.WatchFileDebounce, m.onWatchFileReload, m.base)
	if err != nil {
		m.logger.Warn("Watcher file hot reload disabled", "path", path, "error", err)
		return
	}
	m.fileWatch = w
}

func (m *Manager) onWatchFileReload() {
	m.registry.Invalidate()
	m.scheduler.Trigger()
}

func (m *Manager) initIntake() error {
	storage := pubsub.ParseStorage(m.cfg.PubSub.Storage)
	consumer, err := m.broker.NewConsumer(intake.ConsumerOptions(storage))
	if err != nil {
		return fmt.Errorf("failed to create change consumer: %w", err)
	}

	ic := m.cfg.Datewatch.Intake
	m.intake = intake.New(consumer, m.updater, intake.Config{
		Workers:        ic.Workers,
		MaxAttempts:    ic.MaxAttempts,
		InitialBackoff: ic.InitialBackoff,
		MaxBackoff:     ic.MaxBackoff,
	}, m.metrics, m.base)
	return nil
}
