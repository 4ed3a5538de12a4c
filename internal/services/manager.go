// Package services wires the datewatch components into a running process.
package services

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/syntrixbase/datewatch/internal/config"
	"github.com/syntrixbase/datewatch/internal/core/pubsub"
	"github.com/syntrixbase/datewatch/internal/datewatch/delivery"
	"github.com/syntrixbase/datewatch/internal/datewatch/intake"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/internal/datewatch/reconciler"
	"github.com/syntrixbase/datewatch/internal/datewatch/scheduler"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/internal/datewatch/sweeper"
	"github.com/syntrixbase/datewatch/internal/datewatch/updater"
	"github.com/syntrixbase/datewatch/internal/datewatch/watchfile"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
)

// Options selects which long running parts Start launches. Init always
// builds the stores, registry, reconciler and sweeper.
type Options struct {
	RunScheduler bool
	RunIntake    bool
	RunMetrics   bool
	WatchFile    bool

	// Clock overrides the system clock.
	Clock datewatch.Clock
	// Providers are registered before the watch file provider.
	Providers []datewatch.Provider
}

// ServeOptions enables everything the serve command runs.
func ServeOptions() Options {
	return Options{
		RunScheduler: true,
		RunIntake:    true,
		RunMetrics:   true,
		WatchFile:    true,
	}
}

type closer func(ctx context.Context) error

type Manager struct {
	cfg    *config.Config
	opts   Options
	base   *slog.Logger
	logger *slog.Logger

	db      *sql.DB
	index   store.IndexStore
	source  store.EntitySource
	closers []closer

	registry *datewatch.Registry
	metrics  metrics.Metrics
	promReg  *prometheus.Registry

	broker    pubsub.Provider
	emitter   *intake.Emitter
	publisher *delivery.Publisher

	reconciler *reconciler.Reconciler
	updater    *updater.Updater
	sweeper    *sweeper.Sweeper
	scheduler  *scheduler.Scheduler
	intake     *intake.Consumer
	fileWatch  *watchfile.Watcher
	watchFile  *watchfile.Provider

	servers []*http.Server
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewManager(cfg *config.Config, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = datewatch.SystemClock{}
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		base:   slog.Default(),
		logger: slog.Default().With("component", "datewatch-manager"),
	}
}

func (m *Manager) Registry() *datewatch.Registry          { return m.registry }
func (m *Manager) Index() store.IndexStore                { return m.index }
func (m *Manager) Source() store.EntitySource             { return m.source }
func (m *Manager) Broker() pubsub.Provider                { return m.broker }
func (m *Manager) Emitter() *intake.Emitter               { return m.emitter }
func (m *Manager) Updater() *updater.Updater              { return m.updater }
func (m *Manager) Reconciler() *reconciler.Reconciler     { return m.reconciler }
func (m *Manager) Sweeper() *sweeper.Sweeper              { return m.sweeper }
func (m *Manager) Scheduler() *scheduler.Scheduler        { return m.scheduler }
func (m *Manager) WatchFileProvider() *watchfile.Provider { return m.watchFile }

