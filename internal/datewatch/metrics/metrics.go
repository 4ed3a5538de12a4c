// Package metrics exposes datewatch telemetry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines the interface for datewatch telemetry.
type Metrics interface {
	// Sweeper metrics
	ObserveSweep(duration time.Duration, failed bool)
	IncNotification(table, field string)
	IncCallbackFailure(component string)

	// Index metrics
	IncIndexMutation(table, op string)
	IncSeedFailure(table, field string)

	// Intake and delivery metrics
	IncIntakeEvent(kind, result string)
	IncPublish(result string)
}

// Index mutation ops.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
	OpSeed   = "seed"
	OpDrop   = "drop"
)

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

func (NoopMetrics) ObserveSweep(time.Duration, bool) {}
func (NoopMetrics) IncNotification(string, string)   {}
func (NoopMetrics) IncCallbackFailure(string)        {}
func (NoopMetrics) IncIndexMutation(string, string)  {}
func (NoopMetrics) IncSeedFailure(string, string)    {}
func (NoopMetrics) IncIntakeEvent(string, string)    {}
func (NoopMetrics) IncPublish(string)                {}

// Prometheus records metrics with client_golang collectors.
type Prometheus struct {
	sweeps           *prometheus.HistogramVec
	notifications    *prometheus.CounterVec
	callbackFailures *prometheus.CounterVec
	indexMutations   *prometheus.CounterVec
	seedFailures     *prometheus.CounterVec
	intakeEvents     *prometheus.CounterVec
	published        *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		sweeps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "datewatch_sweep_duration_seconds",
			Help: "Duration of datewatch sweeps",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datewatch_notifications_total",
			Help: "The total number of watcher callbacks fired",
		}, []string{"table", "field"}),
		callbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datewatch_callback_failures_total",
			Help: "The total number of watcher callbacks that failed or panicked",
		}, []string{"component"}),
		indexMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datewatch_index_mutations_total",
			Help: "The total number of upcoming entry writes",
		}, []string{"table", "op"}),
		seedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datewatch_seed_failures_total",
			Help: "The total number of indexed fields that failed to seed",
		}, []string{"table", "field"}),
		intakeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datewatch_intake_events_total",
			Help: "The total number of change events consumed",
		}, []string{"kind", "result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "datewatch_notify_published_total",
			Help: "The total number of notification tasks published",
		}, []string{"result"}),
	}
	reg.MustRegister(
		p.sweeps,
		p.notifications,
		p.callbackFailures,
		p.indexMutations,
		p.seedFailures,
		p.intakeEvents,
		p.published,
	)
	return p
}

func (p *Prometheus) ObserveSweep(duration time.Duration, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	p.sweeps.WithLabelValues(result).Observe(duration.Seconds())
}

func (p *Prometheus) IncNotification(table, field string) {
	p.notifications.WithLabelValues(table, field).Inc()
}

func (p *Prometheus) IncCallbackFailure(component string) {
	p.callbackFailures.WithLabelValues(component).Inc()
}

func (p *Prometheus) IncIndexMutation(table, op string) {
	p.indexMutations.WithLabelValues(table, op).Inc()
}

func (p *Prometheus) IncSeedFailure(table, field string) {
	p.seedFailures.WithLabelValues(table, field).Inc()
}

func (p *Prometheus) IncIntakeEvent(kind, result string) {
	p.intakeEvents.WithLabelValues(kind, result).Inc()
}

func (p *Prometheus) IncPublish(result string) {
	p.published.WithLabelValues(result).Inc()
}
