package watchfile

import (
	"log/slog"
	"sync"

	"github.com/syntrixbase/datewatch/pkg/datewatch"
)

// Provider serves the entries of one watcher file to a datewatch.Registry.
// Every entry shares the same callback, typically a delivery publisher.
type Provider struct {
	path     string
	callback datewatch.Callback
	logger   *slog.Logger

	mu      sync.RWMutex
	entries []Entry
}

var _ datewatch.Provider = (*Provider)(nil)

// NewProvider creates a provider for path. Call Load before registering it.
func NewProvider(path string, cb datewatch.Callback, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		path:     path,
		callback: cb,
		logger:   logger.With("component", "datewatch-watchfile", "path", path),
	}
}

// Path returns the watched file.
func (p *Provider) Path() string { return p.path }

// Load rereads the file. On error the previous entries stay in effect.
func (p *Provider) Load() error {
	entries, err := Load(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.entries = entries
	p.mu.Unlock()
	p.logger.Info("Loaded watcher file", "watchers", len(entries))
	return nil
}

// Entries returns the current entries.
func (p *Provider) Entries() []Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Entry(nil), p.entries...)
}

func (p *Provider) Component() string { return "watchfile" }

// Watchers declares every entry under its own component. Invalid entries are
// rejected by the registry.
func (p *Provider) Watchers(w *datewatch.Watchlist) error {
	for _, e := range p.Entries() {
		h := w.As(e.Component).
			Watch(e.Table, e.Field, e.Offset.Duration()).
			SetCallback(p.callback)
		if len(e.Condition) > 0 {
			h.SetCondition(e.Condition)
		}
		if e.Identifier != "" {
			h.SetIdentifier(e.Identifier)
		}
	}
	return nil
}
