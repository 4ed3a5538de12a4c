package datewatch

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Provider supplies the watchers of one component.
type Provider interface {
	Component() string
	Watchers(w *Watchlist) error
}

type funcProvider struct {
	component string
	fn        func(w *Watchlist)
}

func (p funcProvider) Component() string { return p.component }

func (p funcProvider) Watchers(w *Watchlist) error {
	p.fn(w)
	return nil
}

// Watchlist collects the watchers declared by one provider.
type Watchlist struct {
	component string
	defs      *[]*Definition
}

func newWatchlist(component string) *Watchlist {
	return &Watchlist{component: component, defs: new([]*Definition)}
}

// As returns a view of w that declares watchers on behalf of component.
// Providers that load watchers of several components from one source use it.
func (w *Watchlist) As(component string) *Watchlist {
	return &Watchlist{component: component, defs: w.defs}
}

// Watch declares a watcher on table.field. A negative offset fires before the
// date, a positive one after it.
func (w *Watchlist) Watch(table, field string, offset time.Duration) *Handle {
	def := &Definition{
		Component: w.component,
		Table:     table,
		Field:     field,
		Offset:    offset,
	}
	*w.defs = append(*w.defs, def)
	return &Handle{def: def}
}

// Registry holds the live watcher set. It is rebuilt from its providers on
// Refresh and cached until the next refresh or Reset.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	defs      []Definition
	groups    map[groupKey]*Group
	built     bool
	logger    *slog.Logger
}

type groupKey struct {
	table string
	field string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger.With("component", "datewatch-registry")}
}

// Register adds a provider. The cached watcher set is invalidated.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.built = false
}

// RegisterFunc registers a provider backed by fn.
func (r *Registry) RegisterFunc(component string, fn func(w *Watchlist)) {
	r.Register(funcProvider{component: component, fn: fn})
}

// Invalidate drops the cached watcher set so the next read rebuilds it.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.built = false
	r.mu.Unlock()
}

// Reset removes every provider and cached watcher.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = nil
	r.defs = nil
	r.groups = nil
	r.built = false
}

// Refresh asks every provider for its watchers again. Invalid and duplicate
// watchers are logged and skipped.
func (r *Registry) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuild()
}

func (r *Registry) rebuild() {
	var defs []Definition
	seen := make(map[string]struct{})

	for _, p := range r.providers {
		w := newWatchlist(p.Component())
		if err := r.collect(p, w); err != nil {
			r.logger.Error("Failed to collect watchers", "provider", p.Component(), "error", err)
			continue
		}
		for _, d := range *w.defs {
			def := *d
			if err := def.Validate(); err != nil {
				r.logger.Error("Invalid watcher ignored", "watcher", def.Key(), "error", err)
				continue
			}
			key := def.Key()
			if _, dup := seen[key]; dup {
				r.logger.Error("Duplicate watcher ignored, use an identifier to tell watchers apart", "watcher", key)
				continue
			}
			seen[key] = struct{}{}
			defs = append(defs, def)
		}
	}

	r.defs = defs
	r.groups = buildGroups(defs)
	r.built = true
}

func (r *Registry) collect(p Provider, w *Watchlist) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()
	return p.Watchers(w)
}

func (r *Registry) ensure() {
	r.mu.RLock()
	built := r.built
	r.mu.RUnlock()
	if built {
		return
	}
	r.mu.Lock()
	if !r.built {
		r.rebuild()
	}
	r.mu.Unlock()
}

// Definitions returns the live watcher set.
func (r *Registry) Definitions() []Definition {
	r.ensure()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Definition(nil), r.defs...)
}

// Groups returns the watchers grouped by (table, field), ordered by table then field.
func (r *Registry) Groups() []Group {
	r.ensure()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// Group returns the group for table.field.
func (r *Registry) Group(table, field string) (Group, bool) {
	r.ensure()
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupKey{table, field}]
	if !ok {
		return Group{}, false
	}
	return *g, true
}
