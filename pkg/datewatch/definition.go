// Package datewatch is the public API components use to declare interest in
// date-valued fields of the host's tables.
//
// A component registers a Provider with a Registry. Whenever the watcher set
// is refreshed the provider declares its watchers through a Watchlist:
//
//	reg.RegisterFunc("enrol_reminder", func(w *datewatch.Watchlist) {
//		w.Watch("user_enrolments", "timeend", -72*time.Hour).
//			SetCondition(model.Filters{{Field: "status", Op: model.OpEq, Value: 0}}).
//			SetCallback(remind)
//	})
//
// Callbacks are never persisted; the registry is rebuilt every process
// lifetime and only the derived index parameters are stored.
package datewatch

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Callback is invoked once per due (watcher, object) pair.
type Callback func(ctx context.Context, n *Notification) error

var componentRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// Definition is one watcher. It is a plain value; use Watchlist.Watch and the
// Handle setters to build it.
type Definition struct {
	Component  string
	Table      string
	Field      string
	Offset     time.Duration
	Condition  model.Filters
	Identifier string
	Callback   Callback
}

// OffsetSeconds returns the offset truncated to whole seconds.
func (d Definition) OffsetSeconds() int64 {
	return int64(d.Offset / time.Second)
}

// Key identifies the watcher for duplicate detection.
func (d Definition) Key() string {
	var b strings.Builder
	b.WriteString(d.Component)
	b.WriteByte('/')
	b.WriteString(d.Table)
	b.WriteByte('/')
	b.WriteString(d.Field)
	b.WriteByte('/')
	if d.Identifier != "" {
		b.WriteByte('#')
		b.WriteString(d.Identifier)
	} else {
		b.WriteString(strconv.FormatInt(d.OffsetSeconds(), 10))
	}
	return b.String()
}

// Hash is a stable hash of Key.
func (d Definition) Hash() uint64 {
	return xxhash.Sum64String(d.Key())
}

func (d Definition) String() string {
	return d.Key()
}

// Validate checks names, the condition and the callback.
func (d Definition) Validate() error {
	if !componentRegex.MatchString(d.Component) {
		return fmt.Errorf("%w: invalid component %q", model.ErrInvalidDefinition, d.Component)
	}
	if !model.IsIdentifier(d.Table) {
		return fmt.Errorf("%w: invalid table %q", model.ErrInvalidDefinition, d.Table)
	}
	if !model.IsIdentifier(d.Field) {
		return fmt.Errorf("%w: invalid field %q", model.ErrInvalidDefinition, d.Field)
	}
	if d.Callback == nil {
		return fmt.Errorf("%w: no callback for %s", model.ErrInvalidDefinition, d.Key())
	}
	if !d.Condition.Validate() {
		return fmt.Errorf("%w: %s", model.ErrInvalidCondition, d.Key())
	}
	return nil
}

// Handle is returned by Watchlist.Watch and updates the watcher in place.
type Handle struct {
	def *Definition
}

// SetCallback sets the function invoked when the watcher is due.
func (h *Handle) SetCallback(cb Callback) *Handle {
	h.def.Callback = cb
	return h
}

// SetCondition restricts the watcher to records matching all filters.
func (h *Handle) SetCondition(filters model.Filters) *Handle {
	h.def.Condition = append(model.Filters(nil), filters...)
	return h
}

// SetIdentifier disambiguates several watchers of one component on the same field.
func (h *Handle) SetIdentifier(id string) *Handle {
	h.def.Identifier = id
	return h
}

// Definition returns a copy of the watcher built so far.
func (h *Handle) Definition() Definition {
	return *h.def
}
