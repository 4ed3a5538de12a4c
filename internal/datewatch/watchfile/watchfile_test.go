package watchfile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

const sampleYAML = `
- component: billing
  table: subscriptions
  field: renews_at
  offset: -72h
  condition:
    - field: status
      op: "=="
      value: active
- component: billing
  table: subscriptions
  field: renews_at
  offset: 1d
  identifier: overdue
- component: mail
  table: users
  field: birthday
  offset: 0
`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func noop(context.Context, *datewatch.Notification) error { return nil }

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"-72h", -72 * time.Hour},
		{"90m", 90 * time.Minute},
		{"3d", 72 * time.Hour},
		{"-1.5d", -36 * time.Hour},
		{"3600", time.Hour},
		{"-60", -time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseOffset(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.Duration(), tt.in)
	}

	for _, bad := range []string{"soon", "xd", "3w"} {
		_, err := ParseOffset(bad)
		assert.Error(t, err, bad)
	}
}

func TestParse_YAML(t *testing.T) {
	entries, err := Parse([]byte(sampleYAML), ".yml")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "billing", entries[0].Component)
	assert.Equal(t, -72*time.Hour, entries[0].Offset.Duration())
	require.Len(t, entries[0].Condition, 1)
	assert.Equal(t, model.Filter{Field: "status", Op: model.OpEq, Value: "active"}, entries[0].Condition[0])

	assert.Equal(t, "overdue", entries[1].Identifier)
	assert.Equal(t, 24*time.Hour, entries[1].Offset.Duration())
	assert.Zero(t, entries[2].Offset)
}

func TestParse_JSON(t *testing.T) {
	data := `[{"component":"billing","table":"subscriptions","field":"renews_at","offset":"-72h"},
	          {"component":"mail","table":"users","field":"birthday","offset":-3600}]`
	entries, err := Parse([]byte(data), ".json")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, -72*time.Hour, entries[0].Offset.Duration())
	assert.Equal(t, -time.Hour, entries[1].Offset.Duration())

	out, err := json.Marshal(entries[0].Offset)
	require.NoError(t, err)
	assert.Equal(t, `"-72h0m0s"`, string(out))
}

func TestParse_UnknownExtension(t *testing.T) {
	entries, err := Parse([]byte(sampleYAML), "")
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, err = Parse([]byte("{{{"), ".conf")
	assert.ErrorContains(t, err, "unknown format")

	_, err = Parse([]byte(`[{"offset":"nope"}]`), ".json")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorContains(t, err, "failed to read watcher file")
}

func TestProvider_RegistersEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchers.yml")
	write(t, path, sampleYAML)

	p := NewProvider(path, noop, quiet())
	require.NoError(t, p.Load())
	assert.Len(t, p.Entries(), 3)

	r := datewatch.NewRegistry(quiet())
	r.Register(p)

	defs := r.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "billing/subscriptions/renews_at/-259200", defs[0].Key())
	assert.Len(t, defs[0].Condition, 1)
	assert.Equal(t, "billing/subscriptions/renews_at/#overdue", defs[1].Key())
	assert.Equal(t, "mail", defs[2].Component)

	g, ok := r.Group("subscriptions", "renews_at")
	require.True(t, ok)
	assert.Len(t, g.Watchers, 2)
}

func TestProvider_BadReloadKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchers.yml")
	write(t, path, sampleYAML)

	p := NewProvider(path, noop, quiet())
	require.NoError(t, p.Load())

	write(t, path, "- component: [unterminated")
	assert.Error(t, p.Load())
	assert.Len(t, p.Entries(), 3)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchers.yml")
	write(t, path, sampleYAML)

	p := NewProvider(path, noop, quiet())
	require.NoError(t, p.Load())

	var reloads atomic.Int32
	w, err := NewWatcher(p, 10*time.Millisecond, func() { reloads.Add(1) }, quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	write(t, path, `
- component: mail
  table: users
  field: birthday
  offset: 0
`)
	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	require.Len(t, p.Entries(), 1)
	assert.Equal(t, "mail", p.Entries()[0].Component)

	// Unrelated files in the same directory are ignored.
	before := reloads.Load()
	write(t, filepath.Join(filepath.Dir(path), "other.txt"), "x")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, reloads.Load())
}

func TestWatcher_InvalidContentSkipsReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchers.yml")
	write(t, path, sampleYAML)

	p := NewProvider(path, noop, quiet())
	require.NoError(t, p.Load())

	var reloads atomic.Int32
	w, err := NewWatcher(p, 10*time.Millisecond, func() { reloads.Add(1) }, quiet())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	write(t, path, "- component: [unterminated")
	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, reloads.Load())
	assert.Len(t, p.Entries(), 3)
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	p := NewProvider(filepath.Join(t.TempDir(), "nope", "watchers.yml"), noop, quiet())
	_, err := NewWatcher(p, 0, nil, quiet())
	assert.Error(t, err)
}
