package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/datewatch/internal/services"
)

func init() {
	color.NoColor = true
}

func TestPrintStatus(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	fields := []services.FieldStatus{
		{Table: "invoice", Field: "due", MaxOffset: -3600, LastCheck: now.Unix() - 30, Entries: 4, Watchers: []string{"billing/invoice/due/-3600"}},
		{Table: "user", Field: "trial_end", Entries: 0, Orphaned: true},
	}

	var buf bytes.Buffer
	printStatus(&buf, fields, now)
	out := buf.String()

	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "billing/invoice/due/-3600")
	assert.Contains(t, out, "-1h0m0s")
	assert.Contains(t, out, "30s ago")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "dropped on next sweep")
}

func TestPrintStatus_Empty(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, nil, time.Now())
	assert.Equal(t, "No indexed fields.\n", buf.String())
}

func TestStatusCommand(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	require.NoError(t, os.Mkdir(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(`
logging:
  console:
    enabled: false
  file:
    enabled: false
storage:
  index: memory
  source: memory
metrics:
  enabled: false
`), 0644))

	prev := configDir
	defer func() { configDir = prev }()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"status", "--config-dir", dir})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "No indexed fields.")
}
