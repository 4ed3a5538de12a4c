package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/syntrixbase/datewatch/internal/services"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexed fields and their watchers",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := setup(cmd.Context(), oneShot())
		if err != nil {
			return err
		}
		defer cleanup()

		fields, err := mgr.Status(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), fields, time.Now())
		return nil
	},
}

var (
	headerColor  = color.New(color.Bold)
	orphanColor  = color.New(color.FgYellow)
	staleColor   = color.New(color.FgRed)
	healthyColor = color.New(color.FgHiGreen)
	staleAfter   = time.Hour
)

// cell is one table cell; paint, when set, colours the padded text.
type cell struct {
	text  string
	paint *color.Color
}

func printStatus(out io.Writer, fields []services.FieldStatus, now time.Time) {
	if len(fields) == 0 {
		fmt.Fprintln(out, "No indexed fields.")
		return
	}

	header := []string{"TABLE", "FIELD", "ENTRIES", "MAX OFFSET", "LAST CHECK", "WATCHERS"}
	rows := make([][]cell, 0, len(fields)+1)
	head := make([]cell, len(header))
	for i, h := range header {
		head[i] = cell{text: h, paint: headerColor}
	}
	rows = append(rows, head)

	for _, f := range fields {
		watchers := cell{text: strings.Join(f.Watchers, ", ")}
		if f.Orphaned {
			watchers = cell{text: "(none, dropped on next sweep)", paint: orphanColor}
		}
		rows = append(rows, []cell{
			{text: f.Table},
			{text: f.Field},
			{text: fmt.Sprint(f.Entries)},
			{text: (time.Duration(f.MaxOffset) * time.Second).String()},
			lastCheck(f.LastCheck, now),
			watchers,
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, c := range row {
			widths[i] = max(widths[i], len(c.text))
		}
	}

	for _, row := range rows {
		var b strings.Builder
		for i, c := range row {
			text := c.text
			if i < len(row)-1 {
				text += strings.Repeat(" ", widths[i]-len(c.text)+2)
			}
			if c.paint != nil {
				text = c.paint.Sprint(text)
			}
			b.WriteString(text)
		}
		fmt.Fprintln(out, strings.TrimRight(b.String(), " "))
	}
}

func lastCheck(ts int64, now time.Time) cell {
	if ts <= 0 {
		return cell{text: "never"}
	}
	age := now.Sub(time.Unix(ts, 0)).Truncate(time.Second)
	text := time.Unix(ts, 0).UTC().Format(time.RFC3339) + " (" + age.String() + " ago)"
	if age > staleAfter {
		return cell{text: text, paint: staleColor}
	}
	return cell{text: text, paint: healthyColor}
}
