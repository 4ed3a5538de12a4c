// Package watchfile loads watcher definitions from a YAML or JSON file and
// keeps them current while the file changes.
package watchfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/datewatch/pkg/model"
)

// Entry is one watcher as written in the file.
type Entry struct {
	Component  string        `json:"component" yaml:"component"`
	Table      string        `json:"table" yaml:"table"`
	Field      string        `json:"field" yaml:"field"`
	Offset     Offset        `json:"offset" yaml:"offset"`
	Identifier string        `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Condition  model.Filters `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Offset is a signed duration written as "-72h", "3d" or a number of seconds.
type Offset time.Duration

// Duration returns o as a time.Duration.
func (o Offset) Duration() time.Duration { return time.Duration(o) }

// ParseOffset parses the textual offset forms.
func ParseOffset(s string) (Offset, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Offset(time.Duration(secs) * time.Second), nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q", s)
		}
		return Offset(time.Duration(n * float64(24*time.Hour))), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	return Offset(d), nil
}

func (o *Offset) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := ParseOffset(s)
		if err != nil {
			return err
		}
		*o = v
		return nil
	}
	var secs int64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid offset %s", data)
	}
	*o = Offset(time.Duration(secs) * time.Second)
	return nil
}

func (o Offset) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(o).String())
}

func (o *Offset) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseOffset(node.Value)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func (o Offset) MarshalYAML() (interface{}, error) {
	return time.Duration(o).String(), nil
}

// Load reads entries from a JSON or YAML file.
func Load(filename string) ([]Entry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read watcher file: %w", err)
	}
	return Parse(data, filepath.Ext(filename))
}

// Parse decodes entries. ext selects the format; anything other than
// ".yaml", ".yml" or ".json" tries JSON and then YAML.
func Parse(data []byte, ext string) ([]Entry, error) {
	var entries []Entry
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse YAML watcher file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse JSON watcher file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			if err := yaml.Unmarshal(data, &entries); err != nil {
				return nil, fmt.Errorf("failed to parse watcher file (unknown format): %w", err)
			}
		}
	}
	return entries, nil
}
