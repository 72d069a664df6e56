package eventlog

import (
	"fmt"

	coreeventlog "github.com/adamsaleh11/DroneSystem/core/eventlog"
	"github.com/adamsaleh11/DroneSystem/core/factory"
)

// FileConfig configures the file backed stores.
type FileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func (c *FileConfig) SetDefaults(path string) {
	if c.Path == "" {
		c.Path = path
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 7
	}
}

func decode(raw map[string]any, def string) (FileConfig, error) {
	var c FileConfig
	if err := factory.Decode(raw, &c); err != nil {
		return c, fmt.Errorf("event log config: %w", err)
	}
	c.SetDefaults(def)
	return c, nil
}

func init() {
	_ = coreeventlog.RegisterStore("jsonl", func(raw map[string]any) (coreeventlog.Store, error) {
		c, err := decode(raw, "log/events.jsonl")
		if err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	_ = coreeventlog.RegisterStore("rotating", func(raw map[string]any) (coreeventlog.Store, error) {
		c, err := decode(raw, "log/events.jsonl")
		if err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = coreeventlog.RegisterStore("sqlite", func(raw map[string]any) (coreeventlog.Store, error) {
		c, err := decode(raw, "log/events.db")
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}
