// Package config loads the simbridge daemon configuration.
//
// Every field is a pointer so that a partial file only overrides what it
// names; the Get* accessors supply defaults for the rest. Durations are
// strings such as "1ms" or "30s".
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the canonical defaults file shipped with the repo.
const DefaultConfigPath = "config/simbridge.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults used by the Get* accessors.
const (
	DefaultControlAddr   = "127.0.0.1:10003"
	DefaultTelemetryAddr = "127.0.0.1:10004"
	DefaultStatusAddr    = "127.0.0.1:10006"
	DefaultAdminListen   = "127.0.0.1:8086"
	DefaultJournalPath   = "simbridge.db"
	DefaultLogLevel      = "diag"

	DefaultPollInterval  = time.Millisecond
	DefaultTickInterval  = time.Second / 60
	DefaultStatsInterval = 30 * time.Second
)

// Log levels, from quietest to noisiest.
var logLevels = []string{"ops", "diag", "trace"}

// Config is the daemon configuration.
type Config struct {
	// Endpoints
	ControlAddr   *string `json:"control_addr,omitempty" yaml:"control_addr,omitempty"`
	TelemetryAddr *string `json:"telemetry_addr,omitempty" yaml:"telemetry_addr,omitempty"`
	StatusAddr    *string `json:"status_addr,omitempty" yaml:"status_addr,omitempty"`
	AdminListen   *string `json:"admin_listen,omitempty" yaml:"admin_listen,omitempty"` // empty disables

	// Timing
	PollInterval  *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	TickInterval  *string `json:"tick_interval,omitempty" yaml:"tick_interval,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"` // "0s" disables

	// Journal
	JournalPath *string `json:"journal_path,omitempty" yaml:"journal_path,omitempty"` // empty disables
	RecordPoses *bool   `json:"record_poses,omitempty" yaml:"record_poses,omitempty"`

	LogLevel *string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		ControlAddr:   ptrString(DefaultControlAddr),
		TelemetryAddr: ptrString(DefaultTelemetryAddr),
		StatusAddr:    ptrString(DefaultStatusAddr),
		AdminListen:   ptrString(DefaultAdminListen),
		PollInterval:  ptrString(DefaultPollInterval.String()),
		TickInterval:  ptrString(DefaultTickInterval.String()),
		StatsInterval: ptrString(DefaultStatsInterval.String()),
		JournalPath:   ptrString(DefaultJournalPath),
		RecordPoses:   ptrBool(false),
		LogLevel:      ptrString(DefaultLogLevel),
	}
}

// Load reads a Config from a .json, .yaml or .yml file and validates it.
// Fields the file omits keep their defaults through the Get* accessors.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	addrs := []struct {
		name  string
		value *string
	}{
		{"control_addr", c.ControlAddr},
		{"telemetry_addr", c.TelemetryAddr},
		{"status_addr", c.StatusAddr},
	}
	for _, a := range addrs {
		if a.value == nil {
			continue
		}
		if _, _, err := net.SplitHostPort(*a.value); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", a.name, *a.value, err)
		}
	}
	if c.AdminListen != nil && *c.AdminListen != "" {
		if _, _, err := net.SplitHostPort(*c.AdminListen); err != nil {
			return fmt.Errorf("invalid admin_listen '%s': %w", *c.AdminListen, err)
		}
	}

	// The inbound ports must differ from each other and from the status port.
	if c.GetControlAddr() == c.GetTelemetryAddr() && !strings.HasSuffix(c.GetControlAddr(), ":0") {
		return fmt.Errorf("control_addr and telemetry_addr must differ, both are %s", c.GetControlAddr())
	}
	if c.GetStatusAddr() == c.GetControlAddr() || c.GetStatusAddr() == c.GetTelemetryAddr() {
		return fmt.Errorf("status_addr %s must differ from the inbound addresses", c.GetStatusAddr())
	}

	durations := []struct {
		name     string
		value    *string
		positive bool
	}{
		{"poll_interval", c.PollInterval, true},
		{"tick_interval", c.TickInterval, true},
		{"stats_interval", c.StatsInterval, false},
	}
	for _, d := range durations {
		if d.value == nil || *d.value == "" {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if v < 0 || (d.positive && v == 0) {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.value)
		}
	}

	if c.LogLevel != nil {
		valid := false
		for _, l := range logLevels {
			if *c.LogLevel == l {
				valid = true
			}
		}
		if !valid {
			return fmt.Errorf("log_level must be one of %s, got %q", strings.Join(logLevels, ", "), *c.LogLevel)
		}
	}
	return nil
}

func getString(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetControlAddr returns the control listen address or the default.
func (c *Config) GetControlAddr() string {
	return getString(c.ControlAddr, DefaultControlAddr)
}

// GetTelemetryAddr returns the telemetry listen address or the default.
func (c *Config) GetTelemetryAddr() string {
	return getString(c.TelemetryAddr, DefaultTelemetryAddr)
}

// GetStatusAddr returns the status destination or the default.
func (c *Config) GetStatusAddr() string {
	return getString(c.StatusAddr, DefaultStatusAddr)
}

// GetAdminListen returns the debug server address. Empty means disabled.
func (c *Config) GetAdminListen() string {
	return getString(c.AdminListen, DefaultAdminListen)
}

// GetPollInterval returns the poller pause between iterations.
func (c *Config) GetPollInterval() time.Duration {
	return getDuration(c.PollInterval, DefaultPollInterval)
}

// GetTickInterval returns the frame interval.
func (c *Config) GetTickInterval() time.Duration {
	return getDuration(c.TickInterval, DefaultTickInterval)
}

// GetStatsInterval returns how often counters are logged. Zero disables.
func (c *Config) GetStatsInterval() time.Duration {
	return getDuration(c.StatsInterval, DefaultStatsInterval)
}

// GetJournalPath returns the journal database path. Empty means disabled.
func (c *Config) GetJournalPath() string {
	return getString(c.JournalPath, DefaultJournalPath)
}

// GetRecordPoses returns whether poses are journaled.
func (c *Config) GetRecordPoses() bool {
	if c.RecordPoses == nil {
		return false // default: signals only
	}
	return *c.RecordPoses
}

// GetLogLevel returns the log verbosity.
func (c *Config) GetLogLevel() string {
	return getString(c.LogLevel, DefaultLogLevel)
}
