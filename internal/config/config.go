package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/sighting"
	"github.com/banshee-data/copresence/internal/units"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/copresence.defaults.json"

// Config holds the meeting thresholds and ingestion/sweep settings.
// Every field is optional; the Get* methods supply defaults for omitted
// fields, so partial files are safe.
type Config struct {
	// Meeting thresholds
	MaxStaleness *string  `json:"max_staleness,omitempty"` // duration string like "120s"
	MaxDistance  *float64 `json:"max_distance_m,omitempty"`

	// Ingestion
	TimestampLayouts []string `json:"timestamp_layouts,omitempty"`
	StrictCSV        *bool    `json:"strict_csv,omitempty"`

	// All-pairs sweep
	SweepWorkers *int `json:"sweep_workers,omitempty"`

	// Output
	PlotDir         *string `json:"plot_dir,omitempty"`
	DisplayUnits    *string `json:"display_units,omitempty"`    // m, ft or yd
	DisplayTimezone *string `json:"display_timezone,omitempty"` // tz database name
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// EmptyConfig returns a Config with every field unset.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	return &Config{
		MaxStaleness:     ptrString(meeting.DefaultMaxStaleness.String()),
		MaxDistance:      ptrFloat64(meeting.DefaultMaxDistance),
		TimestampLayouts: append([]string(nil), sighting.DefaultLayouts...),
		StrictCSV:        ptrBool(false),
		SweepWorkers:     ptrInt(defaultSweepWorkers),
		PlotDir:          ptrString(defaultPlotDir),
		DisplayUnits:     ptrString(units.Metres),
		DisplayTimezone:  ptrString("UTC"),
	}
}

const (
	defaultSweepWorkers = 4
	defaultPlotDir      = "plots"
	maxFileSize         = 1 * 1024 * 1024 // 1MB
)

// Load reads a Config from a JSON file. The file must have a .json extension
// and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
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

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upward from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set fields hold usable values.
func (c *Config) Validate() error {
	if c.MaxStaleness != nil && *c.MaxStaleness != "" {
		d, err := time.ParseDuration(*c.MaxStaleness)
		if err != nil {
			return fmt.Errorf("invalid max_staleness '%s': %w", *c.MaxStaleness, err)
		}
		if d <= 0 {
			return fmt.Errorf("max_staleness must be positive, got %s", d)
		}
	}

	if c.MaxDistance != nil && *c.MaxDistance <= 0 {
		return fmt.Errorf("max_distance_m must be positive, got %f", *c.MaxDistance)
	}

	if c.SweepWorkers != nil && *c.SweepWorkers < 1 {
		return fmt.Errorf("sweep_workers must be at least 1, got %d", *c.SweepWorkers)
	}

	if c.DisplayUnits != nil && *c.DisplayUnits != "" && !units.IsValid(*c.DisplayUnits) {
		return fmt.Errorf("invalid display_units '%s'; must be one of: %s", *c.DisplayUnits, units.GetValidUnitsString())
	}

	if c.DisplayTimezone != nil && *c.DisplayTimezone != "" && !units.IsTimezoneValid(*c.DisplayTimezone) {
		return fmt.Errorf("invalid display_timezone '%s'", *c.DisplayTimezone)
	}

	for _, layout := range c.TimestampLayouts {
		if layout == "" {
			return fmt.Errorf("timestamp_layouts must not contain empty layouts")
		}
	}

	return nil
}

// GetMaxStaleness returns max_staleness as a time.Duration.
func (c *Config) GetMaxStaleness() time.Duration {
	if c.MaxStaleness == nil || *c.MaxStaleness == "" {
		return meeting.DefaultMaxStaleness
	}
	d, err := time.ParseDuration(*c.MaxStaleness)
	if err != nil || d <= 0 {
		return meeting.DefaultMaxStaleness
	}
	return d
}

// GetMaxDistance returns max_distance_m or the default.
func (c *Config) GetMaxDistance() float64 {
	if c.MaxDistance == nil || *c.MaxDistance <= 0 {
		return meeting.DefaultMaxDistance
	}
	return *c.MaxDistance
}

// GetThresholds bundles the meeting thresholds.
func (c *Config) GetThresholds() meeting.Thresholds {
	return meeting.Thresholds{
		MaxStaleness: c.GetMaxStaleness(),
		MaxDistance:  c.GetMaxDistance(),
	}
}

// GetTimestampLayouts returns timestamp_layouts or sighting.DefaultLayouts.
func (c *Config) GetTimestampLayouts() []string {
	if len(c.TimestampLayouts) == 0 {
		return sighting.DefaultLayouts
	}
	return c.TimestampLayouts
}

// GetStrictCSV returns strict_csv or the default (false).
func (c *Config) GetStrictCSV() bool {
	if c.StrictCSV == nil {
		return false
	}
	return *c.StrictCSV
}

// GetSweepWorkers returns sweep_workers or the default.
func (c *Config) GetSweepWorkers() int {
	if c.SweepWorkers == nil || *c.SweepWorkers < 1 {
		return defaultSweepWorkers
	}
	return *c.SweepWorkers
}

// GetPlotDir returns plot_dir or the default.
func (c *Config) GetPlotDir() string {
	if c.PlotDir == nil || *c.PlotDir == "" {
		return defaultPlotDir
	}
	return *c.PlotDir
}

// GetDisplayUnits returns display_units or metres.
func (c *Config) GetDisplayUnits() string {
	if c.DisplayUnits == nil || !units.IsValid(*c.DisplayUnits) {
		return units.Metres
	}
	return *c.DisplayUnits
}

// GetDisplayTimezone returns display_timezone or "UTC".
func (c *Config) GetDisplayTimezone() string {
	if c.DisplayTimezone == nil || *c.DisplayTimezone == "" {
		return "UTC"
	}
	return *c.DisplayTimezone
}
