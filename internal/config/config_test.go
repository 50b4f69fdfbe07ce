package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/copresence/internal/meeting"
	"github.com/banshee-data/copresence/internal/sighting"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxStaleness == nil || *cfg.MaxStaleness != "2m0s" {
		t.Errorf("Expected MaxStaleness '2m0s', got %v", cfg.MaxStaleness)
	}
	if cfg.GetMaxStaleness() != 120*time.Second {
		t.Errorf("GetMaxStaleness() = %v, want 120s", cfg.GetMaxStaleness())
	}
	if cfg.GetMaxDistance() != 2.0 {
		t.Errorf("GetMaxDistance() = %f, want 2.0", cfg.GetMaxDistance())
	}
	if cfg.GetSweepWorkers() != 4 {
		t.Errorf("GetSweepWorkers() = %d, want 4", cfg.GetSweepWorkers())
	}
	if cfg.GetPlotDir() != "plots" {
		t.Errorf("GetPlotDir() = %q, want plots", cfg.GetPlotDir())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestEmptyConfig_Getters(t *testing.T) {
	cfg := EmptyConfig()

	if got := cfg.GetThresholds(); got != meeting.DefaultThresholds() {
		t.Errorf("GetThresholds() = %+v, want defaults", got)
	}
	if got := cfg.GetTimestampLayouts(); !reflect.DeepEqual(got, sighting.DefaultLayouts) {
		t.Errorf("GetTimestampLayouts() = %v, want defaults", got)
	}
	if cfg.GetStrictCSV() {
		t.Error("GetStrictCSV() = true, want false")
	}
	if cfg.GetSweepWorkers() != defaultSweepWorkers {
		t.Errorf("GetSweepWorkers() = %d", cfg.GetSweepWorkers())
	}
	if cfg.GetDisplayUnits() != "m" || cfg.GetDisplayTimezone() != "UTC" {
		t.Errorf("display = %q %q, want m UTC", cfg.GetDisplayUnits(), cfg.GetDisplayTimezone())
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "test_config.json", `{
  "max_staleness": "90s",
  "max_distance_m": 1.5,
  "strict_csv": true,
  "sweep_workers": 8,
  "timestamp_layouts": ["2006-01-02T15:04:05Z07:00"]
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	th := cfg.GetThresholds()
	if th.MaxStaleness != 90*time.Second {
		t.Errorf("MaxStaleness = %v, want 90s", th.MaxStaleness)
	}
	if th.MaxDistance != 1.5 {
		t.Errorf("MaxDistance = %f, want 1.5", th.MaxDistance)
	}
	if !cfg.GetStrictCSV() {
		t.Error("GetStrictCSV() = false, want true")
	}
	if cfg.GetSweepWorkers() != 8 {
		t.Errorf("GetSweepWorkers() = %d, want 8", cfg.GetSweepWorkers())
	}
	if len(cfg.GetTimestampLayouts()) != 1 {
		t.Errorf("GetTimestampLayouts() = %v", cfg.GetTimestampLayouts())
	}
	if cfg.GetPlotDir() != "plots" {
		t.Errorf("omitted plot_dir should default, got %q", cfg.GetPlotDir())
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "cfg.json", `{`, "failed to parse"},
		{"bad duration", "cfg.json", `{"max_staleness": "soon"}`, "invalid max_staleness"},
		{"negative duration", "cfg.json", `{"max_staleness": "-5s"}`, "must be positive"},
		{"zero distance", "cfg.json", `{"max_distance_m": 0}`, "max_distance_m"},
		{"zero workers", "cfg.json", `{"sweep_workers": 0}`, "sweep_workers"},
		{"empty layout", "cfg.json", `{"timestamp_layouts": [""]}`, "timestamp_layouts"},
		{"bad units", "cfg.json", `{"display_units": "mph"}`, "display_units"},
		{"bad timezone", "cfg.json", `{"display_timezone": "Mars/Olympus"}`, "display_timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"plot_dir": "` + strings.Repeat("a", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", body)); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if got, want := cfg.GetThresholds(), meeting.DefaultThresholds(); got != want {
		t.Errorf("defaults file thresholds = %+v, want %+v", got, want)
	}
	if !reflect.DeepEqual(cfg.GetTimestampLayouts(), sighting.DefaultLayouts) {
		t.Errorf("defaults file layouts = %v, want %v", cfg.GetTimestampLayouts(), sighting.DefaultLayouts)
	}
}
