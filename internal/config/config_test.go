package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/geomeasure/internal/geoid"
)

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := Empty()

	if got := cfg.GetAccelCutoffHz(); got != 0.1 {
		t.Errorf("GetAccelCutoffHz() = %v, want 0.1", got)
	}
	if got := cfg.GetSampleRateHz(); got != 60 {
		t.Errorf("GetSampleRateHz() = %v, want 60", got)
	}
	if got := cfg.GetSampleInterval(); got != time.Second/60 {
		t.Errorf("GetSampleInterval() = %v, want %v", got, time.Second/60)
	}
	if got := cfg.GetDegradationThreshold(); got != 5 {
		t.Errorf("GetDegradationThreshold() = %v, want 5", got)
	}
	if got := cfg.GetGNSSBaud(); got != 9600 {
		t.Errorf("GetGNSSBaud() = %d, want 9600", got)
	}
	if got := cfg.GetStatusInterval(); got != 30*time.Second {
		t.Errorf("GetStatusInterval() = %v, want 30s", got)
	}
	if got := cfg.GetGNSSPort(); got != "" {
		t.Errorf("GetGNSSPort() = %q, want empty", got)
	}
}

func TestDefaultsFileMatchesCode(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(Defaults(), fromFile); diff != "" {
		t.Errorf("%s out of sync with Defaults() (-code +file):\n%s", DefaultConfigPath, diff)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "field.json")
	testJSON := `{
  "accel_cutoff_hz": 0.5,
  "degradation_threshold_m": 3.5,
  "gnss_port": "/dev/ttyUSB0",
  "status_interval": "5s"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetAccelCutoffHz(); got != 0.5 {
		t.Errorf("GetAccelCutoffHz() = %v, want 0.5", got)
	}
	if got := cfg.GetGyroCutoffHz(); got != 0.1 {
		t.Errorf("GetGyroCutoffHz() = %v, want default 0.1", got)
	}
	if got := cfg.ModeConfig().DegradationThreshold; got != 3.5 {
		t.Errorf("ModeConfig().DegradationThreshold = %v, want 3.5", got)
	}
	if got := cfg.GetGNSSPort(); got != "/dev/ttyUSB0" {
		t.Errorf("GetGNSSPort() = %q, want /dev/ttyUSB0", got)
	}
	if got := cfg.GetStatusInterval(); got != 5*time.Second {
		t.Errorf("GetStatusInterval() = %v, want 5s", got)
	}

	ic := cfg.InertialConfig()
	if ic.AccelCutoffHz != 0.5 || ic.InitialAccuracy != 0.1 || ic.CalibratedAccuracy != 0.05 || ic.DriftGrowth != 0.01 {
		t.Errorf("InertialConfig() = %+v", ic)
	}
}

func TestLoadRejects(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"extension", "cfg.yaml", "{}", ".json extension"},
		{"syntax", "bad.json", "{", "failed to parse"},
		{"negative cutoff", "cutoff.json", `{"accel_cutoff_hz": -1}`, "accel_cutoff_hz must be positive"},
		{"zero rate", "rate.json", `{"sample_rate_hz": 0}`, "sample_rate_hz must be positive"},
		{"negative drift", "drift.json", `{"drift_growth_m_per_s": -0.1}`, "drift_growth_m_per_s must be non-negative"},
		{"baud", "baud.json", `{"imu_baud": 0}`, "imu_baud must be positive"},
		{"interval", "interval.json", `{"status_interval": "soon"}`, "invalid status_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGeoidMetadata(t *testing.T) {
	cfg := Empty()
	md, err := cfg.GeoidMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(geoid.EHT2014Metadata(), md); diff != "" {
		t.Errorf("default metadata mismatch (-want +got):\n%s", diff)
	}

	tmpDir := t.TempDir()
	metaPath := filepath.Join(tmpDir, "grid.json")
	if err := os.WriteFile(metaPath, []byte(`{"width":3,"height":2,"min_lat":0,"max_lat":1,"min_lon":0,"max_lon":2}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.GeoidMetaPath = &metaPath
	md, err = cfg.GeoidMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if md.Width != 3 || md.Height != 2 || md.MaxLon != 2 {
		t.Errorf("GeoidMetadata() = %+v", md)
	}
}
