// Package config loads the geomeasure runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/geomeasure/internal/geoid"
	"github.com/banshee-data/geomeasure/internal/inertial"
	"github.com/banshee-data/geomeasure/internal/mode"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/geomeasure.defaults.json"

// Config is the root configuration. Every field is optional: the Get*
// methods supply defaults for anything the file leaves out, so partial
// configs are safe.
type Config struct {
	// Inertial tracker
	AccelCutoffHz      *float64 `json:"accel_cutoff_hz,omitempty"`
	GyroCutoffHz       *float64 `json:"gyro_cutoff_hz,omitempty"`
	SampleRateHz       *float64 `json:"sample_rate_hz,omitempty"`
	InitialAccuracy    *float64 `json:"initial_accuracy_m,omitempty"`
	CalibratedAccuracy *float64 `json:"calibrated_accuracy_m,omitempty"`
	DriftGrowth        *float64 `json:"drift_growth_m_per_s,omitempty"`

	// Mode controller
	DegradationThreshold *float64 `json:"degradation_threshold_m,omitempty"`

	// Geoid grid
	GeoidGridPath *string `json:"geoid_grid_path,omitempty"`
	GeoidMetaPath *string `json:"geoid_meta_path,omitempty"`

	// Serial sources
	GNSSPort *string `json:"gnss_port,omitempty"`
	GNSSBaud *int    `json:"gnss_baud,omitempty"`
	IMUPort  *string `json:"imu_port,omitempty"`
	IMUBaud  *int    `json:"imu_baud,omitempty"`

	// Server
	Listen         *string `json:"listen,omitempty"`
	DBPath         *string `json:"db_path,omitempty"`
	StatusInterval *string `json:"status_interval,omitempty"` // duration string like "30s"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Defaults returns a Config with every field set to its default.
func Defaults() *Config {
	c := Empty()
	return &Config{
		AccelCutoffHz:        ptrFloat64(c.GetAccelCutoffHz()),
		GyroCutoffHz:         ptrFloat64(c.GetGyroCutoffHz()),
		SampleRateHz:         ptrFloat64(c.GetSampleRateHz()),
		InitialAccuracy:      ptrFloat64(c.GetInitialAccuracy()),
		CalibratedAccuracy:   ptrFloat64(c.GetCalibratedAccuracy()),
		DriftGrowth:          ptrFloat64(c.GetDriftGrowth()),
		DegradationThreshold: ptrFloat64(c.GetDegradationThreshold()),
		GeoidGridPath:        ptrString(c.GetGeoidGridPath()),
		GeoidMetaPath:        ptrString(c.GetGeoidMetaPath()),
		GNSSPort:             ptrString(c.GetGNSSPort()),
		GNSSBaud:             ptrInt(c.GetGNSSBaud()),
		IMUPort:              ptrString(c.GetIMUPort()),
		IMUBaud:              ptrInt(c.GetIMUBaud()),
		Listen:               ptrString(c.GetListen()),
		DBPath:               ptrString(c.GetDBPath()),
		StatusInterval:       ptrString(c.GetStatusInterval().String()),
	}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories so tests can call it from any package. Panics if the file
// cannot be loaded.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/geoid-plot/
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"accel_cutoff_hz", c.AccelCutoffHz},
		{"gyro_cutoff_hz", c.GyroCutoffHz},
		{"sample_rate_hz", c.SampleRateHz},
		{"degradation_threshold_m", c.DegradationThreshold},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"initial_accuracy_m", c.InitialAccuracy},
		{"calibrated_accuracy_m", c.CalibratedAccuracy},
		{"drift_growth_m_per_s", c.DriftGrowth},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", p.name, *p.v)
		}
	}

	for name, baud := range map[string]*int{"gnss_baud": c.GNSSBaud, "imu_baud": c.IMUBaud} {
		if baud != nil && *baud <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *baud)
		}
	}

	if c.StatusInterval != nil && *c.StatusInterval != "" {
		if _, err := time.ParseDuration(*c.StatusInterval); err != nil {
			return fmt.Errorf("invalid status_interval '%s': %w", *c.StatusInterval, err)
		}
	}
	return nil
}

// GetAccelCutoffHz returns the accelerometer low-pass cutoff.
func (c *Config) GetAccelCutoffHz() float64 {
	if c.AccelCutoffHz == nil {
		return 0.1
	}
	return *c.AccelCutoffHz
}

// GetGyroCutoffHz returns the gyroscope low-pass cutoff.
func (c *Config) GetGyroCutoffHz() float64 {
	if c.GyroCutoffHz == nil {
		return 0.1
	}
	return *c.GyroCutoffHz
}

// GetSampleRateHz returns the nominal IMU sample rate.
func (c *Config) GetSampleRateHz() float64 {
	if c.SampleRateHz == nil {
		return 60
	}
	return *c.SampleRateHz
}

// GetSampleInterval returns the IMU period derived from the sample rate.
func (c *Config) GetSampleInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.GetSampleRateHz())
}

func (c *Config) GetInitialAccuracy() float64 {
	if c.InitialAccuracy == nil {
		return 0.1
	}
	return *c.InitialAccuracy
}

func (c *Config) GetCalibratedAccuracy() float64 {
	if c.CalibratedAccuracy == nil {
		return 0.05
	}
	return *c.CalibratedAccuracy
}

func (c *Config) GetDriftGrowth() float64 {
	if c.DriftGrowth == nil {
		return 0.01
	}
	return *c.DriftGrowth
}

// GetDegradationThreshold returns the accuracy above which inertial mode is
// advised.
func (c *Config) GetDegradationThreshold() float64 {
	if c.DegradationThreshold == nil {
		return mode.DefaultDegradationThreshold
	}
	return *c.DegradationThreshold
}

func (c *Config) GetGeoidGridPath() string {
	if c.GeoidGridPath == nil {
		return "data/eht2014.f32"
	}
	return *c.GeoidGridPath
}

// GetGeoidMetaPath returns the grid metadata sidecar path. An empty path
// means the EHT2014 layout.
func (c *Config) GetGeoidMetaPath() string {
	if c.GeoidMetaPath == nil {
		return ""
	}
	return *c.GeoidMetaPath
}

// GetGNSSPort returns the receiver serial port; "" disables it.
func (c *Config) GetGNSSPort() string {
	if c.GNSSPort == nil {
		return ""
	}
	return *c.GNSSPort
}

func (c *Config) GetGNSSBaud() int {
	if c.GNSSBaud == nil {
		return 9600
	}
	return *c.GNSSBaud
}

// GetIMUPort returns the IMU serial port; "" disables it.
func (c *Config) GetIMUPort() string {
	if c.IMUPort == nil {
		return ""
	}
	return *c.IMUPort
}

func (c *Config) GetIMUBaud() int {
	if c.IMUBaud == nil {
		return 115200
	}
	return *c.IMUBaud
}

func (c *Config) GetListen() string {
	if c.Listen == nil {
		return ":8090"
	}
	return *c.Listen
}

func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "geomeasure.db"
	}
	return *c.DBPath
}

// GetStatusInterval parses the periodic status log interval.
func (c *Config) GetStatusInterval() time.Duration {
	if c.StatusInterval == nil || *c.StatusInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.StatusInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// InertialConfig returns the tracker configuration.
func (c *Config) InertialConfig() inertial.Config {
	return inertial.Config{
		AccelCutoffHz:      c.GetAccelCutoffHz(),
		GyroCutoffHz:       c.GetGyroCutoffHz(),
		InitialAccuracy:    c.GetInitialAccuracy(),
		CalibratedAccuracy: c.GetCalibratedAccuracy(),
		DriftGrowth:        c.GetDriftGrowth(),
	}
}

// ModeConfig returns the controller configuration.
func (c *Config) ModeConfig() mode.Config {
	return mode.Config{DegradationThreshold: c.GetDegradationThreshold()}
}

// GeoidMetadata returns the grid layout, reading the sidecar when one is
// configured.
func (c *Config) GeoidMetadata() (geoid.Metadata, error) {
	if path := c.GetGeoidMetaPath(); path != "" {
		return geoid.ReadMetadata(path)
	}
	return geoid.EHT2014Metadata(), nil
}
