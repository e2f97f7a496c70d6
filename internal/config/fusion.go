package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical fusion defaults file.
const DefaultConfigPath = "config/fusion.defaults.json"

// FusionConfig is the root configuration for the estimator and the
// driving loop around it. Every field is optional; the Get* methods
// supply built-in defaults for anything the JSON leaves out.
type FusionConfig struct {
	// Estimator params
	InitialCovariance    *float64  `json:"initial_covariance,omitempty"`
	ProcessNoisePos      *float64  `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel      *float64  `json:"process_noise_vel,omitempty"`
	GPSNoise             []float64 `json:"gps_noise,omitempty"` // diagonal of R_gps, 3 values
	BaroNoise            *float64  `json:"baro_noise,omitempty"`
	SymmetrizeCovariance *bool     `json:"symmetrize_covariance,omitempty"`

	// Driving loop params
	DefaultDt   *float64 `json:"default_dt,omitempty"`   // seconds
	RunDuration *string  `json:"run_duration,omitempty"` // duration string like "10s"

	// History limits
	MaxHistoryLength   *int `json:"max_history_length,omitempty"`
	DebugHistoryLength *int `json:"debug_history_length,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFusionConfig returns a FusionConfig with every field unset, so
// all getters report their built-in defaults.
func EmptyFusionConfig() *FusionConfig {
	return &FusionConfig{}
}

// DefaultFusionConfig returns a FusionConfig with every field populated
// from the built-in defaults. Useful for writing out a defaults file.
func DefaultFusionConfig() *FusionConfig {
	empty := EmptyFusionConfig()
	gps := empty.GetGPSNoise()
	return &FusionConfig{
		InitialCovariance:    ptrFloat64(empty.GetInitialCovariance()),
		ProcessNoisePos:      ptrFloat64(empty.GetProcessNoisePos()),
		ProcessNoiseVel:      ptrFloat64(empty.GetProcessNoiseVel()),
		GPSNoise:             gps[:],
		BaroNoise:            ptrFloat64(empty.GetBaroNoise()),
		SymmetrizeCovariance: ptrBool(empty.GetSymmetrizeCovariance()),
		DefaultDt:            ptrFloat64(empty.GetDefaultDt()),
		RunDuration:          ptrString(empty.GetRunDuration().String()),
		MaxHistoryLength:     ptrInt(empty.GetMaxHistoryLength()),
		DebugHistoryLength:   ptrInt(empty.GetDebugHistoryLength()),
	}
}

// LoadFusionConfig loads a FusionConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadFusionConfig(path string) (*FusionConfig, error) {
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

	cfg := EmptyFusionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded;
// intended for test setup.
func MustLoadDefaultConfig() *FusionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFusionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func nonNegative(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return fmt.Errorf("%s must be a finite non-negative number, got %v", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are usable.
func (c *FusionConfig) Validate() error {
	if err := nonNegative("initial_covariance", c.InitialCovariance); err != nil {
		return err
	}
	if err := nonNegative("process_noise_pos", c.ProcessNoisePos); err != nil {
		return err
	}
	if err := nonNegative("process_noise_vel", c.ProcessNoiseVel); err != nil {
		return err
	}
	if err := nonNegative("baro_noise", c.BaroNoise); err != nil {
		return err
	}

	if c.GPSNoise != nil {
		if len(c.GPSNoise) != 3 {
			return fmt.Errorf("gps_noise must have exactly 3 values, got %d", len(c.GPSNoise))
		}
		for i := range c.GPSNoise {
			if err := nonNegative(fmt.Sprintf("gps_noise[%d]", i), &c.GPSNoise[i]); err != nil {
				return err
			}
		}
	}

	if c.DefaultDt != nil {
		if math.IsNaN(*c.DefaultDt) || math.IsInf(*c.DefaultDt, 0) || *c.DefaultDt <= 0 {
			return fmt.Errorf("default_dt must be positive, got %v", *c.DefaultDt)
		}
	}

	if c.RunDuration != nil && *c.RunDuration != "" {
		d, err := time.ParseDuration(*c.RunDuration)
		if err != nil {
			return fmt.Errorf("invalid run_duration '%s': %w", *c.RunDuration, err)
		}
		if d <= 0 {
			return fmt.Errorf("run_duration must be positive, got %s", d)
		}
	}

	if c.MaxHistoryLength != nil && *c.MaxHistoryLength < 0 {
		return fmt.Errorf("max_history_length must be non-negative, got %d", *c.MaxHistoryLength)
	}
	if c.DebugHistoryLength != nil && *c.DebugHistoryLength < 0 {
		return fmt.Errorf("debug_history_length must be non-negative, got %d", *c.DebugHistoryLength)
	}

	return nil
}

// GetInitialCovariance returns the initial_covariance value or the default.
func (c *FusionConfig) GetInitialCovariance() float64 {
	if c.InitialCovariance == nil {
		return 0.1
	}
	return *c.InitialCovariance
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *FusionConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0.01
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *FusionConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 0.01
	}
	return *c.ProcessNoiseVel
}

// GetGPSNoise returns the R_gps diagonal or the default of 1 m² per axis.
func (c *FusionConfig) GetGPSNoise() [3]float64 {
	if len(c.GPSNoise) != 3 {
		return [3]float64{1, 1, 1}
	}
	return [3]float64{c.GPSNoise[0], c.GPSNoise[1], c.GPSNoise[2]}
}

// GetBaroNoise returns the baro_noise value or the default.
func (c *FusionConfig) GetBaroNoise() float64 {
	if c.BaroNoise == nil {
		return 0.5
	}
	return *c.BaroNoise
}

// GetSymmetrizeCovariance returns the symmetrize_covariance value or the default.
func (c *FusionConfig) GetSymmetrizeCovariance() bool {
	if c.SymmetrizeCovariance == nil {
		return false
	}
	return *c.SymmetrizeCovariance
}

// GetDefaultDt returns the default_dt value or the default.
func (c *FusionConfig) GetDefaultDt() float64 {
	if c.DefaultDt == nil {
		return 0.1
	}
	return *c.DefaultDt
}

// GetRunDuration parses and returns RunDuration as a time.Duration.
func (c *FusionConfig) GetRunDuration() time.Duration {
	if c.RunDuration == nil || *c.RunDuration == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(*c.RunDuration)
	if err != nil || d <= 0 {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetMaxHistoryLength returns the max_history_length value or the default.
func (c *FusionConfig) GetMaxHistoryLength() int {
	if c.MaxHistoryLength == nil {
		return 10000
	}
	return *c.MaxHistoryLength
}

// GetDebugHistoryLength returns the debug_history_length value or the default.
func (c *FusionConfig) GetDebugHistoryLength() int {
	if c.DebugHistoryLength == nil {
		return 64
	}
	return *c.DebugHistoryLength
}

// StepsPerRun returns how many steps of GetDefaultDt fit in GetRunDuration,
// rounded to the nearest whole step.
func (c *FusionConfig) StepsPerRun() int {
	return int(math.Round(c.GetRunDuration().Seconds() / c.GetDefaultDt()))
}
