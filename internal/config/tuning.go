package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the world model
// service. Every field is optional; Get* accessors supply the default for
// anything the file leaves out.
type TuningConfig struct {
	// Roster / track table
	RobotsPerTeam         *int  `json:"robots_per_team,omitempty"`
	RosterSize            *int  `json:"roster_size,omitempty"`
	BlueTeam              *bool `json:"blue_team,omitempty"`
	PublishCoastingTracks *bool `json:"publish_coasting_tracks,omitempty"`

	// Ball sensor extension (off unless explicitly enabled)
	BallSensorFusion *bool    `json:"ball_sensor_fusion,omitempty"`
	RobotRadiusM     *float64 `json:"robot_radius_m,omitempty"`

	// Filter validity
	RobotTimeout        *string  `json:"robot_timeout,omitempty"` // duration string like "250ms"
	BallTimeout         *string  `json:"ball_timeout,omitempty"`
	BallMinObservations *int     `json:"ball_min_observations,omitempty"`
	BallMaxPosVariance  *float64 `json:"ball_max_pos_variance,omitempty"`
	BallMaxResidual     *float64 `json:"ball_max_residual,omitempty"`

	// Filter noise
	ProcessNoisePos       *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel       *float64 `json:"process_noise_vel,omitempty"`
	ProcessNoiseAngle     *float64 `json:"process_noise_angle,omitempty"`
	MeasurementNoise      *float64 `json:"measurement_noise,omitempty"`
	AngleMeasurementNoise *float64 `json:"angle_measurement_noise,omitempty"`
	BallSensorNoise       *float64 `json:"ball_sensor_noise,omitempty"`
	MaxPredictDt          *float64 `json:"max_predict_dt,omitempty"`

	// Service loop and transports
	CycleInterval *string `json:"cycle_interval,omitempty"`
	VisionAddress *string `json:"vision_address,omitempty"`
	RadioPort     *string `json:"radio_port,omitempty"`
	RadioBaudRate *int    `json:"radio_baud_rate,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/<tool>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.RobotsPerTeam != nil && *c.RobotsPerTeam < 1 {
		return fmt.Errorf("robots_per_team must be at least 1, got %d", *c.RobotsPerTeam)
	}
	if c.RosterSize != nil && *c.RosterSize < 1 {
		return fmt.Errorf("roster_size must be at least 1, got %d", *c.RosterSize)
	}
	if c.BallMinObservations != nil && *c.BallMinObservations < 1 {
		return fmt.Errorf("ball_min_observations must be at least 1, got %d", *c.BallMinObservations)
	}
	if c.RobotRadiusM != nil && *c.RobotRadiusM < 0 {
		return fmt.Errorf("robot_radius_m must be non-negative, got %f", *c.RobotRadiusM)
	}
	if c.MaxPredictDt != nil && *c.MaxPredictDt <= 0 {
		return fmt.Errorf("max_predict_dt must be positive, got %f", *c.MaxPredictDt)
	}

	for name, v := range map[string]*float64{
		"ball_max_pos_variance":   c.BallMaxPosVariance,
		"ball_max_residual":       c.BallMaxResidual,
		"process_noise_pos":       c.ProcessNoisePos,
		"process_noise_vel":       c.ProcessNoiseVel,
		"process_noise_angle":     c.ProcessNoiseAngle,
		"measurement_noise":       c.MeasurementNoise,
		"angle_measurement_noise": c.AngleMeasurementNoise,
		"ball_sensor_noise":       c.BallSensorNoise,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	for name, v := range map[string]*string{
		"robot_timeout":  c.RobotTimeout,
		"ball_timeout":   c.BallTimeout,
		"cycle_interval": c.CycleInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.RadioBaudRate != nil && *c.RadioBaudRate < 0 {
		return fmt.Errorf("radio_baud_rate must be non-negative, got %d", *c.RadioBaudRate)
	}

	return nil
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetRobotsPerTeam returns the track slot capacity per team.
func (c *TuningConfig) GetRobotsPerTeam() int {
	if c.RobotsPerTeam == nil {
		return 6
	}
	return *c.RobotsPerTeam
}

// GetRosterSize returns the number of published roster entries per team
// (robot identifiers 0..n-1).
func (c *TuningConfig) GetRosterSize() int {
	if c.RosterSize == nil {
		return 16
	}
	return *c.RosterSize
}

// GetBlueTeam returns whether our robots carry the blue team marker.
func (c *TuningConfig) GetBlueTeam() bool {
	if c.BlueTeam == nil {
		return true
	}
	return *c.BlueTeam
}

// GetPublishCoastingTracks returns whether live tracks without a detection
// this cycle are still published as visible.
func (c *TuningConfig) GetPublishCoastingTracks() bool {
	if c.PublishCoastingTracks == nil {
		return false
	}
	return *c.PublishCoastingTracks
}

// GetBallSensorFusion returns whether robot ball-sensor reports produce
// ball observations.
func (c *TuningConfig) GetBallSensorFusion() bool {
	if c.BallSensorFusion == nil {
		return false // default: extension disabled
	}
	return *c.BallSensorFusion
}

// GetRobotRadiusM returns the robot radius used to place sensor-inferred balls.
func (c *TuningConfig) GetRobotRadiusM() float64 {
	if c.RobotRadiusM == nil {
		return 0.09
	}
	return *c.RobotRadiusM
}

// GetRobotTimeout returns how long a robot track stays valid without a detection.
func (c *TuningConfig) GetRobotTimeout() time.Duration {
	return parseDurationOr(c.RobotTimeout, 250*time.Millisecond)
}

// GetBallTimeout returns how long the ball filter stays valid without an observation.
func (c *TuningConfig) GetBallTimeout() time.Duration {
	return parseDurationOr(c.BallTimeout, 250*time.Millisecond)
}

// GetBallMinObservations returns the observations required before the ball
// filter output is trusted.
func (c *TuningConfig) GetBallMinObservations() int {
	if c.BallMinObservations == nil {
		return 3
	}
	return *c.BallMinObservations
}

// GetBallMaxPosVariance returns the largest mean position variance (m²) at
// which the ball filter is still trusted.
func (c *TuningConfig) GetBallMaxPosVariance() float64 {
	if c.BallMaxPosVariance == nil {
		return 0.05
	}
	return *c.BallMaxPosVariance
}

// GetBallMaxResidual returns the largest mean recent innovation (m) at which
// the ball filter is still trusted.
func (c *TuningConfig) GetBallMaxResidual() float64 {
	if c.BallMaxResidual == nil {
		return 0.3
	}
	return *c.BallMaxResidual
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TuningConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 0.01
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TuningConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 2.0
	}
	return *c.ProcessNoiseVel
}

// GetProcessNoiseAngle returns the process_noise_angle value (deg²/s) or the default.
func (c *TuningConfig) GetProcessNoiseAngle() float64 {
	if c.ProcessNoiseAngle == nil {
		return 50.0
	}
	return *c.ProcessNoiseAngle
}

// GetMeasurementNoise returns the vision position noise (m²) or the default.
func (c *TuningConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 0.0004
	}
	return *c.MeasurementNoise
}

// GetAngleMeasurementNoise returns the vision orientation noise (deg²) or the default.
func (c *TuningConfig) GetAngleMeasurementNoise() float64 {
	if c.AngleMeasurementNoise == nil {
		return 4.0
	}
	return *c.AngleMeasurementNoise
}

// GetBallSensorNoise returns the position noise (m²) of sensor-inferred balls.
func (c *TuningConfig) GetBallSensorNoise() float64 {
	if c.BallSensorNoise == nil {
		return 0.01
	}
	return *c.BallSensorNoise
}

// GetMaxPredictDt returns the largest single prediction step in seconds.
func (c *TuningConfig) GetMaxPredictDt() float64 {
	if c.MaxPredictDt == nil {
		return 0.1
	}
	return *c.MaxPredictDt
}

// GetCycleInterval returns the control cycle period.
func (c *TuningConfig) GetCycleInterval() time.Duration {
	return parseDurationOr(c.CycleInterval, 16*time.Millisecond)
}

// GetVisionAddress returns the UDP address vision packets arrive on.
func (c *TuningConfig) GetVisionAddress() string {
	if c.VisionAddress == nil || *c.VisionAddress == "" {
		return "224.5.23.2:10006"
	}
	return *c.VisionAddress
}

// GetRadioPort returns the radio base station serial device; empty disables
// telemetry.
func (c *TuningConfig) GetRadioPort() string {
	if c.RadioPort == nil {
		return ""
	}
	return *c.RadioPort
}

// GetRadioBaudRate returns the radio_baud_rate value or the default.
func (c *TuningConfig) GetRadioBaudRate() int {
	if c.RadioBaudRate == nil || *c.RadioBaudRate == 0 {
		return 115200
	}
	return *c.RadioBaudRate
}
