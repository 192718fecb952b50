// Package filter provides the Kalman filters the world model runs per
// tracked object: a constant-velocity filter for robots and a
// constant-acceleration filter for the ball.
//
// State is kept in metres, degrees and seconds; timestamps passed in are
// microseconds.
package filter

import (
	"time"

	"github.com/banshee-data/fieldstate/internal/config"
)

// RobotConfig tunes RobotKalman.
type RobotConfig struct {
	Timeout               time.Duration // validity window after the last observation
	ProcessNoisePos       float64       // m²/s
	ProcessNoiseVel       float64       // (m/s)²/s
	ProcessNoiseAngle     float64       // deg²/s
	MeasurementNoise      float64       // m²
	AngleMeasurementNoise float64       // deg²
	MaxPredictDt          float64       // seconds per predict step
}

// BallConfig tunes BallKalman.
type BallConfig struct {
	Timeout          time.Duration
	MinObservations  int
	MaxPosVariance   float64 // m², mean of x and y variance
	MaxResidual      float64 // m, mean recent innovation magnitude
	ProcessNoisePos  float64
	ProcessNoiseVel  float64
	MeasurementNoise float64 // m², vision
	SensorNoise      float64 // m², ball-sensor inferred
	MaxPredictDt     float64
}

// RobotConfigFromTuning builds a RobotConfig from a loaded TuningConfig.
func RobotConfigFromTuning(cfg *config.TuningConfig) RobotConfig {
	return RobotConfig{
		Timeout:               cfg.GetRobotTimeout(),
		ProcessNoisePos:       cfg.GetProcessNoisePos(),
		ProcessNoiseVel:       cfg.GetProcessNoiseVel(),
		ProcessNoiseAngle:     cfg.GetProcessNoiseAngle(),
		MeasurementNoise:      cfg.GetMeasurementNoise(),
		AngleMeasurementNoise: cfg.GetAngleMeasurementNoise(),
		MaxPredictDt:          cfg.GetMaxPredictDt(),
	}
}

// BallConfigFromTuning builds a BallConfig from a loaded TuningConfig.
func BallConfigFromTuning(cfg *config.TuningConfig) BallConfig {
	return BallConfig{
		Timeout:          cfg.GetBallTimeout(),
		MinObservations:  cfg.GetBallMinObservations(),
		MaxPosVariance:   cfg.GetBallMaxPosVariance(),
		MaxResidual:      cfg.GetBallMaxResidual(),
		ProcessNoisePos:  cfg.GetProcessNoisePos(),
		ProcessNoiseVel:  cfg.GetProcessNoiseVel(),
		MeasurementNoise: cfg.GetMeasurementNoise(),
		SensorNoise:      cfg.GetBallSensorNoise(),
		MaxPredictDt:     cfg.GetMaxPredictDt(),
	}
}

// DefaultRobotConfig loads the robot filter settings from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultRobotConfig() RobotConfig {
	return RobotConfigFromTuning(config.MustLoadDefaultConfig())
}

// DefaultBallConfig loads the ball filter settings from the canonical
// tuning defaults file. Panics if the file cannot be found.
func DefaultBallConfig() BallConfig {
	return BallConfigFromTuning(config.MustLoadDefaultConfig())
}
