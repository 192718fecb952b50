package worldmodel

import "github.com/banshee-data/fieldstate/internal/units"

// Source tags where a ball observation came from.
type Source int

const (
	SourceVision     Source = iota // overhead camera detection
	SourceBallSensor               // inferred from a robot's ball sensor
)

func (s Source) String() string {
	switch s {
	case SourceVision:
		return "vision"
	case SourceBallSensor:
		return "ball_sensor"
	default:
		return "unknown"
	}
}

// BallFilter estimates the ball's state from observations.
//
// Timestamps are microseconds, positions metres. Valid reports whether the
// current estimate should be trusted at t; the world model asks before
// calling Update for the same t.
type BallFilter interface {
	Observe(t int64, pos units.Point, src Source)
	Update(t int64)
	Valid(t int64) bool

	Pos() units.Point
	Vel() units.Point
	Accel() units.Point

	// ObservedPos is the most recent raw observation.
	ObservedPos() units.Point
}

// RobotFilter estimates one robot's state. Angles are degrees.
type RobotFilter interface {
	ID() int
	Observe(t int64, pos units.Point, angleDeg float64)
	Update(t int64)
	Valid(t int64) bool

	SetHasBall(hasBall bool)
	HasBall() bool

	Pos() units.Point
	Vel() units.Point
	Angle() float64
	AngleVel() float64
}

// RobotFilterFactory creates the filter for a newly seen robot id.
type RobotFilterFactory func(id int) RobotFilter
