package worldmodel

import (
	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/banshee-data/fieldstate/internal/vision"
)

// fakeRobot is a pass-through robot filter: the estimate is the last
// observation and the track stays valid for timeout microseconds after it.
type fakeRobot struct {
	id      int
	timeout int64

	observations []int64
	updates      []int64
	lastObs      int64
	pos          units.Point
	vel          units.Point
	angle        float64
	hasBall      bool

	// forceInvalid overrides the timeout check.
	forceInvalid bool
}

func (f *fakeRobot) ID() int { return f.id }

func (f *fakeRobot) Observe(t int64, pos units.Point, angleDeg float64) {
	f.observations = append(f.observations, t)
	if t > f.lastObs {
		f.lastObs = t
	}
	f.pos = pos
	f.angle = angleDeg
}

func (f *fakeRobot) Update(t int64) { f.updates = append(f.updates, t) }

func (f *fakeRobot) Valid(t int64) bool {
	if f.forceInvalid {
		return false
	}
	return t-f.lastObs <= f.timeout
}

func (f *fakeRobot) SetHasBall(hasBall bool) { f.hasBall = hasBall }
func (f *fakeRobot) HasBall() bool           { return f.hasBall }
func (f *fakeRobot) Pos() units.Point        { return f.pos }
func (f *fakeRobot) Vel() units.Point        { return f.vel }
func (f *fakeRobot) Angle() float64          { return f.angle }
func (f *fakeRobot) AngleVel() float64       { return 0 }

// robotFactory creates fakeRobots and remembers every instance by creation
// order.
type robotFactory struct {
	timeout int64
	created []*fakeRobot
}

func (rf *robotFactory) New(id int) RobotFilter {
	r := &fakeRobot{id: id, timeout: rf.timeout}
	rf.created = append(rf.created, r)
	return r
}

type ballObservation struct {
	t   int64
	pos units.Point
	src Source
}

// fakeBall answers Valid from a script, one entry per call; past the end
// of the script the last entry repeats. calls logs "valid" and "update" in
// order.
type fakeBall struct {
	validScript []bool
	validCalls  int

	observations []ballObservation
	calls        []string
	observed     units.Point

	pos, vel, accel units.Point
}

func (f *fakeBall) Observe(t int64, pos units.Point, src Source) {
	f.observations = append(f.observations, ballObservation{t: t, pos: pos, src: src})
	f.observed = pos
}

func (f *fakeBall) Update(t int64) { f.calls = append(f.calls, "update") }

func (f *fakeBall) Valid(t int64) bool {
	f.calls = append(f.calls, "valid")
	if len(f.validScript) == 0 {
		return false
	}
	i := f.validCalls
	if i >= len(f.validScript) {
		i = len(f.validScript) - 1
	}
	f.validCalls++
	return f.validScript[i]
}

func (f *fakeBall) Pos() units.Point         { return f.pos }
func (f *fakeBall) Vel() units.Point         { return f.vel }
func (f *fakeBall) Accel() units.Point       { return f.accel }
func (f *fakeBall) ObservedPos() units.Point { return f.observed }

// frame builds a vision frame at captureSec with our robots in the blue
// group. Positions are millimetres.
func frame(captureSec float64, blue []vision.RobotDetection, yellow []vision.RobotDetection, balls ...vision.BallDetection) vision.Frame {
	return vision.Frame{
		CaptureTime: captureSec,
		Blue:        blue,
		Yellow:      yellow,
		Balls:       balls,
	}
}

func robotMM(id int, xmm, ymm, orientRad float64) vision.RobotDetection {
	return vision.RobotDetection{ID: id, X: xmm, Y: ymm, Orientation: orientRad}
}

func ballMM(xmm, ymm float64) vision.BallDetection {
	return vision.BallDetection{X: xmm, Y: ymm}
}
