package filter

import (
	"sort"

	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
	"gonum.org/v1/gonum/mat"
)

// Robot state vector layout: [x y θ vx vy ω].
const (
	rX = iota
	rY
	rTheta
	rVX
	rVY
	rOmega
	robotDim
)

// Initial uncertainty for a freshly seeded robot track.
const (
	robotInitVelVariance   = 4.0    // (m/s)²
	robotInitOmegaVariance = 3600.0 // (deg/s)²
)

var robotH = selector(robotDim, rX, rY, rTheta)

type robotObservation struct {
	t     int64
	pos   units.Point
	angle float64
}

// RobotKalman is a constant-velocity Kalman filter over planar position and
// heading. Observations are buffered and folded in time order on Update.
type RobotKalman struct {
	id  int
	cfg RobotConfig

	kf      *kalman
	time    int64 // filter time, microseconds
	lastObs int64
	seeded  bool
	pending []robotObservation
	hasBall bool
	r       *mat.DiagDense
}

var _ worldmodel.RobotFilter = (*RobotKalman)(nil)

// NewRobotKalman returns an unseeded filter for robot id.
func NewRobotKalman(id int, cfg RobotConfig) *RobotKalman {
	return &RobotKalman{
		id:  id,
		cfg: cfg,
		r:   mat.NewDiagDense(3, []float64{cfg.MeasurementNoise, cfg.MeasurementNoise, cfg.AngleMeasurementNoise}),
	}
}

// RobotFactory returns a worldmodel.RobotFilterFactory creating RobotKalman
// filters with cfg.
func RobotFactory(cfg RobotConfig) worldmodel.RobotFilterFactory {
	return func(id int) worldmodel.RobotFilter {
		return NewRobotKalman(id, cfg)
	}
}

func (f *RobotKalman) ID() int { return f.id }

// Observe buffers a measurement. The first observation seeds the state so
// accessors are meaningful before the first Update.
func (f *RobotKalman) Observe(t int64, pos units.Point, angleDeg float64) {
	if !f.seeded {
		f.kf = newKalman(
			[]float64{pos.X, pos.Y, units.NormalizeDegrees(angleDeg), 0, 0, 0},
			[]float64{f.cfg.MeasurementNoise, f.cfg.MeasurementNoise, f.cfg.AngleMeasurementNoise,
				robotInitVelVariance, robotInitVelVariance, robotInitOmegaVariance},
		)
		f.time = t
		f.lastObs = t
		f.seeded = true
		return
	}
	f.pending = append(f.pending, robotObservation{t: t, pos: pos, angle: angleDeg})
	if t > f.lastObs {
		f.lastObs = t
	}
}

// Update folds buffered observations in time order and predicts to t.
// Observations older than the filter time are applied without rewinding.
func (f *RobotKalman) Update(t int64) {
	if !f.seeded {
		return
	}
	sort.SliceStable(f.pending, func(i, j int) bool { return f.pending[i].t < f.pending[j].t })
	for _, o := range f.pending {
		f.predictTo(o.t)
		z := mat.NewVecDense(3, []float64{o.pos.X, o.pos.Y, o.angle})
		if _, err := f.kf.correct(robotH, z, f.r, wrapRobotAngle); err != nil {
			diagf("robot %d: dropped observation at %d: %v", f.id, o.t, err)
		}
	}
	f.pending = f.pending[:0]
	f.predictTo(t)
	f.kf.x.SetVec(rTheta, units.NormalizeDegrees(f.kf.x.AtVec(rTheta)))
}

func (f *RobotKalman) predictTo(t int64) {
	if t <= f.time {
		return
	}
	dt := units.MicrosToSeconds(t - f.time)
	for _, step := range splitDt(dt, f.cfg.MaxPredictDt) {
		f.kf.predict(constantVelocity(step), f.processNoise(step))
	}
	f.time = t
}

func (f *RobotKalman) processNoise(dt float64) *mat.DiagDense {
	c := f.cfg
	return mat.NewDiagDense(robotDim, []float64{
		c.ProcessNoisePos * dt, c.ProcessNoisePos * dt, c.ProcessNoiseAngle * dt,
		c.ProcessNoiseVel * dt, c.ProcessNoiseVel * dt, c.ProcessNoiseAngle * dt,
	})
}

// Valid reports whether the robot was observed within the timeout and the
// state is finite.
func (f *RobotKalman) Valid(t int64) bool {
	if !f.seeded || !f.kf.finite() {
		return false
	}
	return t-f.lastObs <= f.cfg.Timeout.Microseconds()
}

func (f *RobotKalman) SetHasBall(hasBall bool) { f.hasBall = hasBall }
func (f *RobotKalman) HasBall() bool           { return f.hasBall }

func (f *RobotKalman) Pos() units.Point {
	if !f.seeded {
		return units.Point{}
	}
	return units.Point{X: f.kf.x.AtVec(rX), Y: f.kf.x.AtVec(rY)}
}

func (f *RobotKalman) Vel() units.Point {
	if !f.seeded {
		return units.Point{}
	}
	return units.Point{X: f.kf.x.AtVec(rVX), Y: f.kf.x.AtVec(rVY)}
}

// Angle returns the heading in degrees, (-180, 180].
func (f *RobotKalman) Angle() float64 {
	if !f.seeded {
		return 0
	}
	return units.NormalizeDegrees(f.kf.x.AtVec(rTheta))
}

// AngleVel returns the turn rate in degrees per second.
func (f *RobotKalman) AngleVel() float64 {
	if !f.seeded {
		return 0
	}
	return f.kf.x.AtVec(rOmega)
}

// constantVelocity is the transition matrix for [x y θ vx vy ω] over dt.
func constantVelocity(dt float64) *mat.Dense {
	f := mat.DenseCopyOf(identity(robotDim))
	f.Set(rX, rVX, dt)
	f.Set(rY, rVY, dt)
	f.Set(rTheta, rOmega, dt)
	return f
}

func wrapRobotAngle(y *mat.VecDense) {
	y.SetVec(2, units.NormalizeDegrees(y.AtVec(2)))
}
