package filter

import (
	"math"
	"sort"

	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Ball state vector layout: [x y vx vy ax ay].
const (
	bX = iota
	bY
	bVX
	bVY
	bAX
	bAY
	ballDim
)

// Initial uncertainty for a freshly seeded ball.
const (
	ballInitVelVariance   = 25.0  // (m/s)²
	ballInitAccelVariance = 100.0 // (m/s²)²
)

// residualWindow is how many recent innovations feed the residual check.
const residualWindow = 10

var ballH = selector(ballDim, bX, bY)

type ballObservation struct {
	t   int64
	pos units.Point
	src worldmodel.Source
}

// BallKalman is a constant-acceleration Kalman filter for the ball.
//
// It is valid once it has seen MinObservations, the latest of them within
// Timeout, its position variance is at most MaxPosVariance and the mean of
// its recent innovations is at most MaxResidual.
type BallKalman struct {
	cfg BallConfig

	kf        *kalman
	time      int64
	lastObs   int64
	count     int
	pending   []ballObservation
	observed  units.Point
	residuals []float64
}

var _ worldmodel.BallFilter = (*BallKalman)(nil)

// NewBallKalman returns an unseeded ball filter.
func NewBallKalman(cfg BallConfig) *BallKalman {
	return &BallKalman{cfg: cfg}
}

// Observe buffers a measurement and records it as the latest raw
// observation.
func (f *BallKalman) Observe(t int64, pos units.Point, src worldmodel.Source) {
	f.pending = append(f.pending, ballObservation{t: t, pos: pos, src: src})
	f.observed = pos
	f.count++
	if t > f.lastObs {
		f.lastObs = t
	}
}

// Update folds buffered observations in time order and predicts to t.
func (f *BallKalman) Update(t int64) {
	sort.SliceStable(f.pending, func(i, j int) bool { return f.pending[i].t < f.pending[j].t })
	for _, o := range f.pending {
		if f.kf == nil {
			f.seed(o)
			continue
		}
		f.predictTo(o.t)
		z := mat.NewVecDense(2, []float64{o.pos.X, o.pos.Y})
		y, err := f.kf.correct(ballH, z, f.measurementNoise(o.src), nil)
		if err != nil {
			diagf("ball: dropped %s observation at %d: %v", o.src, o.t, err)
			continue
		}
		f.pushResidual(math.Hypot(y.AtVec(0), y.AtVec(1)))
	}
	f.pending = f.pending[:0]
	if f.kf != nil {
		f.predictTo(t)
	}
}

func (f *BallKalman) seed(o ballObservation) {
	r := f.cfg.MeasurementNoise
	f.kf = newKalman(
		[]float64{o.pos.X, o.pos.Y, 0, 0, 0, 0},
		[]float64{r, r, ballInitVelVariance, ballInitVelVariance, ballInitAccelVariance, ballInitAccelVariance},
	)
	f.time = o.t
}

func (f *BallKalman) measurementNoise(src worldmodel.Source) *mat.DiagDense {
	r := f.cfg.MeasurementNoise
	if src == worldmodel.SourceBallSensor {
		r = f.cfg.SensorNoise
	}
	return mat.NewDiagDense(2, []float64{r, r})
}

func (f *BallKalman) pushResidual(r float64) {
	f.residuals = append(f.residuals, r)
	if len(f.residuals) > residualWindow {
		f.residuals = f.residuals[len(f.residuals)-residualWindow:]
	}
}

func (f *BallKalman) predictTo(t int64) {
	if t <= f.time {
		return
	}
	dt := units.MicrosToSeconds(t - f.time)
	for _, step := range splitDt(dt, f.cfg.MaxPredictDt) {
		f.kf.predict(constantAcceleration(step), f.processNoise(step))
	}
	f.time = t
}

func (f *BallKalman) processNoise(dt float64) *mat.DiagDense {
	qp, qv := f.cfg.ProcessNoisePos*dt, f.cfg.ProcessNoiseVel*dt
	return mat.NewDiagDense(ballDim, []float64{qp, qp, qv, qv, qv, qv})
}

// Valid reports whether the estimate can be published at t.
func (f *BallKalman) Valid(t int64) bool {
	if f.kf == nil || f.count < f.cfg.MinObservations {
		return false
	}
	if t-f.lastObs > f.cfg.Timeout.Microseconds() {
		return false
	}
	if !f.kf.finite() {
		return false
	}
	if f.PosVariance() > f.cfg.MaxPosVariance {
		return false
	}
	if len(f.residuals) > 0 && stat.Mean(f.residuals, nil) > f.cfg.MaxResidual {
		return false
	}
	return true
}

// PosVariance returns the mean of the x and y position variances, or zero
// before the filter is seeded.
func (f *BallKalman) PosVariance() float64 {
	if f.kf == nil {
		return 0
	}
	return stat.Mean([]float64{f.kf.p.At(bX, bX), f.kf.p.At(bY, bY)}, nil)
}

// Observations returns how many observations the filter has received.
func (f *BallKalman) Observations() int { return f.count }

func (f *BallKalman) Pos() units.Point   { return f.vec(bX, bY) }
func (f *BallKalman) Vel() units.Point   { return f.vec(bVX, bVY) }
func (f *BallKalman) Accel() units.Point { return f.vec(bAX, bAY) }

// ObservedPos returns the latest raw observation.
func (f *BallKalman) ObservedPos() units.Point { return f.observed }

func (f *BallKalman) vec(i, j int) units.Point {
	if f.kf == nil {
		return units.Point{}
	}
	return units.Point{X: f.kf.x.AtVec(i), Y: f.kf.x.AtVec(j)}
}

// constantAcceleration is the transition matrix for [x y vx vy ax ay] over dt.
func constantAcceleration(dt float64) *mat.Dense {
	f := mat.DenseCopyOf(identity(ballDim))
	half := dt * dt / 2
	f.Set(bX, bVX, dt)
	f.Set(bY, bVY, dt)
	f.Set(bX, bAX, half)
	f.Set(bY, bAY, half)
	f.Set(bVX, bAX, dt)
	f.Set(bVY, bAY, dt)
	return f
}
