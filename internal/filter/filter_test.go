package filter

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameMicros = 16_000

func angleDiff(a, b float64) float64 {
	return math.Abs(units.NormalizeDegrees(a - b))
}

// ---------------------------------------------------------------------------
// Kalman helpers
// ---------------------------------------------------------------------------

func TestSplitDt(t *testing.T) {
	t.Parallel()
	assert.Nil(t, splitDt(0, 0.1))
	assert.Nil(t, splitDt(-1, 0.1))
	assert.Equal(t, []float64{0.05}, splitDt(0.05, 0.1))
	assert.Equal(t, []float64{0.3}, splitDt(0.3, 0))

	steps := splitDt(0.35, 0.1)
	require.Len(t, steps, 4)
	sum := 0.0
	for _, s := range steps {
		assert.LessOrEqual(t, s, 0.1)
		sum += s
	}
	assert.InDelta(t, 0.35, sum, 1e-12)
}

func TestSelector(t *testing.T) {
	t.Parallel()
	h := selector(4, 0, 2)
	r, c := h.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, 1.0, h.At(0, 0))
	assert.Equal(t, 1.0, h.At(1, 2))
	assert.Equal(t, 0.0, h.At(1, 1))
}

// ---------------------------------------------------------------------------
// RobotKalman
// ---------------------------------------------------------------------------

func TestRobotKalman(t *testing.T) {
	t.Parallel()
	cfg := DefaultRobotConfig()

	t.Run("unseeded is invalid and zero", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(4, cfg)
		assert.Equal(t, 4, f.ID())
		assert.False(t, f.Valid(0))
		assert.Equal(t, units.Point{}, f.Pos())
		f.Update(frameMicros) // no-op
		assert.Zero(t, f.Angle())
	})

	t.Run("first observation seeds the estimate", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(1, cfg)
		f.Observe(1_000_000, units.Point{X: 1, Y: -2}, 30)

		assert.True(t, f.Valid(1_000_000))
		assert.Equal(t, units.Point{X: 1, Y: -2}, f.Pos())
		assert.InDelta(t, 30, f.Angle(), 1e-9)
	})

	t.Run("tracks constant velocity", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(1, cfg)
		for i := 0; i <= 120; i++ {
			ts := int64(i) * frameMicros
			x := units.MicrosToSeconds(ts) // 1 m/s along x
			f.Observe(ts, units.Point{X: x, Y: 0.5}, 0)
			f.Update(ts)
		}

		assert.InDelta(t, 1.92, f.Pos().X, 0.02)
		assert.InDelta(t, 0.5, f.Pos().Y, 0.02)
		assert.InDelta(t, 1.0, f.Vel().X, 0.1)
		assert.InDelta(t, 0.0, f.Vel().Y, 0.1)
	})

	t.Run("heading wraps through 180", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(2, cfg)
		angle := 160.0
		var ts int64
		for i := 0; i < 30; i++ {
			ts = int64(i) * frameMicros
			f.Observe(ts, units.Point{}, units.NormalizeDegrees(angle))
			f.Update(ts)
			angle += 2
		}

		last := units.NormalizeDegrees(angle - 2)
		assert.Less(t, angleDiff(f.Angle(), last), 5.0, "angle %f want %f", f.Angle(), last)
		assert.Greater(t, f.AngleVel(), 0.0)
		assert.LessOrEqual(t, f.Angle(), 180.0)
		assert.Greater(t, f.Angle(), -180.0)
	})

	t.Run("validity follows the timeout", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(3, cfg)
		f.Observe(0, units.Point{}, 0)

		limit := cfg.Timeout.Microseconds()
		assert.True(t, f.Valid(limit))
		assert.False(t, f.Valid(limit+1))
	})

	t.Run("out of order observations are folded by time", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(5, cfg)
		f.Observe(0, units.Point{}, 0)
		f.Observe(2*frameMicros, units.Point{X: 0.02}, 0)
		f.Observe(frameMicros, units.Point{X: 0.01}, 0)
		f.Update(2 * frameMicros)

		assert.Empty(t, f.pending)
		assert.Equal(t, int64(2*frameMicros), f.time)
		assert.Greater(t, f.Pos().X, 0.0)
		assert.True(t, f.Valid(2*frameMicros))
	})

	t.Run("long gaps are predicted in bounded steps", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(6, cfg)
		f.Observe(0, units.Point{}, 0)
		f.Update(int64(2 * time.Second / time.Microsecond))

		assert.True(t, f.kf.finite())
		assert.Equal(t, units.Point{}, f.Pos())
	})

	t.Run("possession flag", func(t *testing.T) {
		t.Parallel()
		f := NewRobotKalman(7, cfg)
		assert.False(t, f.HasBall())
		f.SetHasBall(true)
		assert.True(t, f.HasBall())
	})

	t.Run("factory", func(t *testing.T) {
		t.Parallel()
		newRobot := RobotFactory(cfg)
		r := newRobot(9)
		assert.Equal(t, 9, r.ID())
		assert.IsType(t, &RobotKalman{}, r)
	})
}

// ---------------------------------------------------------------------------
// BallKalman
// ---------------------------------------------------------------------------

func TestBallKalman(t *testing.T) {
	t.Parallel()
	cfg := DefaultBallConfig()

	t.Run("valid after minimum observations", func(t *testing.T) {
		t.Parallel()
		f := NewBallKalman(cfg)
		pos := units.Point{X: 1, Y: 1}

		var validity []bool
		for i := 0; i < cfg.MinObservations+1; i++ {
			ts := int64(i) * frameMicros
			f.Observe(ts, pos, worldmodel.SourceVision)
			validity = append(validity, f.Valid(ts))
			f.Update(ts)
		}

		want := make([]bool, cfg.MinObservations+1)
		want[cfg.MinObservations-1] = true
		want[cfg.MinObservations] = true
		assert.Equal(t, want, validity)
		assert.True(t, f.Pos().NearlyEqual(pos, 1e-6))
		assert.Equal(t, cfg.MinObservations+1, f.Observations())
	})

	t.Run("raw observation is kept", func(t *testing.T) {
		t.Parallel()
		f := NewBallKalman(cfg)
		assert.Equal(t, units.Point{}, f.ObservedPos())
		f.Observe(0, units.Point{X: 0.3}, worldmodel.SourceVision)
		f.Observe(0, units.Point{X: 0.4}, worldmodel.SourceVision)
		assert.Equal(t, units.Point{X: 0.4}, f.ObservedPos())
	})

	t.Run("invalid after timeout", func(t *testing.T) {
		t.Parallel()
		f := NewBallKalman(cfg)
		var ts int64
		for i := 0; i < 5; i++ {
			ts = int64(i) * frameMicros
			f.Observe(ts, units.Point{}, worldmodel.SourceVision)
			f.Update(ts)
		}
		require.True(t, f.Valid(ts))
		assert.False(t, f.Valid(ts+cfg.Timeout.Microseconds()+1))
	})

	t.Run("jumping observations fail the residual check", func(t *testing.T) {
		t.Parallel()
		f := NewBallKalman(cfg)
		var ts int64
		for i := 0; i < 12; i++ {
			ts = int64(i) * frameMicros
			x := 0.0
			if i%2 == 1 {
				x = 2.0
			}
			f.Observe(ts, units.Point{X: x}, worldmodel.SourceVision)
			f.Update(ts)
		}
		assert.False(t, f.Valid(ts))
	})

	t.Run("tracks constant acceleration", func(t *testing.T) {
		t.Parallel()
		f := NewBallKalman(cfg)
		for i := 0; i <= 125; i++ {
			ts := int64(i) * frameMicros
			s := units.MicrosToSeconds(ts)
			f.Observe(ts, units.Point{X: s * s}, worldmodel.SourceVision) // a = 2 m/s²
			f.Update(ts)
		}

		assert.InDelta(t, 4.0, f.Pos().X, 0.05)
		assert.InDelta(t, 4.0, f.Vel().X, 0.3)
		assert.InDelta(t, 2.0, f.Accel().X, 0.6)
		assert.True(t, f.Valid(125*frameMicros))
	})

	t.Run("ball sensor observations use their own noise", func(t *testing.T) {
		t.Parallel()
		c := cfg
		c.SensorNoise = 100
		f := NewBallKalman(c)
		for i := 0; i < 4; i++ {
			ts := int64(i) * frameMicros
			f.Observe(ts, units.Point{}, worldmodel.SourceVision)
			f.Update(ts)
		}
		ts := int64(4 * frameMicros)
		f.Observe(ts, units.Point{X: 1}, worldmodel.SourceBallSensor)
		f.Update(ts)

		assert.Less(t, f.Pos().X, 0.05)
		assert.Equal(t, units.Point{X: 1}, f.ObservedPos())
	})

	t.Run("position variance shrinks with observations", func(t *testing.T) {
		t.Parallel()
		f := NewBallKalman(cfg)
		assert.Zero(t, f.PosVariance())

		f.Observe(0, units.Point{}, worldmodel.SourceVision)
		f.Update(0)
		first := f.PosVariance()
		for i := 1; i < 10; i++ {
			ts := int64(i) * frameMicros
			f.Observe(ts, units.Point{}, worldmodel.SourceVision)
			f.Update(ts)
		}
		assert.Less(t, f.PosVariance(), first)
		assert.LessOrEqual(t, f.PosVariance(), cfg.MaxPosVariance)
	})
}

// ---------------------------------------------------------------------------
// Filters driving the world model
// ---------------------------------------------------------------------------

func TestConfigFromDefaults(t *testing.T) {
	r := DefaultRobotConfig()
	assert.Equal(t, 250*time.Millisecond, r.Timeout)
	assert.Greater(t, r.MeasurementNoise, 0.0)

	b := DefaultBallConfig()
	assert.Equal(t, 3, b.MinObservations)
	assert.Greater(t, b.MaxResidual, 0.0)
}
