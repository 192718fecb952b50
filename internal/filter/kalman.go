package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// kalman is a linear Kalman filter state: mean x and covariance p.
// The motion model and measurement model are supplied per call.
type kalman struct {
	x *mat.VecDense
	p *mat.Dense
}

func newKalman(x0 []float64, p0 []float64) *kalman {
	n := len(x0)
	return &kalman{
		x: mat.NewVecDense(n, append([]float64(nil), x0...)),
		p: mat.DenseCopyOf(mat.NewDiagDense(n, append([]float64(nil), p0...))),
	}
}

// predict applies x = F x, P = F P Fᵀ + Q.
func (k *kalman) predict(f, q mat.Matrix) {
	var x mat.VecDense
	x.MulVec(f, k.x)
	k.x = &x

	var fp, p mat.Dense
	fp.Mul(f, k.p)
	p.Mul(&fp, f.T())
	p.Add(&p, q)
	k.p = &p
}

// correct folds measurement z with model H and noise R into the state.
// wrap, if non-nil, adjusts the innovation in place (angle wrap-around).
// It returns the innovation.
func (k *kalman) correct(h mat.Matrix, z *mat.VecDense, r mat.Matrix, wrap func(*mat.VecDense)) (*mat.VecDense, error) {
	n, _ := k.p.Dims()

	var y mat.VecDense
	y.MulVec(h, k.x)
	y.SubVec(z, &y)
	if wrap != nil {
		wrap(&y)
	}

	var hp, s mat.Dense
	hp.Mul(h, k.p)
	s.Mul(&hp, h.T())
	s.Add(&s, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return nil, fmt.Errorf("innovation covariance not invertible: %w", err)
	}

	var pht, gain mat.Dense
	pht.Mul(k.p, h.T())
	gain.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&gain, &y)
	k.x.AddVec(k.x, &dx)

	var kh, ikh, p mat.Dense
	kh.Mul(&gain, h)
	ikh.Sub(identity(n), &kh)
	p.Mul(&ikh, k.p)
	k.p = &p

	return &y, nil
}

// finite reports whether every state and covariance entry is finite.
func (k *kalman) finite() bool {
	for i := 0; i < k.x.Len(); i++ {
		if v := k.x.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	r, c := k.p.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := k.p.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func identity(n int) *mat.DiagDense {
	d := make([]float64, n)
	for i := range d {
		d[i] = 1
	}
	return mat.NewDiagDense(n, d)
}

// selector returns the rows×n matrix picking the given state indices.
func selector(n int, idx ...int) *mat.Dense {
	h := mat.NewDense(len(idx), n, nil)
	for row, col := range idx {
		h.Set(row, col, 1)
	}
	return h
}

// splitDt breaks a prediction interval into steps no longer than maxDt.
func splitDt(dt, maxDt float64) []float64 {
	if dt <= 0 {
		return nil
	}
	if maxDt <= 0 || dt <= maxDt {
		return []float64{dt}
	}
	steps := int(math.Ceil(dt / maxDt))
	out := make([]float64, steps)
	for i := range out {
		out[i] = dt / float64(steps)
	}
	return out
}
