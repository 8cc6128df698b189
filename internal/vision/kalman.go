package vision

import (
	"gonum.org/v1/gonum/mat"
)

// kalman is a constant-velocity filter over state [x, y, vx, vy]. Between
// frames it assumes locally linear motion, which holds at camera frame
// rates for a resting ball and through short occlusions; it is not a
// flight model.
type kalman struct {
	x *mat.VecDense // state estimate
	p *mat.Dense    // state covariance

	posNoise  float64 // process noise on position
	velNoise  float64 // process noise on velocity
	measNoise float64 // measurement noise on observed position
}

// newKalman creates a filter with the state pinned at (x, y) and zero
// velocity.
func newKalman(x, y, posNoise, velNoise, measNoise float64) *kalman {
	k := &kalman{
		x:         mat.NewVecDense(4, []float64{x, y, 0, 0}),
		p:         mat.NewDense(4, 4, nil),
		posNoise:  posNoise,
		velNoise:  velNoise,
		measNoise: measNoise,
	}
	// Position is known exactly at lock time; velocity is not.
	k.p.Set(0, 0, k.posNoise)
	k.p.Set(1, 1, k.posNoise)
	k.p.Set(2, 2, 10*k.velNoise)
	k.p.Set(3, 3, 10*k.velNoise)
	return k
}

// motion returns the transition matrix for a step of dt seconds.
func (k *kalman) motion(dt float64) *mat.Dense {
	f := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		f.Set(i, i, 1)
	}
	f.Set(0, 2, dt)
	f.Set(1, 3, dt)
	return f
}

// Predict advances the state by dt seconds and inflates the covariance by
// the process noise.
func (k *kalman) Predict(dt float64) (x, y float64) {
	if dt <= 0 {
		return k.x.AtVec(0), k.x.AtVec(1)
	}

	f := k.motion(dt)

	var xNew mat.VecDense
	xNew.MulVec(f, k.x)
	k.x.CopyVec(&xNew)

	var fp, fpft mat.Dense
	fp.Mul(f, k.p)
	fpft.Mul(&fp, f.T())
	k.p.Copy(&fpft)

	k.p.Set(0, 0, k.p.At(0, 0)+k.posNoise*dt)
	k.p.Set(1, 1, k.p.At(1, 1)+k.posNoise*dt)
	k.p.Set(2, 2, k.p.At(2, 2)+k.velNoise*dt)
	k.p.Set(3, 3, k.p.At(3, 3)+k.velNoise*dt)

	return k.x.AtVec(0), k.x.AtVec(1)
}

// Update corrects the state with an observed position and returns the
// corrected estimate.
func (k *kalman) Update(zx, zy float64) (x, y float64) {
	// H selects position, so the innovation covariance is the top-left
	// 2x2 of P plus R and the whole update reduces to 2x2 algebra.
	s00 := k.p.At(0, 0) + k.measNoise
	s01 := k.p.At(0, 1)
	s10 := k.p.At(1, 0)
	s11 := k.p.At(1, 1) + k.measNoise

	det := s00*s11 - s01*s10
	if det == 0 {
		return k.x.AtVec(0), k.x.AtVec(1)
	}

	// S⁻¹
	i00, i01 := s11/det, -s01/det
	i10, i11 := -s10/det, s00/det

	// Gain K = P Hᵀ S⁻¹ is 4x2.
	gain := mat.NewDense(4, 2, nil)
	for r := 0; r < 4; r++ {
		p0, p1 := k.p.At(r, 0), k.p.At(r, 1)
		gain.Set(r, 0, p0*i00+p1*i10)
		gain.Set(r, 1, p0*i01+p1*i11)
	}

	rx := zx - k.x.AtVec(0)
	ry := zy - k.x.AtVec(1)
	for r := 0; r < 4; r++ {
		k.x.SetVec(r, k.x.AtVec(r)+gain.At(r, 0)*rx+gain.At(r, 1)*ry)
	}

	// P ← (I − K H) P
	var kh mat.Dense
	h := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	kh.Mul(gain, h)

	ikh := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)

	var pNew mat.Dense
	pNew.Mul(ikh, k.p)
	k.p.Copy(&pNew)

	return k.x.AtVec(0), k.x.AtVec(1)
}

// Position returns the current state estimate.
func (k *kalman) Position() (x, y float64) {
	return k.x.AtVec(0), k.x.AtVec(1)
}

// Velocity returns the current velocity estimate in pixels per second.
func (k *kalman) Velocity() (vx, vy float64) {
	return k.x.AtVec(2), k.x.AtVec(3)
}
