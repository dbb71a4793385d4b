package l5tracks

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// The motion model is a constant-velocity linear Kalman filter over the
// 8-dimensional state (cx, cy, aspect, height, and their velocities). The
// observation space is the 4-dimensional box measurement (cx, cy, aspect,
// height). Process and measurement noise scale with the box height, so the
// filter stays calibrated across near and far subjects.

const (
	stateDim   = 8
	measureDim = 4

	// Diagonal covariance bounds applied every predict step. The floor
	// keeps the projected innovation covariance positive definite; the
	// ceiling stops long-coasted tracks from swallowing the whole frame.
	minStateVariance = 1e-6
	maxStateVariance = 1e7

	// SingularDistanceRejection is returned as the gating distance when
	// the innovation covariance cannot be factorised. It exceeds any
	// plausible gate, so such pairs are never matched.
	SingularDistanceRejection = 1e9
)

// StateMean is the 8-vector state estimate of one track.
type StateMean []float64

// StateCov is the 8x8 state covariance of one track.
type StateCov struct {
	*mat.Dense
}

// NewStateMean returns a zeroed state vector.
func NewStateMean() StateMean { return make(StateMean, stateDim) }

// NewStateCov returns a zeroed covariance matrix.
func NewStateCov() StateCov { return StateCov{mat.NewDense(stateDim, stateDim, nil)} }

// errSingularCovariance reports an innovation covariance that cannot be
// factorised. Callers treat it as a skipped correction, never a crash.
var errSingularCovariance = errors.New("innovation covariance is singular")

// KalmanFilter carries the motion and observation matrices plus the noise
// weights shared by every track in a tracker. It holds no per-track state,
// so a single instance serves the whole track table.
type KalmanFilter struct {
	motionMat         *mat.Dense // 8x8 constant-velocity transition
	updateMat         *mat.Dense // 4x8 state-to-measurement projection
	stdWeightPosition float64
	stdWeightVelocity float64
}

// NewKalmanFilter builds a filter with the given noise weights. The stock
// weights are 1/20 for position and 1/160 for velocity.
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float64) *KalmanFilter {
	motion := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		motion.Set(i, i, 1)
	}
	for i := 0; i < measureDim; i++ {
		// One frame per step: position picks up one unit of velocity.
		motion.Set(i, i+measureDim, 1)
	}

	update := mat.NewDense(measureDim, stateDim, nil)
	for i := 0; i < measureDim; i++ {
		update.Set(i, i, 1)
	}

	return &KalmanFilter{
		motionMat:         motion,
		updateMat:         update,
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
	}
}

// Initiate seeds mean and covariance from an unassociated measurement
// (cx, cy, aspect, height). Velocities start at zero with a wide prior.
func (kf *KalmanFilter) Initiate(mean StateMean, cov *StateCov, measurement []float64) {
	for i := 0; i < measureDim; i++ {
		mean[i] = measurement[i]
		mean[i+measureDim] = 0
	}

	h := measurement[3]
	std := []float64{
		2 * kf.stdWeightPosition * h,
		2 * kf.stdWeightPosition * h,
		1e-2,
		2 * kf.stdWeightPosition * h,
		10 * kf.stdWeightVelocity * h,
		10 * kf.stdWeightVelocity * h,
		1e-5,
		10 * kf.stdWeightVelocity * h,
	}
	cov.Zero()
	for i, s := range std {
		cov.Set(i, i, s*s)
	}
}

// Predict advances the state one frame and widens the covariance by the
// process noise. The covariance diagonal is clamped to
// [minStateVariance, maxStateVariance] so repeated prediction can never
// produce a degenerate or runaway matrix.
func (kf *KalmanFilter) Predict(mean StateMean, cov *StateCov) {
	h := mean[3]
	stdPos := kf.stdWeightPosition * h
	stdVel := kf.stdWeightVelocity * h
	noise := []float64{
		stdPos, stdPos, 1e-2, stdPos,
		stdVel, stdVel, 1e-5, stdVel,
	}

	// mean = F·mean
	mv := mat.NewVecDense(stateDim, mean)
	var predicted mat.VecDense
	predicted.MulVec(kf.motionMat, mv)
	copy(mean, predicted.RawVector().Data)

	// cov = F·cov·Fᵀ + Q
	var fp, fpft mat.Dense
	fp.Mul(kf.motionMat, cov)
	fpft.Mul(&fp, kf.motionMat.T())
	cov.Copy(&fpft)
	for i, s := range noise {
		v := cov.At(i, i) + s*s
		if v < minStateVariance {
			v = minStateVariance
		} else if v > maxStateVariance {
			v = maxStateVariance
		}
		cov.Set(i, i, v)
	}
}

// project maps the state into measurement space: H·mean and H·cov·Hᵀ + R.
func (kf *KalmanFilter) project(mean StateMean, cov StateCov) (*mat.VecDense, *mat.SymDense) {
	h := mean[3]
	std := []float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-1,
		kf.stdWeightPosition * h,
	}

	mv := mat.NewVecDense(stateDim, mean)
	projMean := mat.NewVecDense(measureDim, nil)
	projMean.MulVec(kf.updateMat, mv)

	var hp, hpht mat.Dense
	hp.Mul(kf.updateMat, cov)
	hpht.Mul(&hp, kf.updateMat.T())

	projCov := mat.NewSymDense(measureDim, nil)
	for i := 0; i < measureDim; i++ {
		for j := i; j < measureDim; j++ {
			v := (hpht.At(i, j) + hpht.At(j, i)) / 2
			if i == j {
				v += std[i] * std[i]
			}
			projCov.SetSym(i, j, v)
		}
	}
	return projMean, projCov
}

// Update corrects the state with a matched measurement. The gain blends
// prediction and observation by their respective uncertainties, tightening
// the covariance. A non-factorisable innovation covariance leaves the state
// untouched and reports errSingularCovariance.
func (kf *KalmanFilter) Update(mean StateMean, cov *StateCov, measurement []float64) error {
	projMean, projCov := kf.project(mean, *cov)

	var chol mat.Cholesky
	if !chol.Factorize(projCov) {
		return errSingularCovariance
	}

	// K = cov·Hᵀ·S⁻¹, solved as S·Kᵀ = (cov·Hᵀ)ᵀ.
	var pht mat.Dense
	pht.Mul(cov, kf.updateMat.T())
	var gainT mat.Dense
	if err := chol.SolveTo(&gainT, pht.T()); err != nil {
		return errSingularCovariance
	}

	// innovation = z − H·mean
	innov := mat.NewVecDense(measureDim, nil)
	for i := 0; i < measureDim; i++ {
		innov.SetVec(i, measurement[i]-projMean.AtVec(i))
	}

	// mean += K·innovation
	var corr mat.VecDense
	corr.MulVec(gainT.T(), innov)
	for i := 0; i < stateDim; i++ {
		mean[i] += corr.AtVec(i)
	}

	// cov -= K·S·Kᵀ
	var ks, ksk mat.Dense
	ks.Mul(gainT.T(), projCov)
	ksk.Mul(&ks, &gainT)
	var updated mat.Dense
	updated.Sub(cov, &ksk)
	cov.Copy(&updated)
	for i := 0; i < stateDim; i++ {
		if cov.At(i, i) < minStateVariance {
			cov.Set(i, i, minStateVariance)
		}
	}
	return nil
}

// GatingDistance returns the squared Mahalanobis distance from the state
// distribution to each measurement, evaluated in the projected measurement
// space (4 degrees of freedom). Measurements farther than the chi-squared
// gate should be treated as impossible associations. A singular projected
// covariance yields SingularDistanceRejection for every measurement.
func (kf *KalmanFilter) GatingDistance(mean StateMean, cov StateCov, measurements [][]float64) []float64 {
	out := make([]float64, len(measurements))
	projMean, projCov := kf.project(mean, cov)

	var chol mat.Cholesky
	if !chol.Factorize(projCov) {
		for i := range out {
			out[i] = SingularDistanceRejection
		}
		return out
	}

	diff := mat.NewVecDense(measureDim, nil)
	var solved mat.VecDense
	for i, z := range measurements {
		for j := 0; j < measureDim; j++ {
			diff.SetVec(j, z[j]-projMean.AtVec(j))
		}
		if err := chol.SolveVecTo(&solved, diff); err != nil {
			out[i] = SingularDistanceRejection
			continue
		}
		d := mat.Dot(diff, &solved)
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			d = SingularDistanceRejection
		}
		out[i] = d
	}
	return out
}

// IsFinite reports whether every component of the state is a real number.
// A track whose state goes non-finite is unrecoverable and must be deleted.
func (m StateMean) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// XYAH returns the measurement-space view of the state.
func (m StateMean) XYAH() []float64 {
	return []float64{m[0], m[1], m[2], m[3]}
}
