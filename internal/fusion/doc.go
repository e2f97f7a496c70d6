// Package fusion owns the position/velocity estimator.
//
// Responsibilities: a linear discrete-time Kalman filter over the state
// [px, py, pz, vx, vy, vz], driven by gravity-compensated acceleration
// and corrected by GPS position fixes and barometric altitude.
// Key types: Estimator, Model, StepInput, StepReport.
//
// All matrices are fixed-size arrays. Predict and Update do not allocate
// and never run concurrently with themselves; an Estimator is owned by a
// single driving loop and callers that share one must serialise access.
//
// Measurements are fused sequentially: each Update acts on the state left
// by the previous one. Because GPS and baro noise are independent, the
// result equals a single batched update with a stacked 4×6 observation
// matrix only up to floating-point rounding; it is not bit-identical, and
// swapping the order perturbs the last few bits the same way.
// Step always applies GPS before baro.
//
// No SQL, I/O or logging happens in this package. Failures are returned
// as errors wrapping the sentinels in errors.go.
package fusion
