package fusion

import (
	"fmt"

	"github.com/banshee-data/navfusion/internal/config"
)

// EstimatorConfig holds the noise model and initial uncertainty.
type EstimatorConfig struct {
	InitialCovariance float64 `json:"initial_covariance"` // P0 diagonal
	ProcessNoisePos   float64 `json:"process_noise_pos"`  // Q diagonal for position (per step, not dt-scaled)
	ProcessNoiseVel   float64 `json:"process_noise_vel"`  // Q diagonal for velocity (per step, not dt-scaled)
	GPSNoise          Vec3    `json:"gps_noise"`          // R_gps diagonal (m²)
	BaroNoise         float64 `json:"baro_noise"`         // R_baro (m²)

	// SymmetrizeCovariance replaces P with (P + Pᵀ)/2 after every update.
	// Off by default so results match the plain (I − KH)·P form exactly.
	SymmetrizeCovariance bool `json:"symmetrize_covariance"`
}

// DefaultEstimatorConfig returns the built-in defaults:
// P0 = 0.1·I, Q = 0.01·I, R_gps = I, R_baro = 0.5.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfigFromTuning(config.EmptyFusionConfig())
}

// EstimatorConfigFromTuning builds an EstimatorConfig from a loaded FusionConfig.
func EstimatorConfigFromTuning(cfg *config.FusionConfig) EstimatorConfig {
	return EstimatorConfig{
		InitialCovariance:    cfg.GetInitialCovariance(),
		ProcessNoisePos:      cfg.GetProcessNoisePos(),
		ProcessNoiseVel:      cfg.GetProcessNoiseVel(),
		GPSNoise:             Vec3(cfg.GetGPSNoise()),
		BaroNoise:            cfg.GetBaroNoise(),
		SymmetrizeCovariance: cfg.GetSymmetrizeCovariance(),
	}
}

// ProcessNoise returns the constant diagonal Q.
func (c EstimatorConfig) ProcessNoise() Mat6 {
	q, v := c.ProcessNoisePos, c.ProcessNoiseVel
	return Diag6(Vec6{q, q, q, v, v, v})
}

// DebugCollector receives estimator internals for visualisation.
// Decoupled from the debug package to avoid an import cycle.
type DebugCollector interface {
	IsEnabled() bool
	RecordPrediction(x Vec6, dt float64)
	RecordInnovation(model string, residual []float64, outcome Outcome)
}

// Estimator is the Kalman filter belief: mean x and covariance P.
// The zero value is not usable; construct with NewEstimator.
type Estimator struct {
	cfg  EstimatorConfig
	q    Mat6
	gps  Model
	baro Model

	x Vec6
	p Mat6

	// DebugCollector captures predictions and innovations (optional).
	DebugCollector DebugCollector
}

// NewEstimator creates an estimator in its initial state.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	e := &Estimator{
		cfg:  cfg,
		q:    cfg.ProcessNoise(),
		gps:  GPSModel(cfg.GPSNoise),
		baro: BaroModel(cfg.BaroNoise),
	}
	e.Reset()
	return e
}

// Config returns the configuration the estimator was built with.
func (e *Estimator) Config() EstimatorConfig { return e.cfg }

// GPS returns the configured position-fix model.
func (e *Estimator) GPS() Model { return e.gps }

// Baro returns the configured altitude model.
func (e *Estimator) Baro() Model { return e.baro }

// Reset discards all history: x = 0, P = InitialCovariance·I.
func (e *Estimator) Reset() {
	e.x = Vec6{}
	e.p = Identity6(e.cfg.InitialCovariance)
}

// State returns a copy of the state vector.
func (e *Estimator) State() Vec6 { return e.x }

// Covariance returns a copy of the covariance matrix.
func (e *Estimator) Covariance() Mat6 { return e.p }

// Position returns the estimated position.
func (e *Estimator) Position() Vec3 {
	return Vec3{e.x[IdxPX], e.x[IdxPY], e.x[IdxPZ]}
}

// Velocity returns the estimated velocity.
func (e *Estimator) Velocity() Vec3 {
	return Vec3{e.x[IdxVX], e.x[IdxVY], e.x[IdxVZ]}
}

// PositionCovariance returns the top-left 3×3 block of P.
func (e *Estimator) PositionCovariance() [PosDim][PosDim]float64 {
	var out [PosDim][PosDim]float64
	for i := 0; i < PosDim; i++ {
		for j := 0; j < PosDim; j++ {
			out[i][j] = e.p[i][j]
		}
	}
	return out
}

// Predict advances the belief by dt seconds under acceleration u.
//
// Position integrates the previous velocity, velocity integrates u once
// (first-order, no ½·a·dt² term), and P' = F·P·Fᵀ + Q with
// F = I + dt at (i, i+3). Invalid input is rejected before any mutation.
func (e *Estimator) Predict(u Vec3, dt float64) error {
	if !isFinite(dt) || dt <= 0 {
		return fmt.Errorf("%w: dt=%v must be a positive finite number of seconds", ErrInvalidTimestep, dt)
	}
	if !u.IsFinite() {
		return fmt.Errorf("%w: acceleration=%v", ErrInvalidControl, u)
	}

	// State transition F:
	// [ I  dt·I ]
	// [ 0   I   ]
	// plus control B·u with B = [0; dt·I].
	x := e.x
	for i := 0; i < PosDim; i++ {
		x[i] += e.x[i+PosDim] * dt
		x[i+PosDim] += u[i] * dt
	}

	// F*P: position rows pick up dt × the matching velocity row.
	var fp Mat6
	for j := 0; j < StateDim; j++ {
		for i := 0; i < PosDim; i++ {
			fp[i][j] = e.p[i][j] + dt*e.p[i+PosDim][j]
		}
		for i := PosDim; i < StateDim; i++ {
			fp[i][j] = e.p[i][j]
		}
	}

	// (F*P)*F^T: position columns pick up dt × the matching velocity column.
	var p Mat6
	for i := 0; i < StateDim; i++ {
		for j := 0; j < PosDim; j++ {
			p[i][j] = fp[i][j] + dt*fp[i][j+PosDim]
		}
		for j := PosDim; j < StateDim; j++ {
			p[i][j] = fp[i][j]
		}
	}

	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			p[i][j] += e.q[i][j]
		}
	}

	if !x.IsFinite() || !p.IsFinite() {
		return fmt.Errorf("%w: dt=%v", ErrNonFiniteState, dt)
	}

	e.x = x
	e.p = p

	if e.DebugCollector != nil && e.DebugCollector.IsEnabled() {
		e.DebugCollector.RecordPrediction(e.x, dt)
	}
	return nil
}
