// Package sim generates synthetic flights: a ground-truth trajectory
// under an acceleration profile and the noisy GPS and barometer readings
// a vehicle following it would report.
package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/banshee-data/navfusion/internal/fusion"
	"gonum.org/v1/gonum/stat/distuv"
)

// Profile returns the commanded acceleration at time t (seconds).
type Profile func(t float64) fusion.Vec3

// Constant returns a profile with fixed acceleration a.
func Constant(a fusion.Vec3) Profile {
	return func(float64) fusion.Vec3 { return a }
}

// Circle returns the centripetal acceleration of a level circle of the
// given radius flown at angular rate omega (rad/s), plus a constant climb
// acceleration.
func Circle(radius, omega, climb float64) Profile {
	return func(t float64) fusion.Vec3 {
		k := -radius * omega * omega
		return fusion.Vec3{k * math.Cos(omega*t), k * math.Sin(omega*t), climb}
	}
}

// Config controls trajectory generation.
type Config struct {
	Dt    float64
	Steps int
	Seed  uint64

	// Initial truth state.
	Start fusion.Vec6

	Accel Profile

	// Standard deviations of the measurement noise.
	GPSSigma  float64
	BaroSigma float64

	// Probability in [0,1] that a fix is missing on a given step.
	GPSDropout  float64
	BaroDropout float64

	// GPS fixes arrive every GPSEvery steps; 0 or 1 means every step.
	GPSEvery int
}

// DefaultConfig returns a level circular flight with noise matching the
// default estimator noise model.
func DefaultConfig(dt float64, steps int) Config {
	return Config{
		Dt:        dt,
		Steps:     steps,
		Seed:      1,
		Start:     fusion.Vec6{0, 0, 0, 0, 5, 0},
		Accel:     Circle(5/0.5, 0.5, 0),
		GPSSigma:  1,
		BaroSigma: math.Sqrt(0.5),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if !(c.Dt > 0) || math.IsInf(c.Dt, 0) {
		errs = append(errs, fmt.Errorf("dt must be positive and finite, got %v", c.Dt))
	}
	if c.Steps < 0 {
		errs = append(errs, fmt.Errorf("steps must be non-negative, got %d", c.Steps))
	}
	if c.GPSSigma < 0 || c.BaroSigma < 0 {
		errs = append(errs, fmt.Errorf("noise sigmas must be non-negative"))
	}
	for _, p := range []float64{c.GPSDropout, c.BaroDropout} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("dropout probability %v outside [0,1]", p))
		}
	}
	if c.GPSEvery < 0 {
		errs = append(errs, fmt.Errorf("gps interval must be non-negative, got %d", c.GPSEvery))
	}
	return errors.Join(errs...)
}

// Truth is the true state after a step.
type Truth struct {
	Time  float64
	State fusion.Vec6
}

// Flight is a generated run: the inputs to feed the estimator and the
// true state after each of them.
type Flight struct {
	Inputs []fusion.StepInput
	Truth  []Truth
}

// Generate integrates the profile with the same constant-velocity
// kinematics the estimator assumes and samples noisy fixes of the truth.
func Generate(cfg Config) (Flight, error) {
	if err := cfg.Validate(); err != nil {
		return Flight{}, err
	}
	accel := cfg.Accel
	if accel == nil {
		accel = Constant(fusion.Vec3{})
	}
	every := max(cfg.GPSEvery, 1)

	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	gpsNoise := distuv.Normal{Mu: 0, Sigma: cfg.GPSSigma, Src: src}
	baroNoise := distuv.Normal{Mu: 0, Sigma: cfg.BaroSigma, Src: src}
	gpsDrop := distuv.Bernoulli{P: cfg.GPSDropout, Src: src}
	baroDrop := distuv.Bernoulli{P: cfg.BaroDropout, Src: src}

	flight := Flight{
		Inputs: make([]fusion.StepInput, 0, cfg.Steps),
		Truth:  make([]Truth, 0, cfg.Steps),
	}
	x := cfg.Start
	var t float64
	for n := 0; n < cfg.Steps; n++ {
		a := accel(t)
		for i := 0; i < fusion.PosDim; i++ {
			x[i] += x[i+fusion.PosDim] * cfg.Dt
			x[i+fusion.PosDim] += a[i] * cfg.Dt
		}
		t += cfg.Dt

		in := fusion.StepInput{Accel: a, Dt: cfg.Dt}
		if n%every == 0 && gpsDrop.Rand() == 0 {
			fix := fusion.Vec3{
				x[fusion.IdxPX] + gpsNoise.Rand(),
				x[fusion.IdxPY] + gpsNoise.Rand(),
				x[fusion.IdxPZ] + gpsNoise.Rand(),
			}
			in.GPS = &fix
		}
		if baroDrop.Rand() == 0 {
			alt := x[fusion.IdxPZ] + baroNoise.Rand()
			in.Baro = &alt
		}

		flight.Inputs = append(flight.Inputs, in)
		flight.Truth = append(flight.Truth, Truth{Time: t, State: x})
	}
	return flight, nil
}
