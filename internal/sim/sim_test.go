package sim

import (
	"math"
	"testing"

	"github.com/banshee-data/navfusion/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNoiseFreeTruth(t *testing.T) {
	t.Parallel()
	cfg := Config{Dt: 0.5, Steps: 4, Accel: Constant(fusion.Vec3{2, 0, -1})}
	flight, err := Generate(cfg)
	require.NoError(t, err)
	require.Len(t, flight.Inputs, 4)
	require.Len(t, flight.Truth, 4)

	// Same discrete kinematics as the estimator: position uses the
	// velocity from before the step.
	assert.Equal(t, fusion.Vec6{0, 0, 0, 1, 0, -0.5}, flight.Truth[0].State)
	assert.Equal(t, fusion.Vec6{0.5, 0, -0.25, 2, 0, -1}, flight.Truth[1].State)
	assert.InDelta(t, 2.0, flight.Truth[3].Time, 1e-12)

	for i, in := range flight.Inputs {
		require.NotNil(t, in.GPS, "step %d", i)
		require.NotNil(t, in.Baro, "step %d", i)
		truth := flight.Truth[i].State
		assert.Equal(t, fusion.Vec3{truth[0], truth[1], truth[2]}, *in.GPS)
		assert.Equal(t, truth[fusion.IdxPZ], *in.Baro)
		assert.Equal(t, fusion.Vec3{2, 0, -1}, in.Accel)
	}
}

func TestGenerateMatchesPredictOnly(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig(0.1, 50)
	cfg.Start = fusion.Vec6{}
	cfg.GPSSigma, cfg.BaroSigma = 0, 0
	flight, err := Generate(cfg)
	require.NoError(t, err)

	e := fusion.NewEstimator(fusion.DefaultEstimatorConfig())
	for i, in := range flight.Inputs {
		require.NoError(t, e.Predict(in.Accel, in.Dt))
		want := flight.Truth[i].State
		got := e.State()
		for j := 0; j < fusion.StateDim; j++ {
			assert.InDelta(t, want[j], got[j], 1e-9, "step %d x[%d]", i, j)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig(0.1, 30)
	cfg.GPSDropout = 0.3
	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Seed = 2
	c, err := Generate(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Inputs, c.Inputs)
}

func TestGenerateDropout(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig(0.1, 40)
	cfg.GPSDropout = 1
	cfg.BaroDropout = 0
	flight, err := Generate(cfg)
	require.NoError(t, err)
	for _, in := range flight.Inputs {
		assert.Nil(t, in.GPS)
		assert.NotNil(t, in.Baro)
	}

	cfg.GPSDropout = 0
	cfg.GPSEvery = 5
	flight, err = Generate(cfg)
	require.NoError(t, err)
	var fixes int
	for _, in := range flight.Inputs {
		if in.GPS != nil {
			fixes++
		}
	}
	assert.Equal(t, 8, fixes)
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()
	bad := []Config{
		{Dt: 0, Steps: 1},
		{Dt: math.Inf(1), Steps: 1},
		{Dt: 0.1, Steps: -1},
		{Dt: 0.1, GPSSigma: -1},
		{Dt: 0.1, BaroDropout: 1.5},
		{Dt: 0.1, GPSEvery: -2},
	}
	for _, cfg := range bad {
		_, err := Generate(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

// Fusing noisy fixes with the known acceleration tracks the truth more
// closely than the raw GPS fixes do.
func TestFilterBeatsRawGPS(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig(0.1, 300)
	cfg.Start = fusion.Vec6{}
	cfg.Accel = Circle(10, 0.5, 0.1)
	cfg.Seed = 42
	flight, err := Generate(cfg)
	require.NoError(t, err)

	e := fusion.NewEstimator(fusion.DefaultEstimatorConfig())
	var filterSq, gpsSq float64
	for i, in := range flight.Inputs {
		_, err := e.Step(in)
		require.NoError(t, err)
		truth := flight.Truth[i].State
		pos := e.Position()
		for j := 0; j < fusion.PosDim; j++ {
			filterSq += math.Pow(pos[j]-truth[j], 2)
			gpsSq += math.Pow(in.GPS[j]-truth[j], 2)
		}
	}
	assert.Less(t, filterSq, 0.8*gpsSq)
}
