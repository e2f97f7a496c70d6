package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-12

func vec3Ptr(x, y, z float64) *Vec3 {
	v := Vec3{x, y, z}
	return &v
}

func floatPtr(v float64) *float64 { return &v }

func denseFromMat6(m Mat6) *mat.Dense {
	d := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			d.Set(i, j, m[i][j])
		}
	}
	return d
}

func vecFromVec6(v Vec6) *mat.VecDense {
	return mat.NewVecDense(StateDim, append([]float64(nil), v[:]...))
}

func transitionDense(dt float64) *mat.Dense {
	f := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		f.Set(i, i, 1)
	}
	for i := 0; i < PosDim; i++ {
		f.Set(i, i+PosDim, dt)
	}
	return f
}

func modelDense(m Model) (h, r *mat.Dense) {
	h = mat.NewDense(m.Dim(), StateDim, nil)
	r = mat.NewDense(m.Dim(), m.Dim(), nil)
	for a := 0; a < m.Dim(); a++ {
		for j := 0; j < StateDim; j++ {
			h.Set(a, j, m.H(a, j))
		}
		for b := 0; b < m.Dim(); b++ {
			r.Set(a, b, m.R(a, b))
		}
	}
	return h, r
}

func assertMat6InDelta(t *testing.T, want mat.Matrix, got Mat6, delta float64) {
	t.Helper()
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			assert.InDeltaf(t, want.At(i, j), got[i][j], delta, "P[%d][%d]", i, j)
		}
	}
}

func assertVec6InDelta(t *testing.T, want mat.Vector, got Vec6, delta float64) {
	t.Helper()
	for i := 0; i < StateDim; i++ {
		assert.InDeltaf(t, want.AtVec(i), got[i], delta, "x[%d]", i)
	}
}

// warmedEstimator returns an estimator with a non-diagonal covariance and
// non-zero velocity so cross terms are exercised.
func warmedEstimator(t *testing.T, cfg EstimatorConfig) *Estimator {
	t.Helper()
	e := NewEstimator(cfg)
	inputs := []StepInput{
		{Accel: Vec3{0.5, -0.2, 0.1}, Dt: 0.1, GPS: vec3Ptr(0.1, 0, 0.2)},
		{Accel: Vec3{0.4, -0.1, 0.0}, Dt: 0.1, Baro: floatPtr(0.3)},
		{Accel: Vec3{0.3, 0.0, -0.1}, Dt: 0.2, GPS: vec3Ptr(0.3, -0.1, 0.25), Baro: floatPtr(0.28)},
		{Accel: Vec3{0.2, 0.1, 0.0}, Dt: 0.1},
	}
	for _, in := range inputs {
		if _, err := e.Step(in); err != nil {
			t.Fatalf("warm-up step failed: %v", err)
		}
	}
	return e
}

// fakeCollector records debug callbacks.
type fakeCollector struct {
	enabled     bool
	predictions []Vec6
	innovations []fakeInnovation
}

type fakeInnovation struct {
	model    string
	residual []float64
	outcome  Outcome
}

func (c *fakeCollector) IsEnabled() bool { return c.enabled }

func (c *fakeCollector) RecordPrediction(x Vec6, dt float64) {
	c.predictions = append(c.predictions, x)
}

func (c *fakeCollector) RecordInnovation(model string, residual []float64, outcome Outcome) {
	c.innovations = append(c.innovations, fakeInnovation{model: model, residual: residual, outcome: outcome})
}
