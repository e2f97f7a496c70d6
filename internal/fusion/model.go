package fusion

import "fmt"

// Model names used by the built-in measurement models.
const (
	ModelGPS  = "gps"
	ModelBaro = "baro"
)

// Model is a linear observation model: an observation matrix H mapping
// the state to a predicted measurement, and the measurement noise R.
// Only the leading Dim rows of H and the leading Dim×Dim block of R are
// meaningful. Models are immutable once built.
type Model struct {
	name string
	dim  int
	h    [MaxObservationDim][StateDim]float64
	r    [MaxObservationDim][MaxObservationDim]float64
}

// NewModel builds a custom observation model. h must have between 1 and
// MaxObservationDim rows and r must be square with the same dimension.
func NewModel(name string, h [][StateDim]float64, r [][]float64) (Model, error) {
	dim := len(h)
	if dim < 1 || dim > MaxObservationDim {
		return Model{}, fmt.Errorf("%w: model %q has %d rows, want 1..%d", ErrDimensionMismatch, name, dim, MaxObservationDim)
	}
	if len(r) != dim {
		return Model{}, fmt.Errorf("%w: model %q noise has %d rows, want %d", ErrDimensionMismatch, name, len(r), dim)
	}

	m := Model{name: name, dim: dim}
	for a := 0; a < dim; a++ {
		if len(r[a]) != dim {
			return Model{}, fmt.Errorf("%w: model %q noise row %d has %d cols, want %d", ErrDimensionMismatch, name, a, len(r[a]), dim)
		}
		m.h[a] = h[a]
		for b := 0; b < dim; b++ {
			if !isFinite(r[a][b]) {
				return Model{}, fmt.Errorf("model %q noise[%d][%d] is not finite", name, a, b)
			}
			m.r[a][b] = r[a][b]
		}
	}
	return m, nil
}

// GPSModel observes the three position components with diagonal noise r.
func GPSModel(r Vec3) Model {
	m := Model{name: ModelGPS, dim: PosDim}
	for i := 0; i < PosDim; i++ {
		m.h[i][IdxPX+i] = 1
		m.r[i][i] = r[i]
	}
	return m
}

// BaroModel observes the vertical position with noise variance r.
func BaroModel(r float64) Model {
	m := Model{name: ModelBaro, dim: 1}
	m.h[0][IdxPZ] = 1
	m.r[0][0] = r
	return m
}

// Name returns the model name.
func (m Model) Name() string { return m.name }

// Dim returns the observation dimension.
func (m Model) Dim() int { return m.dim }

// H returns element (row, col) of the observation matrix.
func (m Model) H(row, col int) float64 { return m.h[row][col] }

// R returns element (row, col) of the measurement noise matrix.
func (m Model) R(row, col int) float64 { return m.r[row][col] }

// Predicted returns H·x, the measurement the model expects for state x.
func (m Model) Predicted(x Vec6) []float64 {
	out := make([]float64, m.dim)
	for a := 0; a < m.dim; a++ {
		for j := 0; j < StateDim; j++ {
			out[a] += m.h[a][j] * x[j]
		}
	}
	return out
}
