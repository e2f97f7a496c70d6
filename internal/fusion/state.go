package fusion

import "math"

// Dimensions of the estimator. The state is position then velocity.
const (
	StateDim = 6
	PosDim   = 3

	// MaxObservationDim bounds the size of any measurement model.
	MaxObservationDim = 3
)

// State vector indices.
const (
	IdxPX = iota
	IdxPY
	IdxPZ
	IdxVX
	IdxVY
	IdxVZ
)

// Vec3 is a three-component vector: an acceleration, a position fix or
// a velocity, always in the filter's reference frame.
type Vec3 [3]float64

// Vec6 is the state vector [px, py, pz, vx, vy, vz].
type Vec6 [StateDim]float64

// Mat6 is a 6×6 matrix, indexed [row][col].
type Mat6 [StateDim][StateDim]float64

// Identity6 returns the 6×6 identity scaled by s.
func Identity6(s float64) Mat6 {
	var m Mat6
	for i := 0; i < StateDim; i++ {
		m[i][i] = s
	}
	return m
}

// Diag6 returns a diagonal matrix with the given diagonal.
func Diag6(d Vec6) Mat6 {
	var m Mat6
	for i := 0; i < StateDim; i++ {
		m[i][i] = d[i]
	}
	return m
}

// Diagonal returns the diagonal of m.
func (m Mat6) Diagonal() Vec6 {
	var d Vec6
	for i := 0; i < StateDim; i++ {
		d[i] = m[i][i]
	}
	return d
}

// MaxAsymmetry returns max |m[i][j] - m[j][i]|.
func (m Mat6) MaxAsymmetry() float64 {
	var worst float64
	for i := 0; i < StateDim; i++ {
		for j := i + 1; j < StateDim; j++ {
			if d := math.Abs(m[i][j] - m[j][i]); d > worst {
				worst = d
			}
		}
	}
	return worst
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsFinite reports whether every component of v is finite.
func (v Vec3) IsFinite() bool {
	for _, c := range v {
		if !isFinite(c) {
			return false
		}
	}
	return true
}

// IsFinite reports whether every component of v is finite.
func (v Vec6) IsFinite() bool {
	for _, c := range v {
		if !isFinite(c) {
			return false
		}
	}
	return true
}

// IsFinite reports whether every entry of m is finite.
func (m Mat6) IsFinite() bool {
	for i := range m {
		for _, c := range m[i] {
			if !isFinite(c) {
				return false
			}
		}
	}
	return true
}
