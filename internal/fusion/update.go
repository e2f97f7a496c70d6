package fusion

import (
	"fmt"
	"math"
)

// MinPivotRatio is the smallest Gauss-Jordan pivot, relative to the
// largest |S| entry, accepted when inverting the innovation covariance.
// Below it S is treated as singular and the update is skipped.
const MinPivotRatio = 1e-12

type obsMat [MaxObservationDim][MaxObservationDim]float64

// Update fuses measurement z through model m:
//
//	S = H·P·Hᵀ + R
//	K = P·Hᵀ·S⁻¹
//	y = z − H·x
//	x ← x + K·y
//	P ← (I − K·H)·P
//
// The update is all-or-nothing: on any error (x, P) are left exactly as
// they were.
func (e *Estimator) Update(m Model, z []float64) error {
	k := m.dim
	if k < 1 || k > MaxObservationDim {
		return fmt.Errorf("%w: model %q has dimension %d", ErrDimensionMismatch, m.name, k)
	}
	if len(z) != k {
		return fmt.Errorf("%w: model %q expects %d components, got %d", ErrDimensionMismatch, m.name, k, len(z))
	}
	for a := 0; a < k; a++ {
		if !isFinite(z[a]) {
			e.recordInnovation(m.name, nil, OutcomeMalformed)
			return fmt.Errorf("%w: %s component %d is %v", ErrMalformedMeasurement, m.name, a, z[a])
		}
	}

	// P*H^T (6×k)
	var pht [StateDim][MaxObservationDim]float64
	for i := 0; i < StateDim; i++ {
		for a := 0; a < k; a++ {
			var sum float64
			for j := 0; j < StateDim; j++ {
				sum += e.p[i][j] * m.h[a][j]
			}
			pht[i][a] = sum
		}
	}

	// Innovation covariance S = H * P * H^T + R (k×k)
	var s obsMat
	for a := 0; a < k; a++ {
		for b := 0; b < k; b++ {
			var sum float64
			for j := 0; j < StateDim; j++ {
				sum += m.h[a][j] * pht[j][b]
			}
			s[a][b] = sum + m.r[a][b]
		}
	}

	sInv, ok := invert(s, k)
	if !ok {
		e.recordInnovation(m.name, nil, OutcomeSingular)
		return fmt.Errorf("%w: model %q, S=%v", ErrSingularInnovation, m.name, s[:k])
	}

	// Kalman gain K = P * H^T * S^-1 (6×k)
	var gain [StateDim][MaxObservationDim]float64
	for i := 0; i < StateDim; i++ {
		for b := 0; b < k; b++ {
			var sum float64
			for a := 0; a < k; a++ {
				sum += pht[i][a] * sInv[a][b]
			}
			gain[i][b] = sum
		}
	}

	// Innovation y = z - H * x
	var y [MaxObservationDim]float64
	for a := 0; a < k; a++ {
		var hx float64
		for j := 0; j < StateDim; j++ {
			hx += m.h[a][j] * e.x[j]
		}
		y[a] = z[a] - hx
	}

	// x' = x + K * y
	x := e.x
	for i := 0; i < StateDim; i++ {
		for a := 0; a < k; a++ {
			x[i] += gain[i][a] * y[a]
		}
	}

	// I - K*H
	var ikh Mat6
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			var kh float64
			for a := 0; a < k; a++ {
				kh += gain[i][a] * m.h[a][j]
			}
			if i == j {
				ikh[i][j] = 1 - kh
			} else {
				ikh[i][j] = -kh
			}
		}
	}

	// P' = (I - K*H) * P
	var p Mat6
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			var sum float64
			for l := 0; l < StateDim; l++ {
				sum += ikh[i][l] * e.p[l][j]
			}
			p[i][j] = sum
		}
	}

	if e.cfg.SymmetrizeCovariance {
		for i := 0; i < StateDim; i++ {
			for j := i + 1; j < StateDim; j++ {
				avg := 0.5 * (p[i][j] + p[j][i])
				p[i][j] = avg
				p[j][i] = avg
			}
		}
	}

	if !x.IsFinite() || !p.IsFinite() {
		e.recordInnovation(m.name, nil, OutcomeSingular)
		return fmt.Errorf("%w: model %q produced a non-finite result", ErrSingularInnovation, m.name)
	}

	e.x = x
	e.p = p
	e.recordInnovation(m.name, y[:k], OutcomeApplied)
	return nil
}

// UpdateGPS fuses a position fix using the configured R_gps.
func (e *Estimator) UpdateGPS(fix Vec3) error {
	return e.Update(e.gps, fix[:])
}

// UpdateBaro fuses an altitude fix using the configured R_baro.
func (e *Estimator) UpdateBaro(altitude float64) error {
	return e.Update(e.baro, []float64{altitude})
}

func (e *Estimator) recordInnovation(model string, residual []float64, outcome Outcome) {
	if e.DebugCollector == nil || !e.DebugCollector.IsEnabled() {
		return
	}
	var out []float64
	if residual != nil {
		out = append(out, residual...)
	}
	e.DebugCollector.RecordInnovation(model, out, outcome)
}

// invert returns the inverse of the leading n×n block of s using
// Gauss-Jordan elimination with partial pivoting. ok is false when s is
// non-finite, all zero, or has a pivot below MinPivotRatio of its scale.
func invert(s obsMat, n int) (inv obsMat, ok bool) {
	var scale float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !isFinite(s[i][j]) {
				return inv, false
			}
			scale = math.Max(scale, math.Abs(s[i][j]))
		}
	}
	if scale == 0 {
		return inv, false
	}
	tol := MinPivotRatio * scale

	a := s
	for i := 0; i < n; i++ {
		inv[i][i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) <= tol {
			return obsMat{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		inv[col], inv[pivot] = inv[pivot], inv[col]

		d := a[col][col]
		for j := 0; j < n; j++ {
			a[col][j] /= d
			inv[col][j] /= d
		}

		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			f := a[row][col]
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				a[row][j] -= f * a[col][j]
				inv[row][j] -= f * inv[col][j]
			}
		}
	}
	return inv, true
}
