// Package units converts estimator velocities, always held in m/s, into
// display units.
package units

import (
	"math"
	"strings"
)

const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits lists the accepted ?units= values.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

const mpsToMPH = 2.2369362920544

// IsValid reports whether unit is one of ValidUnits.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// ValidUnitsString is used in error messages.
func ValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed in m/s to the target units. Unknown units
// fall back to m/s.
func ConvertSpeed(speedMPS float64, target string) float64 {
	switch target {
	case MPH:
		return speedMPS * mpsToMPH
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Magnitude returns the Euclidean norm of a velocity vector.
func Magnitude(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// GroundSpeed returns the horizontal (x, y) speed, ignoring climb rate.
func GroundSpeed(v [3]float64) float64 {
	return math.Hypot(v[0], v[1])
}
