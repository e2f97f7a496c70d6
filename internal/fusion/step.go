package fusion

import (
	"errors"
	"fmt"
)

// StepInput is one tick of sensor data. A nil GPS or Baro means no fix
// this step; zero is a legitimate fix and is not treated as absent.
type StepInput struct {
	Accel Vec3
	Dt    float64
	GPS   *Vec3
	Baro  *float64
}

// Outcome records what happened to one measurement model during a step.
type Outcome int

const (
	OutcomeAbsent    Outcome = iota // No measurement supplied
	OutcomeApplied                  // Measurement fused into (x, P)
	OutcomeMalformed                // Non-finite component; skipped like an absent fix
	OutcomeSingular                 // Innovation covariance not invertible; skipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAbsent:
		return "absent"
	case OutcomeApplied:
		return "applied"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeSingular:
		return "singular"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText renders the outcome by name for JSON and CSV output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText parses an outcome name written by MarshalText.
func (o *Outcome) UnmarshalText(text []byte) error {
	for c := OutcomeAbsent; c <= OutcomeSingular; c++ {
		if c.String() == string(text) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Skipped reports whether a supplied measurement was not fused.
func (o Outcome) Skipped() bool {
	return o == OutcomeMalformed || o == OutcomeSingular
}

// StepReport describes how each measurement model fared in one step.
type StepReport struct {
	GPS     Outcome `json:"gps"`
	Baro    Outcome `json:"baro"`
	GPSErr  error   `json:"-"`
	BaroErr error   `json:"-"`
}

// Degraded reports whether any update was skipped because S was singular.
func (r StepReport) Degraded() bool {
	return r.GPS == OutcomeSingular || r.Baro == OutcomeSingular
}

// Err joins the per-model errors, or returns nil if every supplied
// measurement was applied.
func (r StepReport) Err() error {
	return errors.Join(r.GPSErr, r.BaroErr)
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, ErrMalformedMeasurement):
		return OutcomeMalformed
	default:
		return OutcomeSingular
	}
}

// Step runs one predict followed by the GPS update and then the baro
// update, each only if its measurement is present. Measurement failures
// are isolated and reported in the StepReport; a predict failure aborts
// the step with the state unchanged.
func (e *Estimator) Step(in StepInput) (StepReport, error) {
	var report StepReport
	if err := e.Predict(in.Accel, in.Dt); err != nil {
		return report, err
	}

	if in.GPS != nil {
		report.GPSErr = e.UpdateGPS(*in.GPS)
		report.GPS = classify(report.GPSErr)
	}
	if in.Baro != nil {
		report.BaroErr = e.UpdateBaro(*in.Baro)
		report.Baro = classify(report.BaroErr)
	}
	return report, nil
}
