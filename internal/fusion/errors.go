package fusion

import "errors"

var (
	// ErrInvalidTimestep is returned by Predict for dt <= 0 or a non-finite dt.
	ErrInvalidTimestep = errors.New("invalid timestep")

	// ErrInvalidControl is returned by Predict for a non-finite acceleration.
	ErrInvalidControl = errors.New("invalid control input")

	// ErrSingularInnovation means the innovation covariance could not be
	// inverted reliably. The update was skipped and the state is unchanged.
	ErrSingularInnovation = errors.New("singular innovation covariance")

	// ErrMalformedMeasurement means a measurement had a NaN or infinite
	// component. The update was skipped and the state is unchanged.
	ErrMalformedMeasurement = errors.New("malformed measurement")

	// ErrDimensionMismatch is returned when a measurement vector or noise
	// matrix does not match a model's observation dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNonFiniteState is returned by Predict when propagation overflows.
	ErrNonFiniteState = errors.New("non-finite state after propagation")
)
