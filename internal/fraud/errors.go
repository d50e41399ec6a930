package fraud

import "errors"

var (
	// ErrNotTrained is returned when the anomaly model is asked to score
	// before Train has completed. The aggregator recovers by training on
	// demand; it is never surfaced to the end user.
	ErrNotTrained = errors.New("anomaly model not trained")

	// ErrInsufficientData is returned when a model cannot be fit from the
	// supplied examples. This is a hard error for the caller.
	ErrInsufficientData = errors.New("insufficient training data")
)
