package classifier

import "errors"

var (
	// ErrUnsupportedAlgorithm is returned for unknown algorithm names.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrInvalidInput is returned when training data is malformed.
	ErrInvalidInput = errors.New("invalid training input")
	// ErrNotTrained is returned when persisting an untrained classifier.
	ErrNotTrained = errors.New("classifier not trained")
)
