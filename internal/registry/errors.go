package registry

import "errors"

var (
	// ErrNotFound is returned when no complete model exists under a key.
	ErrNotFound = errors.New("model not found")
	// ErrCorruptModel marks a model whose artifacts are incomplete or unreadable.
	ErrCorruptModel = errors.New("model artifacts are incomplete or corrupt")
	// ErrInvalidName rejects names that cannot be stored safely.
	ErrInvalidName = errors.New("invalid model name")
	// ErrSharedDirectory is returned when both families are configured to
	// use the same directory.
	ErrSharedDirectory = errors.New("model families need separate directories")
	// ErrBackendUnavailable is returned when a deep-learning model is
	// requested but no deep-learning backend is configured.
	ErrBackendUnavailable = errors.New("deep-learning backend is not available")
)
