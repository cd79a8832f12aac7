package corpus

import "errors"

var (
	// ErrInsufficientClasses is returned when fewer than two professions
	// have usable samples.
	ErrInsufficientClasses = errors.New("at least 2 different professions are required to train")
	// ErrEmptyLabel is returned when a requested or sampled profession has
	// no usable samples.
	ErrEmptyLabel = errors.New("profession has no usable samples")
)
