package training

import "errors"

// ErrDegenerateSplit is returned when a stratified split cannot keep every
// profession in both the training and the test part.
var ErrDegenerateSplit = errors.New("corpus cannot be split into train and test sets")
