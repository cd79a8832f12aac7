package features

import "errors"

var (
	// ErrEmptyVocabulary is returned when fitting leaves no usable terms.
	ErrEmptyVocabulary = errors.New("empty vocabulary")
	// ErrNotFitted is returned when a vectorizer or codec is used before fit.
	ErrNotFitted = errors.New("not fitted")
	// ErrUnknownLabel is returned when encoding a label the codec was not fitted on.
	ErrUnknownLabel = errors.New("unknown label")
)
