// Package deep hosts the deep-learning model family: the contract a
// backend satisfies to take part in training, prediction and the registry,
// plus an embedding centroid backend.
package deep

import (
	"context"
	"errors"
)

var (
	// ErrInvalidInput is returned when training data is malformed.
	ErrInvalidInput = errors.New("invalid deep training input")
	// ErrIncompatible is returned when a stored network cannot be served by
	// the configured backend.
	ErrIncompatible = errors.New("network is incompatible with backend")
)

// Network is a trained deep-learning classifier.
type Network interface {
	// ModelType is the human readable description stored in metadata.
	ModelType() string
	// Dim is the width of the learned representation.
	Dim() int
	// Classes is the number of output classes.
	Classes() int
	// Probabilities returns one distribution per text.
	Probabilities(ctx context.Context, texts []string) ([][]float64, error)
	// Encode serialises the network.
	Encode() ([]byte, error)
}

// Backend trains and restores networks.
type Backend interface {
	Name() string
	Train(ctx context.Context, texts []string, labels []int, classes int) (Network, error)
	Decode(data []byte) (Network, error)
}

// Embedder maps texts to dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
