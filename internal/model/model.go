// Package model defines trained models as seen by the prediction engine and
// the registry, independent of the family that produced them.
package model

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Family partitions the registry keyspace.
type Family string

const (
	Classical    Family = "classical"
	DeepLearning Family = "deep_learning"
)

// ErrEmptyText is returned when a document has no usable content.
var ErrEmptyText = errors.New("document text is empty or has no usable content")

// ParseFamily resolves a family by name.
func ParseFamily(name string) (Family, error) {
	switch Family(name) {
	case Classical, DeepLearning:
		return Family(name), nil
	case "dl", "deep":
		return DeepLearning, nil
	}
	return "", fmt.Errorf("unknown model family %q", name)
}

// Model is a trained, immutable classifier over professions.
type Model interface {
	Family() Family
	// Metadata describes the model. Name is empty until the model is saved.
	Metadata() Metadata
	// Professions returns the labels in codec order.
	Professions() []string
	// Probabilities returns one probability per profession, in codec order.
	Probabilities(ctx context.Context, text string) ([]float64, error)
	// Artifacts returns the encoded artifacts keyed by artifact name,
	// metadata excluded.
	Artifacts() (map[string][]byte, error)
}

// TimeLayout is the persisted creation date format.
const TimeLayout = "2006-01-02 15:04:05"

// Metadata is the registry entry of a saved model.
type Metadata struct {
	Name           string   `json:"name" mapstructure:"name" yaml:"name"`
	DisplayName    string   `json:"display_name" mapstructure:"display_name" yaml:"display_name"`
	ModelType      string   `json:"model_type" mapstructure:"model_type" yaml:"model_type"`
	Professions    []string `json:"professions" mapstructure:"professions" yaml:"professions"`
	NumProfessions int      `json:"num_professions" mapstructure:"num_professions" yaml:"num_professions"`
	CreationDate   string   `json:"creation_date" mapstructure:"creation_date" yaml:"creation_date"`
	NumFeatures    int      `json:"num_features" mapstructure:"num_features" yaml:"num_features"`
	IsDeepLearning bool     `json:"is_deep_learning" mapstructure:"is_deep_learning" yaml:"is_deep_learning"`
}

// Family returns the family the metadata belongs to.
func (m Metadata) Family() Family {
	if m.IsDeepLearning {
		return DeepLearning
	}
	return Classical
}

// CreatedAt parses the creation date in local time.
func (m Metadata) CreatedAt() (time.Time, error) {
	return time.ParseInLocation(TimeLayout, m.CreationDate, time.Local)
}

// Info is a short summary of a loaded model.
type Info struct {
	Name           string
	Family         Family
	ModelType      string
	Professions    []string
	NumProfessions int
	NumFeatures    int
}

// Describe summarises m.
func Describe(m Model) Info {
	meta := m.Metadata()
	return Info{
		Name:           meta.Name,
		Family:         m.Family(),
		ModelType:      meta.ModelType,
		Professions:    m.Professions(),
		NumProfessions: len(m.Professions()),
		NumFeatures:    meta.NumFeatures,
	}
}
