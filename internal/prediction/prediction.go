// Package prediction turns one document into a ranked, confidence-bucketed
// profession prediction.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spigell/cv-classifier/internal/model"
)

// ErrEmptyText marks input without usable content.
var ErrEmptyText = model.ErrEmptyText

// Level is a coarse confidence bucket.
type Level string

const (
	High   Level = "High"
	Medium Level = "Medium"
	Low    Level = "Low"
)

const (
	highThreshold   = 0.8
	mediumThreshold = 0.6
)

// Bucket maps a probability to its confidence level. Both thresholds are
// exclusive: 0.8 is Medium and 0.6 is Low.
func Bucket(confidence float64) Level {
	switch {
	case confidence > highThreshold:
		return High
	case confidence > mediumThreshold:
		return Medium
	default:
		return Low
	}
}

// Entry is one profession of the ranked list.
type Entry struct {
	Profession  string  `json:"profession" yaml:"profession"`
	Probability float64 `json:"probability" yaml:"probability"`
	Percentage  string  `json:"percentage" yaml:"percentage"`
}

// Result is the outcome of a prediction. When Error is set only Message and
// Cause are meaningful.
type Result struct {
	PredictedProfession  string  `json:"predicted_profession,omitempty" yaml:"predicted_profession,omitempty"`
	Confidence           float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	ConfidenceLevel      Level   `json:"confidence_level,omitempty" yaml:"confidence_level,omitempty"`
	ConfidencePercentage string  `json:"confidence_percentage,omitempty" yaml:"confidence_percentage,omitempty"`
	Ranking              []Entry `json:"all_probabilities,omitempty" yaml:"all_probabilities,omitempty"`

	Error   bool   `json:"error,omitempty" yaml:"error,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Cause   error  `json:"-" yaml:"-"`
}

func failed(err error) *Result {
	msg := err.Error()
	if errors.Is(err, ErrEmptyText) {
		msg = "the document has no usable text to classify"
	}
	return &Result{Error: true, Message: msg, Cause: err}
}

// Predict classifies text with m. Input errors are reported in the result.
// It panics when the model returns a probability vector whose width differs
// from its profession list.
func Predict(ctx context.Context, m model.Model, text string) *Result {
	if strings.TrimSpace(text) == "" {
		return failed(ErrEmptyText)
	}

	probs, err := m.Probabilities(ctx, text)
	if err != nil {
		return failed(err)
	}

	professions := m.Professions()
	if len(probs) != len(professions) {
		panic(fmt.Sprintf("model %q returned %d probabilities for %d professions",
			m.Metadata().Name, len(probs), len(professions)))
	}

	ranking := make([]Entry, len(probs))
	for i, p := range probs {
		ranking[i] = Entry{Profession: professions[i], Probability: p, Percentage: percent(p)}
	}
	sort.SliceStable(ranking, func(a, b int) bool { return ranking[a].Probability > ranking[b].Probability })

	top := ranking[0]
	return &Result{
		PredictedProfession:  top.Profession,
		Confidence:           top.Probability,
		ConfidenceLevel:      Bucket(top.Probability),
		ConfidencePercentage: top.Percentage,
		Ranking:              ranking,
	}
}

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}
