// Package classifier implements the interchangeable statistical classifiers
// trained on tf-idf vectors: random forest, logistic regression, an RBF
// support vector machine and multinomial naive bayes.
package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/cv-classifier/internal/features"
)

// Algorithm names a classifier variant.
type Algorithm string

const (
	RandomForest       Algorithm = "random_forest"
	LogisticRegression Algorithm = "logistic_regression"
	SVM                Algorithm = "svm"
	NaiveBayes         Algorithm = "naive_bayes"

	// Default is the recommended algorithm.
	Default = RandomForest
)

// seed keeps every randomised algorithm reproducible.
const seed = 42

var displayNames = map[Algorithm]string{
	RandomForest:       "Random Forest",
	LogisticRegression: "Logistic Regression",
	SVM:                "Support Vector Machine (SVM)",
	NaiveBayes:         "Naive Bayes",
}

// Algorithms returns every supported algorithm, the default first.
func Algorithms() []Algorithm {
	return []Algorithm{RandomForest, LogisticRegression, SVM, NaiveBayes}
}

// DisplayName returns the human readable algorithm name.
func (a Algorithm) DisplayName() string {
	if name, ok := displayNames[a]; ok {
		return name
	}
	return string(a)
}

// ParseAlgorithm resolves an algorithm by name. Unknown names are an error,
// never a fallback to the default.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := makers[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
	return a, nil
}

// ParseDisplayName resolves an algorithm from its display name.
func ParseDisplayName(name string) (Algorithm, error) {
	for a, display := range displayNames {
		if strings.EqualFold(display, strings.TrimSpace(name)) {
			return a, nil
		}
	}
	return ParseAlgorithm(name)
}

// Classifier is a trainable multi-class classifier over sparse vectors.
type Classifier interface {
	Algorithm() Algorithm
	// Shape returns the number of classes and features seen in Fit.
	Shape() (classes, features int)
	// Fit trains on x with class indices y in [0, classes).
	Fit(x []features.Vector, y []int, classes, dim int) error
	// PredictProba returns one probability per class, summing to 1.
	PredictProba(x features.Vector) []float64
	// Predict returns the most probable class index.
	Predict(x features.Vector) int
}

type maker func() Classifier

var makers = map[Algorithm]maker{
	RandomForest:       func() Classifier { return newForest() },
	LogisticRegression: func() Classifier { return newLogistic() },
	SVM:                func() Classifier { return newSVC() },
	NaiveBayes:         func() Classifier { return newBayes() },
}

// New returns an untrained classifier for the algorithm.
func New(a Algorithm) (Classifier, error) {
	newClassifier, ok := makers[a]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, a)
	}
	return newClassifier(), nil
}

type envelope struct {
	Algorithm Algorithm       `json:"algorithm"`
	Classes   int             `json:"classes"`
	Features  int             `json:"features"`
	State     json.RawMessage `json:"state"`
}

// Marshal encodes a trained classifier together with its algorithm tag.
func Marshal(c Classifier) ([]byte, error) {
	classes, dim := c.Shape()
	if classes == 0 {
		return nil, ErrNotTrained
	}

	state, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal %s state: %w", c.Algorithm(), err)
	}

	return json.Marshal(envelope{
		Algorithm: c.Algorithm(),
		Classes:   classes,
		Features:  dim,
		State:     state,
	})
}

// Unmarshal restores a classifier written by Marshal.
func Unmarshal(data []byte) (Classifier, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	c, err := New(env.Algorithm)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(env.State, c); err != nil {
		return nil, fmt.Errorf("unmarshal %s state: %w", env.Algorithm, err)
	}

	if classes, dim := c.Shape(); classes != env.Classes || dim != env.Features {
		return nil, fmt.Errorf("%s state has shape %dx%d, envelope says %dx%d",
			env.Algorithm, classes, dim, env.Classes, env.Features)
	}

	return c, nil
}

func validateFit(x []features.Vector, y []int, classes, dim int) error {
	if len(x) == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidInput)
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d samples but %d labels", ErrInvalidInput, len(x), len(y))
	}
	if classes < 2 {
		return fmt.Errorf("%w: need at least 2 classes, got %d", ErrInvalidInput, classes)
	}
	if dim <= 0 {
		return fmt.Errorf("%w: feature space is empty", ErrInvalidInput)
	}
	for i, label := range y {
		if label < 0 || label >= classes {
			return fmt.Errorf("%w: label %d of sample %d out of range", ErrInvalidInput, label, i)
		}
	}
	return nil
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
