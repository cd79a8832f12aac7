package classifier

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spigell/cv-classifier/internal/features"
)

// bayes is a multinomial naive bayes classifier with Laplace smoothing.
type bayes struct {
	alpha        float64
	classCount   []float64
	featureCount [][]float64

	// derived from the counts
	classLogPrior   []float64
	featureLogProba [][]float64
}

type bayesState struct {
	Alpha        float64     `json:"alpha"`
	ClassCount   []float64   `json:"class_count"`
	FeatureCount [][]float64 `json:"feature_count"`
}

func newBayes() *bayes {
	return &bayes{alpha: 1}
}

func (b *bayes) Algorithm() Algorithm { return NaiveBayes }

func (b *bayes) Shape() (int, int) {
	if len(b.featureCount) == 0 {
		return 0, 0
	}
	return len(b.classCount), len(b.featureCount[0])
}

func (b *bayes) Fit(x []features.Vector, y []int, classes, dim int) error {
	if err := validateFit(x, y, classes, dim); err != nil {
		return err
	}

	b.classCount = make([]float64, classes)
	b.featureCount = make([][]float64, classes)
	for c := range b.featureCount {
		b.featureCount[c] = make([]float64, dim)
	}

	for i, vec := range x {
		c := y[i]
		b.classCount[c]++
		for _, v := range vec {
			if v.Index >= dim {
				return fmt.Errorf("%w: feature %d outside dimension %d", ErrInvalidInput, v.Index, dim)
			}
			b.featureCount[c][v.Index] += v.Value
		}
	}

	b.prepare()
	return nil
}

// prepare derives log probabilities from the raw counts.
func (b *bayes) prepare() {
	var total float64
	for _, n := range b.classCount {
		total += n
	}

	b.classLogPrior = make([]float64, len(b.classCount))
	b.featureLogProba = make([][]float64, len(b.featureCount))
	for c, counts := range b.featureCount {
		b.classLogPrior[c] = math.Log(b.classCount[c]) - math.Log(total)

		var sum float64
		for _, n := range counts {
			sum += n + b.alpha
		}
		logSum := math.Log(sum)

		row := make([]float64, len(counts))
		for f, n := range counts {
			row[f] = math.Log(n+b.alpha) - logSum
		}
		b.featureLogProba[c] = row
	}
}

func (b *bayes) jointLogLikelihood(x features.Vector) []float64 {
	res := make([]float64, len(b.classLogPrior))
	for c := range res {
		res[c] = b.classLogPrior[c] + x.DotDense(b.featureLogProba[c])
	}
	return res
}

func (b *bayes) PredictProba(x features.Vector) []float64 {
	return softmax(b.jointLogLikelihood(x))
}

func (b *bayes) Predict(x features.Vector) int {
	return argmax(b.jointLogLikelihood(x))
}

func (b *bayes) MarshalJSON() ([]byte, error) {
	return json.Marshal(bayesState{
		Alpha:        b.alpha,
		ClassCount:   b.classCount,
		FeatureCount: b.featureCount,
	})
}

func (b *bayes) UnmarshalJSON(data []byte) error {
	var state bayesState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.ClassCount) == 0 || len(state.ClassCount) != len(state.FeatureCount) {
		return fmt.Errorf("naive bayes state has %d class counts for %d feature rows",
			len(state.ClassCount), len(state.FeatureCount))
	}
	for _, row := range state.FeatureCount {
		if len(row) != len(state.FeatureCount[0]) {
			return fmt.Errorf("naive bayes feature rows differ in width")
		}
	}

	b.alpha = state.Alpha
	b.classCount = state.ClassCount
	b.featureCount = state.FeatureCount
	b.prepare()
	return nil
}
