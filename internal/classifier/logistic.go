package classifier

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spigell/cv-classifier/internal/features"
)

// logistic is a multinomial logistic regression trained with full batch
// gradient descent on the l2 regularised cross entropy.
type logistic struct {
	c         float64
	rate      float64
	maxIter   int
	tol       float64
	weights   [][]float64
	intercept []float64
	iter      int
}

type logisticState struct {
	C         float64     `json:"c"`
	Weights   [][]float64 `json:"weights"`
	Intercept []float64   `json:"intercept"`
	Iter      int         `json:"iterations"`
}

func newLogistic() *logistic {
	return &logistic{c: 1, rate: 1, maxIter: 1000, tol: 1e-4}
}

func (l *logistic) Algorithm() Algorithm { return LogisticRegression }

func (l *logistic) Shape() (int, int) {
	if len(l.weights) == 0 {
		return 0, 0
	}
	return len(l.weights), len(l.weights[0])
}

func (l *logistic) Fit(x []features.Vector, y []int, classes, dim int) error {
	if err := validateFit(x, y, classes, dim); err != nil {
		return err
	}
	for _, vec := range x {
		if len(vec) > 0 && vec[len(vec)-1].Index >= dim {
			return fmt.Errorf("%w: feature outside dimension %d", ErrInvalidInput, dim)
		}
	}

	n := float64(len(x))
	l.weights = make([][]float64, classes)
	gradW := make([][]float64, classes)
	for c := range l.weights {
		l.weights[c] = make([]float64, dim)
		gradW[c] = make([]float64, dim)
	}
	l.intercept = make([]float64, classes)
	gradB := make([]float64, classes)
	penalty := 1 / (l.c * n)

	for l.iter = 0; l.iter < l.maxIter; l.iter++ {
		for c := range gradW {
			for f, w := range l.weights[c] {
				gradW[c][f] = penalty * w
			}
			gradB[c] = 0
		}

		for i, vec := range x {
			p := l.scores(vec)
			softmax(p)
			p[y[i]]--
			for c, diff := range p {
				if diff == 0 {
					continue
				}
				gradB[c] += diff / n
				for _, v := range vec {
					gradW[c][v.Index] += diff * v.Value / n
				}
			}
		}

		var norm float64
		for c := range gradW {
			for _, g := range gradW[c] {
				norm += g * g
			}
			norm += gradB[c] * gradB[c]
		}
		if math.Sqrt(norm) < l.tol {
			break
		}

		for c := range l.weights {
			for f, g := range gradW[c] {
				l.weights[c][f] -= l.rate * g
			}
			l.intercept[c] -= l.rate * gradB[c]
		}
	}

	return nil
}

func (l *logistic) scores(x features.Vector) []float64 {
	res := make([]float64, len(l.weights))
	for c, w := range l.weights {
		res[c] = x.DotDense(w) + l.intercept[c]
	}
	return res
}

func (l *logistic) PredictProba(x features.Vector) []float64 {
	return softmax(l.scores(x))
}

func (l *logistic) Predict(x features.Vector) int {
	return argmax(l.scores(x))
}

func (l *logistic) MarshalJSON() ([]byte, error) {
	return json.Marshal(logisticState{
		C:         l.c,
		Weights:   l.weights,
		Intercept: l.intercept,
		Iter:      l.iter,
	})
}

func (l *logistic) UnmarshalJSON(data []byte) error {
	var state logisticState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Weights) == 0 || len(state.Weights) != len(state.Intercept) {
		return fmt.Errorf("logistic state has %d weight rows for %d intercepts",
			len(state.Weights), len(state.Intercept))
	}
	for _, row := range state.Weights {
		if len(row) != len(state.Weights[0]) {
			return fmt.Errorf("logistic weight rows differ in width")
		}
	}

	l.c = state.C
	l.weights = state.Weights
	l.intercept = state.Intercept
	l.iter = state.Iter
	return nil
}
