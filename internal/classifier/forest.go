package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-classifier/internal/features"
)

// forest is a bagged ensemble of gini decision trees.
type forest struct {
	estimators      int
	maxDepth        int
	minSamplesSplit int
	classes         int
	dim             int
	trees           []decisionTree
}

type forestState struct {
	Estimators int          `json:"n_estimators"`
	MaxDepth   int          `json:"max_depth"`
	Classes    int          `json:"classes"`
	Dim        int          `json:"dim"`
	Trees      [][]treeNode `json:"trees"`
}

func newForest() *forest {
	return &forest{estimators: 100, maxDepth: 10, minSamplesSplit: 2}
}

func (f *forest) Algorithm() Algorithm { return RandomForest }

func (f *forest) Shape() (int, int) {
	if len(f.trees) == 0 {
		return 0, 0
	}
	return f.classes, f.dim
}

func (f *forest) Fit(x []features.Vector, y []int, classes, dim int) error {
	if err := validateFit(x, y, classes, dim); err != nil {
		return err
	}

	f.classes = classes
	f.dim = dim
	f.trees = make([]decisionTree, f.estimators)
	maxFeatures := int(math.Ceil(math.Sqrt(float64(dim))))

	// Per tree seeds are drawn up front so that the result does not depend
	// on scheduling.
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, f.estimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for t := range f.trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[t]))
			sample := make([]int, len(x))
			for i := range sample {
				sample[i] = rng.Intn(len(x))
			}
			b := &treeBuilder{
				x:               x,
				y:               y,
				classes:         classes,
				maxFeatures:     maxFeatures,
				maxDepth:        f.maxDepth,
				minSamplesSplit: f.minSamplesSplit,
				rng:             rng,
			}
			f.trees[t] = b.build(sample)
			return nil
		})
	}
	return g.Wait()
}

func (f *forest) PredictProba(x features.Vector) []float64 {
	res := make([]float64, f.classes)
	for _, t := range f.trees {
		for c, p := range t.predictProba(x) {
			res[c] += p
		}
	}
	for c := range res {
		res[c] /= float64(len(f.trees))
	}
	return res
}

func (f *forest) Predict(x features.Vector) int {
	return argmax(f.PredictProba(x))
}

func (f *forest) MarshalJSON() ([]byte, error) {
	trees := make([][]treeNode, len(f.trees))
	for i, t := range f.trees {
		trees[i] = t.nodes
	}
	return json.Marshal(forestState{
		Estimators: f.estimators,
		MaxDepth:   f.maxDepth,
		Classes:    f.classes,
		Dim:        f.dim,
		Trees:      trees,
	})
}

func (f *forest) UnmarshalJSON(data []byte) error {
	var state forestState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Trees) == 0 {
		return fmt.Errorf("random forest state has no trees")
	}

	trees := make([]decisionTree, len(state.Trees))
	for i, nodes := range state.Trees {
		trees[i] = decisionTree{nodes: nodes}
		if err := trees[i].validate(state.Classes, state.Dim); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}

	f.estimators = state.Estimators
	f.maxDepth = state.MaxDepth
	f.classes = state.Classes
	f.dim = state.Dim
	f.trees = trees
	return nil
}
