package training

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// minSplitSamples is the corpus size above which a held-out test set is used.
const minSplitSamples = 4

// split holds sample indices for training and evaluation.
type split struct {
	train    []int
	test     []int
	degraded bool
}

// stratifiedSplit partitions samples so that every class keeps its share in
// both parts. Corpora of at most four samples are trained and evaluated on
// the full set and the split is marked degraded.
func stratifiedSplit(y []int, classes int, testSize float64, rng *rand.Rand) (split, error) {
	n := len(y)
	if n <= minSplitSamples {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return split{train: all, test: all, degraded: true}, nil
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTrain < classes || nTest < classes {
		return split{}, fmt.Errorf("%w: %d train and %d test samples for %d professions",
			ErrDegenerateSplit, nTrain, nTest, classes)
	}

	byClass := make([][]int, classes)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	counts := make([]int, classes)
	for c, members := range byClass {
		if len(members) < 2 {
			return split{}, fmt.Errorf("%w: profession %d has %d sample(s), need at least 2",
				ErrDegenerateSplit, c, len(members))
		}
		counts[c] = len(members)
	}

	trainPerClass := approximateMode(counts, nTrain)
	remaining := make([]int, classes)
	for c := range counts {
		remaining[c] = counts[c] - trainPerClass[c]
	}
	testPerClass := approximateMode(remaining, nTest)

	var s split
	for c, members := range byClass {
		perm := rng.Perm(len(members))
		for k, p := range perm {
			switch {
			case k < trainPerClass[c]:
				s.train = append(s.train, members[p])
			case k < trainPerClass[c]+testPerClass[c]:
				s.test = append(s.test, members[p])
			}
		}
	}
	rng.Shuffle(len(s.train), func(i, j int) { s.train[i], s.train[j] = s.train[j], s.train[i] })
	rng.Shuffle(len(s.test), func(i, j int) { s.test[i], s.test[j] = s.test[j], s.test[i] })

	return s, nil
}

// approximateMode distributes draws over classes proportionally to counts.
// Leftover draws go to the largest fractional shares, lower class first on
// ties, never exceeding a class count.
func approximateMode(counts []int, draws int) []int {
	var total int
	for _, c := range counts {
		total += c
	}

	res := make([]int, len(counts))
	fractions := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		share := float64(c) * float64(draws) / float64(total)
		res[i] = int(math.Floor(share))
		fractions[i] = share - float64(res[i])
		assigned += res[i]
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return fractions[order[a]] > fractions[order[b]] })

	for left := draws - assigned; left > 0; {
		progressed := false
		for _, i := range order {
			if left == 0 {
				break
			}
			if res[i] < counts[i] {
				res[i]++
				left--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	return res
}
