package classifier

import "math"

// softmax converts scores into probabilities in place.
func softmax(scores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	if math.IsInf(maxScore, -1) {
		return uniform(len(scores))
	}

	var sum float64
	for i, s := range scores {
		scores[i] = math.Exp(s - maxScore)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores
}

func uniform(n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = 1 / float64(n)
	}
	return res
}

// normalizeSum rescales p so that it sums to 1.
func normalizeSum(p []float64) []float64 {
	var sum float64
	for _, v := range p {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) {
		return uniform(len(p))
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}
