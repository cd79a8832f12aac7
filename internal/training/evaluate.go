package training

// ClassMetrics is the per-profession part of a classification report.
type ClassMetrics struct {
	Profession string  `json:"profession" yaml:"profession"`
	Precision  float64 `json:"precision" yaml:"precision"`
	Recall     float64 `json:"recall" yaml:"recall"`
	F1         float64 `json:"f1" yaml:"f1"`
	Support    int     `json:"support" yaml:"support"`
}

func accuracy(truth, predicted []int) float64 {
	if len(truth) == 0 {
		return 0
	}
	correct := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// classReport computes precision, recall and f1 for every class seen in the
// truth or the predictions. It returns nil when the truth holds fewer than
// two distinct classes.
func classReport(truth, predicted []int, professions []string) []ClassMetrics {
	distinct := make(map[int]struct{})
	for _, c := range truth {
		distinct[c] = struct{}{}
	}
	if len(distinct) < 2 {
		return nil
	}

	n := len(professions)
	tp := make([]int, n)
	fp := make([]int, n)
	fn := make([]int, n)
	seen := make([]bool, n)
	for i := range truth {
		t, p := truth[i], predicted[i]
		seen[t], seen[p] = true, true
		if t == p {
			tp[t]++
			continue
		}
		fp[p]++
		fn[t]++
	}

	var res []ClassMetrics
	for c := 0; c < n; c++ {
		if !seen[c] {
			continue
		}
		precision := ratio(tp[c], tp[c]+fp[c])
		recall := ratio(tp[c], tp[c]+fn[c])
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		res = append(res, ClassMetrics{
			Profession: professions[c],
			Precision:  precision,
			Recall:     recall,
			F1:         f1,
			Support:    tp[c] + fn[c],
		})
	}
	return res
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
