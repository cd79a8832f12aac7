package features

import (
	"math"
	"sort"
)

// Value is a single non-zero entry of a sparse vector.
type Value struct {
	Index int     `json:"i"`
	Value float64 `json:"v"`
}

// A Vector is a sparse vector of scalar values.
// It is represented as index-value pairs sorted by index;
// an index that is not present has the value 0.
type Vector []Value

// At returns the value stored at index i.
func (v Vector) At(i int) float64 {
	n := sort.Search(len(v), func(k int) bool { return v[k].Index >= i })
	if n < len(v) && v[n].Index == i {
		return v[n].Value
	}
	return 0
}

// Dot returns the inner product of two sparse vectors.
func (v Vector) Dot(w Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v) && j < len(w) {
		switch {
		case v[i].Index == w[j].Index:
			sum += v[i].Value * w[j].Value
			i++
			j++
		case v[i].Index < w[j].Index:
			i++
		default:
			j++
		}
	}
	return sum
}

// DotDense returns the inner product of v with a dense weight slice.
func (v Vector) DotDense(w []float64) float64 {
	var sum float64
	for _, x := range v {
		if x.Index < len(w) {
			sum += x.Value * w[x.Index]
		}
	}
	return sum
}

// SquaredNorm returns the squared euclidean norm of v.
func (v Vector) SquaredNorm() float64 {
	var sum float64
	for _, x := range v {
		sum += x.Value * x.Value
	}
	return sum
}

// Dense expands v into a slice of length n.
func (v Vector) Dense(n int) []float64 {
	res := make([]float64, n)
	for _, x := range v {
		if x.Index < n {
			res[x.Index] = x.Value
		}
	}
	return res
}

func normalize(v Vector) Vector {
	norm := math.Sqrt(v.SquaredNorm())
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i].Value /= norm
	}
	return v
}
