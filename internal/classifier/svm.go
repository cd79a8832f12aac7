package classifier

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spigell/cv-classifier/internal/features"
)

const (
	svmTolerance = 1e-3
	svmTau       = 1e-12
	svmMaxIter   = 100000
)

// svc is a one-vs-rest RBF support vector machine. Each binary machine is
// trained with SMO and calibrated with a Platt sigmoid.
type svc struct {
	c        float64
	gamma    float64
	dim      int
	support  []features.Vector
	machines []machine
}

// machine is one binary decision function over the shared support vectors.
type machine struct {
	Coef []float64 `json:"coef"`
	Rho  float64   `json:"rho"`
	A    float64   `json:"platt_a"`
	B    float64   `json:"platt_b"`
}

type svcState struct {
	C        float64           `json:"c"`
	Gamma    float64           `json:"gamma"`
	Dim      int               `json:"dim"`
	Support  []features.Vector `json:"support_vectors"`
	Machines []machine         `json:"machines"`
}

func newSVC() *svc {
	return &svc{c: 1}
}

func (s *svc) Algorithm() Algorithm { return SVM }

func (s *svc) Shape() (int, int) {
	if len(s.machines) == 0 {
		return 0, 0
	}
	return len(s.machines), s.dim
}

func (s *svc) kernel(a, b features.Vector, na, nb float64) float64 {
	return math.Exp(-s.gamma * (na + nb - 2*a.Dot(b)))
}

func (s *svc) Fit(x []features.Vector, y []int, classes, dim int) error {
	if err := validateFit(x, y, classes, dim); err != nil {
		return err
	}

	s.dim = dim
	s.gamma = scaleGamma(x, dim)

	n := len(x)
	norms := make([]float64, n)
	for i, vec := range x {
		norms[i] = vec.SquaredNorm()
	}
	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		k[i][i] = 1
		for j := i + 1; j < n; j++ {
			v := s.kernel(x[i], x[j], norms[i], norms[j])
			k[i][j], k[j][i] = v, v
		}
	}

	alphas := make([][]float64, classes)
	rhos := make([]float64, classes)
	decisions := make([][]float64, classes)
	signs := make([][]float64, classes)
	for c := 0; c < classes; c++ {
		sign := make([]float64, n)
		for i, label := range y {
			sign[i] = -1
			if label == c {
				sign[i] = 1
			}
		}
		alphas[c], rhos[c] = solveSMO(k, sign, s.c)
		signs[c] = sign

		dec := make([]float64, n)
		for i := range dec {
			var sum float64
			for j, a := range alphas[c] {
				if a != 0 {
					sum += a * sign[j] * k[j][i]
				}
			}
			dec[i] = sum - rhos[c]
		}
		decisions[c] = dec
	}

	// Keep every sample that supports at least one machine.
	var keep []int
	for i := 0; i < n; i++ {
		for c := range alphas {
			if alphas[c][i] != 0 {
				keep = append(keep, i)
				break
			}
		}
	}

	s.support = make([]features.Vector, len(keep))
	for j, i := range keep {
		s.support[j] = x[i]
	}
	s.machines = make([]machine, classes)
	for c := range s.machines {
		coef := make([]float64, len(keep))
		for j, i := range keep {
			coef[j] = alphas[c][i] * signs[c][i]
		}
		a, b := plattSigmoid(decisions[c], signs[c])
		s.machines[c] = machine{Coef: coef, Rho: rhos[c], A: a, B: b}
	}

	return nil
}

// scaleGamma returns 1 / (dim * var(X)) over the dense matrix, or 1 when the
// matrix is constant.
func scaleGamma(x []features.Vector, dim int) float64 {
	total := float64(len(x) * dim)
	var sum, sumSq float64
	for _, vec := range x {
		for _, v := range vec {
			sum += v.Value
			sumSq += v.Value * v.Value
		}
	}
	mean := sum / total
	variance := sumSq/total - mean*mean
	if variance <= 0 {
		return 1
	}
	return 1 / (float64(dim) * variance)
}

// solveSMO solves the C-SVC dual for kernel matrix k and labels y in {-1, +1}
// using maximal violating pair selection. It returns alphas and rho.
func solveSMO(k [][]float64, y []float64, c float64) ([]float64, float64) {
	n := len(y)
	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}
	q := func(i, j int) float64 { return y[i] * y[j] * k[i][j] }

	for iter := 0; iter < svmMaxIter; iter++ {
		i, j := -1, -1
		gmax, gmin := math.Inf(-1), math.Inf(1)
		for t := 0; t < n; t++ {
			v := -y[t] * grad[t]
			up := (y[t] > 0 && alpha[t] < c) || (y[t] < 0 && alpha[t] > 0)
			low := (y[t] > 0 && alpha[t] > 0) || (y[t] < 0 && alpha[t] < c)
			if up && v > gmax {
				gmax, i = v, t
			}
			if low && v < gmin {
				gmin, j = v, t
			}
		}
		if i < 0 || j < 0 || gmax-gmin < svmTolerance {
			break
		}

		oldI, oldJ := alpha[i], alpha[j]
		if y[i] != y[j] {
			quad := q(i, i) + q(j, j) + 2*q(i, j)
			if quad <= 0 {
				quad = svmTau
			}
			delta := (-grad[i] - grad[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j], alpha[i] = 0, diff
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, -diff
			}
			if diff > 0 {
				if alpha[i] > c {
					alpha[i], alpha[j] = c, c-diff
				}
			} else if alpha[j] > c {
				alpha[j], alpha[i] = c, c+diff
			}
		} else {
			quad := q(i, i) + q(j, j) - 2*q(i, j)
			if quad <= 0 {
				quad = svmTau
			}
			delta := (grad[i] - grad[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > c {
				if alpha[i] > c {
					alpha[i], alpha[j] = c, sum-c
				}
			} else if alpha[j] < 0 {
				alpha[j], alpha[i] = 0, sum
			}
			if sum > c {
				if alpha[j] > c {
					alpha[j], alpha[i] = c, sum-c
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for t := 0; t < n; t++ {
			grad[t] += q(t, i)*dI + q(t, j)*dJ
		}
	}

	return alpha, computeRho(alpha, grad, y, c)
}

func computeRho(alpha, grad, y []float64, c float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	var sumFree float64
	var free int
	for i := range alpha {
		yg := y[i] * grad[i]
		switch {
		case alpha[i] >= c:
			if y[i] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case alpha[i] <= 0:
			if y[i] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			free++
			sumFree += yg
		}
	}

	switch {
	case free > 0:
		return sumFree / float64(free)
	case math.IsInf(ub, 1) && math.IsInf(lb, -1):
		return 0
	case math.IsInf(ub, 1):
		return lb
	case math.IsInf(lb, -1):
		return ub
	}
	return (ub + lb) / 2
}

// plattSigmoid fits P(y=1|f) = 1 / (1 + exp(A*f + B)) to decision values.
func plattSigmoid(dec, y []float64) (float64, float64) {
	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)

	var prior1, prior0 float64
	for _, label := range y {
		if label > 0 {
			prior1++
		} else {
			prior0++
		}
	}

	hi := (prior1 + 1) / (prior1 + 2)
	lo := 1 / (prior0 + 2)
	target := make([]float64, len(y))
	for i, label := range y {
		target[i] = lo
		if label > 0 {
			target[i] = hi
		}
	}

	objective := func(a, b float64) float64 {
		var f float64
		for i, d := range dec {
			fApB := d*a + b
			if fApB >= 0 {
				f += target[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (target[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)

	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21 := sigma, sigma, 0.0
		var g1, g2 float64
		for i, d := range dec {
			fApB := d*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p, q = e/(1+e), 1/(1+e)
			} else {
				e := math.Exp(fApB)
				p, q = 1/(1+e), e/(1+e)
			}
			d2 := p * q
			h11 += d * d * d2
			h22 += d2
			h21 += d * d2
			d1 := target[i] - p
			g1 += d * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA, newB := a+step*dA, b+step*dB
			newF := objective(newA, newB)
			if newF < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newF
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}

	return a, b
}

func sigmoidProbability(dec, a, b float64) float64 {
	fApB := dec*a + b
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}

func (s *svc) decisions(x features.Vector) []float64 {
	nx := x.SquaredNorm()
	kv := make([]float64, len(s.support))
	for j, sv := range s.support {
		kv[j] = s.kernel(sv, x, sv.SquaredNorm(), nx)
	}

	res := make([]float64, len(s.machines))
	for c, m := range s.machines {
		var sum float64
		for j, coef := range m.Coef {
			sum += coef * kv[j]
		}
		res[c] = sum - m.Rho
	}
	return res
}

func (s *svc) PredictProba(x features.Vector) []float64 {
	dec := s.decisions(x)
	for c, m := range s.machines {
		dec[c] = sigmoidProbability(dec[c], m.A, m.B)
	}
	return normalizeSum(dec)
}

func (s *svc) Predict(x features.Vector) int {
	return argmax(s.PredictProba(x))
}

func (s *svc) MarshalJSON() ([]byte, error) {
	return json.Marshal(svcState{
		C:        s.c,
		Gamma:    s.gamma,
		Dim:      s.dim,
		Support:  s.support,
		Machines: s.machines,
	})
}

func (s *svc) UnmarshalJSON(data []byte) error {
	var state svcState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Machines) == 0 || state.Dim <= 0 {
		return fmt.Errorf("svm state has no machines")
	}
	for c, m := range state.Machines {
		if len(m.Coef) != len(state.Support) {
			return fmt.Errorf("svm machine %d has %d coefficients for %d support vectors",
				c, len(m.Coef), len(state.Support))
		}
	}

	s.c = state.C
	s.gamma = state.Gamma
	s.dim = state.Dim
	s.support = state.Support
	s.machines = state.Machines
	return nil
}
