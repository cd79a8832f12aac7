package deep

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

const (
	centroidBackend    = "embedding_centroid"
	defaultTemperature = 0.05
)

// CentroidBackend classifies by cosine similarity between a text embedding
// and the mean embedding of every class.
type CentroidBackend struct {
	embedder    Embedder
	temperature float64
}

// NewCentroidBackend returns a backend over embedder. Non-positive
// temperatures fall back to the default.
func NewCentroidBackend(embedder Embedder, temperature float64) *CentroidBackend {
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &CentroidBackend{embedder: embedder, temperature: temperature}
}

func (b *CentroidBackend) Name() string { return centroidBackend }

func (b *CentroidBackend) Train(ctx context.Context, texts []string, labels []int, classes int) (Network, error) {
	if len(texts) == 0 || len(texts) != len(labels) {
		return nil, fmt.Errorf("%w: %d texts for %d labels", ErrInvalidInput, len(texts), len(labels))
	}

	embeddings, err := embed(ctx, b.embedder, texts)
	if err != nil {
		return nil, err
	}
	dim := len(embeddings[0])

	centroids := make([][]float64, classes)
	counts := make([]int, classes)
	for c := range centroids {
		centroids[c] = make([]float64, dim)
	}
	for i, e := range embeddings {
		label := labels[i]
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("%w: label %d out of range", ErrInvalidInput, label)
		}
		for k, v := range e {
			centroids[label][k] += v
		}
		counts[label]++
	}
	for c, n := range counts {
		if n == 0 {
			return nil, fmt.Errorf("%w: class %d has no samples", ErrInvalidInput, c)
		}
		normalize(centroids[c])
	}

	return &centroidNetwork{
		embedder:       b.embedder,
		Backend:        centroidBackend,
		EmbeddingModel: b.embedder.Model(),
		Temperature:    b.temperature,
		Centroids:      centroids,
	}, nil
}

func (b *CentroidBackend) Decode(data []byte) (Network, error) {
	n := &centroidNetwork{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("decode centroid network: %w", err)
	}
	if n.Backend != centroidBackend {
		return nil, fmt.Errorf("%w: stored backend %q", ErrIncompatible, n.Backend)
	}
	if n.EmbeddingModel != b.embedder.Model() {
		return nil, fmt.Errorf("%w: trained on %q, embedder serves %q", ErrIncompatible, n.EmbeddingModel, b.embedder.Model())
	}
	if len(n.Centroids) == 0 || n.Temperature <= 0 {
		return nil, fmt.Errorf("centroid network is empty")
	}
	for _, c := range n.Centroids {
		if len(c) != len(n.Centroids[0]) || len(c) == 0 {
			return nil, fmt.Errorf("centroid network has ragged centroids")
		}
	}

	n.embedder = b.embedder
	return n, nil
}

type centroidNetwork struct {
	embedder Embedder

	Backend        string      `json:"backend"`
	EmbeddingModel string      `json:"embedding_model"`
	Temperature    float64     `json:"temperature"`
	Centroids      [][]float64 `json:"centroids"`
}

func (n *centroidNetwork) ModelType() string {
	return fmt.Sprintf("Deep Learning (%s embeddings)", n.EmbeddingModel)
}

func (n *centroidNetwork) Dim() int { return len(n.Centroids[0]) }

func (n *centroidNetwork) Classes() int { return len(n.Centroids) }

func (n *centroidNetwork) Probabilities(ctx context.Context, texts []string) ([][]float64, error) {
	embeddings, err := embed(ctx, n.embedder, texts)
	if err != nil {
		return nil, err
	}

	res := make([][]float64, len(embeddings))
	for i, e := range embeddings {
		if len(e) != n.Dim() {
			return nil, fmt.Errorf("%w: embedding width %d, network expects %d", ErrIncompatible, len(e), n.Dim())
		}
		scores := make([]float64, n.Classes())
		for c, centroid := range n.Centroids {
			var dot float64
			for k, v := range e {
				dot += v * centroid[k]
			}
			scores[c] = dot / n.Temperature
		}
		res[i] = softmax(scores)
	}
	return res, nil
}

func (n *centroidNetwork) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// embed returns l2 normalised float64 embeddings of texts.
func embed(ctx context.Context, embedder Embedder, texts []string) ([][]float64, error) {
	raw, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(raw), len(texts))
	}

	res := make([][]float64, len(raw))
	for i, vec := range raw {
		if len(vec) == 0 || len(vec) != len(raw[0]) {
			return nil, fmt.Errorf("embedder returned vectors of inconsistent width")
		}
		res[i] = make([]float64, len(vec))
		for k, v := range vec {
			res[i][k] = float64(v)
		}
		normalize(res[i])
	}
	return res, nil
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
}

func softmax(scores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
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
