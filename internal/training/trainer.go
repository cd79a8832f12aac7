// Package training turns a labeled corpus into a trained, evaluated model.
package training

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/classifier"
	"github.com/spigell/cv-classifier/internal/corpus"
	"github.com/spigell/cv-classifier/internal/deep"
	"github.com/spigell/cv-classifier/internal/features"
	"github.com/spigell/cv-classifier/internal/logger"
	"github.com/spigell/cv-classifier/internal/model"
)

const (
	DefaultTestSize = 0.2
	DefaultSeed     = 42
)

// Report summarises a training run.
type Report struct {
	Family       model.Family         `json:"family" yaml:"family"`
	Algorithm    classifier.Algorithm `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	ModelType    string               `json:"model_type" yaml:"model_type"`
	Accuracy     float64              `json:"accuracy" yaml:"accuracy"`
	TrainCount   int                  `json:"train_count" yaml:"train_count"`
	TestCount    int                  `json:"test_count" yaml:"test_count"`
	FeatureCount int                  `json:"feature_count" yaml:"feature_count"`
	Professions  []string             `json:"professions" yaml:"professions"`
	// Degraded is set when the corpus was too small for a held-out test set
	// and accuracy was measured on the training samples.
	Degraded bool `json:"degraded" yaml:"degraded"`
	// Classes is nil when the test set holds fewer than two professions.
	Classes  []ClassMetrics `json:"classification_report,omitempty" yaml:"classification_report,omitempty"`
	Duration time.Duration  `json:"duration" yaml:"duration"`
	Model    model.Model    `json:"-" yaml:"-"`
}

// Trainer runs training with a fixed split policy.
type Trainer struct {
	logger   *zap.Logger
	testSize float64
	seed     int64
	filters  []corpus.Filter
	progress func(string)
	now      func() time.Time
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithTestSize sets the held-out fraction.
func WithTestSize(size float64) Option {
	return func(t *Trainer) {
		if size > 0 && size < 1 {
			t.testSize = size
		}
	}
}

// WithSeed sets the split seed.
func WithSeed(seed int64) Option {
	return func(t *Trainer) { t.seed = seed }
}

// WithProgress registers a callback for milestone messages.
func WithProgress(fn func(string)) Option {
	return func(t *Trainer) { t.progress = fn }
}

// New returns a trainer with the default policy.
func New(log *zap.Logger, opts ...Option) *Trainer {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Trainer{
		logger:   log,
		testSize: DefaultTestSize,
		seed:     DefaultSeed,
		filters:  corpus.DefaultFilters(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) report(msg string) {
	t.logger.Debug(msg)
	if t.progress != nil {
		t.progress(msg)
	}
}

// prepared is the family independent part of a training run.
type prepared struct {
	samples []corpus.Sample
	codec   *features.LabelCodec
	y       []int
	split   split
}

func (t *Trainer) prepare(ctx context.Context, c *corpus.Corpus) (*prepared, error) {
	t.report("validating corpus")
	usable, err := c.Filter(ctx, t.logger, t.filters)
	if err != nil {
		return nil, err
	}
	if err := corpus.Validate(c, usable); err != nil {
		return nil, err
	}

	labels := corpus.Professions(usable)
	codec := features.FitLabels(labels)
	y, err := codec.EncodeAll(labels)
	if err != nil {
		return nil, err
	}

	s, err := stratifiedSplit(y, codec.Len(), t.testSize, rand.New(rand.NewSource(t.seed)))
	if err != nil {
		return nil, err
	}
	if s.degraded {
		t.logger.Warn("few samples: training and evaluating on the full corpus",
			zap.Int("samples", len(usable)))
	}

	return &prepared{samples: usable, codec: codec, y: y, split: s}, nil
}

// Train fits a classical model with the given algorithm.
func (t *Trainer) Train(ctx context.Context, c *corpus.Corpus, algorithm classifier.Algorithm) (*Report, error) {
	started := t.now()

	p, err := t.prepare(ctx, c)
	if err != nil {
		return nil, err
	}
	cls, err := classifier.New(algorithm)
	if err != nil {
		return nil, err
	}

	t.report("vectorizing texts")
	vectorizer := features.NewVectorizer()
	x, err := vectorizer.FitTransform(corpus.Texts(p.samples))
	if err != nil {
		return nil, err
	}
	t.logger.Info("features extracted",
		zap.Int("features", vectorizer.Len()),
		zap.Strings("professions", p.codec.Classes()),
	)

	t.report("training model")
	trainX, trainY := pick(x, p.y, p.split.train)
	if err := cls.Fit(trainX, trainY, p.codec.Len(), vectorizer.Len()); err != nil {
		return nil, fmt.Errorf("fit %s: %w", algorithm, err)
	}

	t.report("evaluating model")
	testX, testY := pick(x, p.y, p.split.test)
	predicted := make([]int, len(testX))
	for i, vec := range testX {
		predicted[i] = cls.Predict(vec)
	}

	m := &model.ClassicalModel{
		Vectorizer: vectorizer,
		Classifier: cls,
		Codec:      p.codec,
		CreatedAt:  t.now(),
	}
	r := t.finish(p, testY, predicted, m, started)
	r.Algorithm = algorithm
	r.FeatureCount = vectorizer.Len()

	t.logger.Info("training completed", append(logger.ModelFields("", string(r.Family), string(algorithm)),
		zap.Float64("accuracy", r.Accuracy),
		zap.Int("train_samples", r.TrainCount),
		zap.Int("test_samples", r.TestCount),
		zap.Bool("degraded", r.Degraded),
	)...)
	return r, nil
}

// TrainDeep fits a deep-learning model with backend.
func (t *Trainer) TrainDeep(ctx context.Context, c *corpus.Corpus, backend deep.Backend) (*Report, error) {
	started := t.now()

	p, err := t.prepare(ctx, c)
	if err != nil {
		return nil, err
	}
	texts := corpus.Texts(p.samples)

	t.report("training model")
	trainTexts, trainY := pickTexts(texts, p.y, p.split.train)
	network, err := backend.Train(ctx, trainTexts, trainY, p.codec.Len())
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", backend.Name(), err)
	}

	t.report("evaluating model")
	testTexts, testY := pickTexts(texts, p.y, p.split.test)
	probs, err := network.Probabilities(ctx, testTexts)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", backend.Name(), err)
	}
	predicted := make([]int, len(probs))
	for i, row := range probs {
		predicted[i] = argmax(row)
	}

	m := &deep.Model{Network: network, Codec: p.codec, CreatedAt: t.now()}
	r := t.finish(p, testY, predicted, m, started)
	r.FeatureCount = network.Dim()

	t.logger.Info("training completed", append(logger.ModelFields("", string(r.Family), backend.Name()),
		zap.Float64("accuracy", r.Accuracy),
		zap.Int("train_samples", r.TrainCount),
		zap.Int("test_samples", r.TestCount),
		zap.Bool("degraded", r.Degraded),
	)...)
	return r, nil
}

func (t *Trainer) finish(p *prepared, truth, predicted []int, m model.Model, started time.Time) *Report {
	professions := p.codec.Classes()
	return &Report{
		Family:      m.Family(),
		ModelType:   m.Metadata().ModelType,
		Accuracy:    accuracy(truth, predicted),
		TrainCount:  len(p.split.train),
		TestCount:   len(p.split.test),
		Professions: professions,
		Degraded:    p.split.degraded,
		Classes:     classReport(truth, predicted, professions),
		Duration:    t.now().Sub(started),
		Model:       m,
	}
}

func pick(x []features.Vector, y []int, idx []int) ([]features.Vector, []int) {
	px := make([]features.Vector, len(idx))
	py := make([]int, len(idx))
	for k, i := range idx {
		px[k], py[k] = x[i], y[i]
	}
	return px, py
}

func pickTexts(texts []string, y []int, idx []int) ([]string, []int) {
	pt := make([]string, len(idx))
	py := make([]int, len(idx))
	for k, i := range idx {
		pt[k], py[k] = texts[i], y[i]
	}
	return pt, py
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
